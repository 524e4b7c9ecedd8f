package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
	"github.com/warp/loan-engine/store/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func contracted(t *testing.T, e *loan.Engine) *loan.Application {
	t.Helper()
	ctx := context.Background()
	app, err := e.Applications.Create(ctx, loan.ApplicationRequest{Name: "Kim", RequestedAmount: money("1000000")})
	require.NoError(t, err)
	j, err := e.Judgments.Create(ctx, loan.JudgmentRequest{ApplicationID: app.ID, Name: "Kim", ApprovalAmount: money("500000")})
	require.NoError(t, err)
	_, err = e.Judgments.Grant(ctx, j.ID)
	require.NoError(t, err)
	app, err = e.Applications.Contract(ctx, app.ID)
	require.NoError(t, err)
	return app
}

// =============================================================================
// END-TO-END THROUGH SQLITE
// =============================================================================

func TestSQLite_DisbursementScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := loan.NewEngine(s)
	app := contracted(t, e)

	got, err := e.Applications.Get(ctx, app.ID)
	require.NoError(t, err)
	require.True(t, got.ApprovalAmount.Valid)
	assert.True(t, money("500000").Equal(got.ApprovalAmount.Decimal))
	require.NotNil(t, got.ContractedAt)

	entry, err := e.Entries.Create(ctx, app.ID, loan.EntryRequest{EntryAmount: money("500000")})
	require.NoError(t, err)

	b, err := e.Balances.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, money("500000").Equal(b.Balance))
	assert.EqualValues(t, 1, b.Version)

	_, err = e.Entries.Update(ctx, entry.ID, loan.EntryRequest{EntryAmount: money("300000")})
	require.NoError(t, err)
	require.NoError(t, e.Entries.Delete(ctx, entry.ID))

	b, err = e.Balances.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(b.Balance))
	assert.EqualValues(t, 3, b.Version)

	rows, err := s.ListEntries(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsDeleted)
	assert.True(t, money("300000").Equal(rows[0].EntryAmount))
}

func TestSQLite_AmountsRoundTripExactly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := loan.NewEngine(s)
	app := contracted(t, e)

	for _, amt := range []string{"0.1", "0.2", "12345678901234.56"} {
		_, err := e.Entries.Create(ctx, app.ID, loan.EntryRequest{EntryAmount: money(amt)})
		require.NoError(t, err)
	}

	b, err := e.Balances.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345678901234.86", b.Balance.String())
}

func TestSQLite_ConcurrentRepaymentsKeepBalance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := loan.NewEngine(s, loan.WithRetry(5, time.Millisecond))
	app := contracted(t, e)
	_, err := e.Entries.Create(ctx, app.ID, loan.EntryRequest{EntryAmount: money("500000")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Repayments.Create(ctx, app.ID, loan.RepaymentRequest{Type: loan.RepaymentAdd, RepaymentAmount: money("1000")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := e.Balances.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "480000", b.Balance.String())
}

// =============================================================================
// STORE CONTRACT
// =============================================================================

func TestSQLite_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	app, err := s.GetApplication(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, app)

	b, err := s.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSQLite_UpdateBalance_StaleVersionRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	app := &loan.Application{Name: "Kim", RequestedAmount: money("1"), AppliedAt: now, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateApplication(ctx, app))

	b := &loan.Balance{ApplicationID: app.ID, Balance: money("100"), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateBalance(ctx, b))

	// GIVEN: two readers of version 1
	first, err := s.GetBalance(ctx, app.ID)
	require.NoError(t, err)
	second, err := s.GetBalance(ctx, app.ID)
	require.NoError(t, err)

	// WHEN: both write back
	first.Balance = money("150")
	require.NoError(t, s.UpdateBalance(ctx, first))
	second.Balance = money("90")
	err = s.UpdateBalance(ctx, second)

	// THEN: the second write loses
	assert.ErrorIs(t, err, loan.ErrConcurrentModification)
	cur, err := s.GetBalance(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "150", cur.Balance.String())
	assert.EqualValues(t, 2, cur.Version)

	// A second CreateBalance for the same application is reported the same way.
	err = s.CreateBalance(ctx, &loan.Balance{ApplicationID: app.ID, Balance: money("1"), CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, loan.ErrConcurrentModification)
}

func TestSQLite_LiveJudgmentUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	app := &loan.Application{Name: "Kim", RequestedAmount: money("1"), AppliedAt: now, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateApplication(ctx, app))

	j := &loan.Judgment{ApplicationID: app.ID, ApprovalAmount: money("1"), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateJudgment(ctx, j))

	err := s.CreateJudgment(ctx, &loan.Judgment{ApplicationID: app.ID, ApprovalAmount: money("2"), CreatedAt: now, UpdatedAt: now})
	require.True(t, loan.IsConflict(err), "got %v", err)

	// Once the first is soft-deleted a new one is allowed.
	j.IsDeleted = true
	require.NoError(t, s.UpdateJudgment(ctx, j))
	require.NoError(t, s.CreateJudgment(ctx, &loan.Judgment{ApplicationID: app.ID, ApprovalAmount: money("2"), CreatedAt: now, UpdatedAt: now}))
}

func TestSQLite_AcceptTermsAtomicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := loan.NewEngine(s)

	var ids []loan.TermsID
	for _, name := range []string{"privacy", "credit-inquiry"} {
		tm, err := e.Terms.Create(ctx, loan.TermsRequest{Name: name})
		require.NoError(t, err)
		ids = append(ids, tm.ID)
	}
	app, err := e.Applications.Create(ctx, loan.ApplicationRequest{Name: "Kim", RequestedAmount: money("1")})
	require.NoError(t, err)

	err = e.Applications.AcceptTerms(ctx, app.ID, loan.AcceptTermsRequest{AcceptTermsIDs: ids[:1]})
	require.True(t, loan.IsValidation(err))

	require.NoError(t, e.Applications.AcceptTerms(ctx, app.ID, loan.AcceptTermsRequest{AcceptTermsIDs: []loan.TermsID{ids[1], ids[0]}}))
	require.NoError(t, e.Applications.AcceptTerms(ctx, app.ID, loan.AcceptTermsRequest{AcceptTermsIDs: ids}))

	accepted, err := s.ListAcceptedTerms(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, accepted, 2)
	assert.Equal(t, ids[0], accepted[0].TermsID)
}

func TestSQLite_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	err := s.WithTx(ctx, func(tx loan.Store) error {
		app := &loan.Application{Name: "Kim", RequestedAmount: money("1"), AppliedAt: now, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, tx.CreateApplication(ctx, app))
		return loan.ErrValidation
	})
	require.ErrorIs(t, err, loan.ErrValidation)

	app, err := s.GetApplication(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, app)
}

func TestSQLite_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := loan.NewEngine(s)
	contracted(t, e)

	require.NoError(t, s.Reset(ctx))

	terms, err := s.ListTerms(ctx)
	require.NoError(t, err)
	assert.Empty(t, terms)
	app, err := s.GetApplication(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, app)
}
