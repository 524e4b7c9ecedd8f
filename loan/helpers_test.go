package loan_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/loan/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, s loan.TxStore, opts ...loan.Option) *loan.Engine {
	t.Helper()
	base := []loan.Option{
		loan.WithLogger(zaptest.NewLogger(t)),
		loan.WithClock(func() time.Time { return fixedNow }),
		loan.WithRetry(2, time.Millisecond),
	}
	return loan.NewEngine(s, append(base, opts...)...)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newApplication(t *testing.T, e *loan.Engine, requested string) *loan.Application {
	t.Helper()
	app, err := e.Applications.Create(context.Background(), loan.ApplicationRequest{
		Name:            "Kim",
		CellPhone:       "010-1111-2222",
		Email:           "kim@example.com",
		RequestedAmount: money(requested),
	})
	require.NoError(t, err)
	return app
}

// contractedApplication walks an application through judgment, grant, and
// contract.
func contractedApplication(t *testing.T, e *loan.Engine, requested, approval string) *loan.Application {
	t.Helper()
	ctx := context.Background()
	app := newApplication(t, e, requested)

	j, err := e.Judgments.Create(ctx, loan.JudgmentRequest{
		ApplicationID:  app.ID,
		Name:           "Kim",
		ApprovalAmount: money(approval),
	})
	require.NoError(t, err)
	_, err = e.Judgments.Grant(ctx, j.ID)
	require.NoError(t, err)

	app, err = e.Applications.Contract(ctx, app.ID)
	require.NoError(t, err)
	return app
}

// historySum recomputes the balance from active entries and repayments.
func historySum(t *testing.T, s loan.Store, appID loan.ApplicationID) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	sum := decimal.Zero

	entries, err := s.ListEntries(ctx, appID)
	require.NoError(t, err)
	for _, e := range entries {
		if !e.IsDeleted {
			sum = sum.Add(e.EntryAmount)
		}
	}
	repayments, err := s.ListRepayments(ctx, appID)
	require.NoError(t, err)
	for _, r := range repayments {
		if !r.IsDeleted {
			sum = sum.Add(r.Effect())
		}
	}
	return sum
}

func requireBalance(t *testing.T, e *loan.Engine, appID loan.ApplicationID, want string) {
	t.Helper()
	b, err := e.Balances.Get(context.Background(), appID)
	require.NoError(t, err)
	require.True(t, money(want).Equal(b.Balance), "balance: want %s, got %s", want, b.Balance)
}

// =============================================================================
// FLAKY STORE - loses the balance version check on demand
// =============================================================================

type flakyStore struct {
	*store.Memory
	lose atomic.Int32
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: store.NewMemory()}
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	return f.Memory.WithTx(ctx, func(tx loan.Store) error {
		return fn(&flakyTx{Store: tx, parent: f})
	})
}

type flakyTx struct {
	loan.Store
	parent *flakyStore
}

func (t *flakyTx) UpdateBalance(ctx context.Context, b *loan.Balance) error {
	if t.parent.lose.Add(-1) >= 0 {
		return loan.ErrConcurrentModification
	}
	return t.Store.UpdateBalance(ctx, b)
}
