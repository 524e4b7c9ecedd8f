package postgres

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/loan"
)

func TestPostgres_CreateApplication_UsesDollarPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO applications`) + `.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)\s+RETURNING id`).
		WithArgs("Kim", "010", "kim@example.com", "1000000", nil, sqlmock.AnyArg(), nil, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	app := &loan.Application{
		Name: "Kim", CellPhone: "010", Email: "kim@example.com",
		RequestedAmount: decimal.RequireFromString("1000000"),
		AppliedAt:       now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateApplication(context.Background(), app))

	assert.EqualValues(t, 7, app.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BalanceReadModifyWrite(t *testing.T) {
	// GIVEN: a balance at version 3
	// WHEN: the ledger applies a delta inside a transaction
	// THEN: the UPDATE is guarded by version and bumps it
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM balances WHERE application_id = \$1`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "balance", "version", "is_deleted", "created_at", "updated_at"}).
			AddRow(1, 11, "500000.00", 3, false, now, now))
	mock.ExpectExec(`UPDATE balances SET .+ WHERE application_id = \$4 AND version = \$5`).
		WithArgs("300000", false, sqlmock.AnyArg(), int64(11), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.WithTx(ctx, func(tx loan.Store) error {
		b, err := tx.GetBalance(ctx, 11)
		if err != nil {
			return err
		}
		b.Balance = b.Balance.Sub(decimal.RequireFromString("500000")).Add(decimal.RequireFromString("300000"))
		b.UpdatedAt = now
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return err
		}
		assert.EqualValues(t, 4, b.Version)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateBalance_VersionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectExec(`UPDATE balances SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	b := &loan.Balance{ApplicationID: 11, Balance: decimal.RequireFromString("1"), Version: 3}
	err = s.UpdateBalance(context.Background(), b)

	assert.ErrorIs(t, err, loan.ErrConcurrentModification)
	assert.EqualValues(t, 3, b.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DuplicateJudgmentIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectQuery(`INSERT INTO judgments`).
		WillReturnError(&pq.Error{Code: "23505"})

	err = s.CreateJudgment(context.Background(), &loan.Judgment{ApplicationID: 3, ApprovalAmount: decimal.RequireFromString("5")})

	require.True(t, loan.IsConflict(err))
	assert.Equal(t, loan.CodeJudgmentExists, loan.Code(err))
}

func TestPostgres_DuplicateBalanceIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectQuery(`INSERT INTO balances`).
		WillReturnError(&pq.Error{Code: "23505"})

	err = s.CreateBalance(context.Background(), &loan.Balance{ApplicationID: 3, Balance: decimal.RequireFromString("5")})

	assert.True(t, loan.IsRetryable(err))
}

func TestPostgres_RollbackOnDomainError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM applications WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err = s.WithTx(ctx, func(tx loan.Store) error {
		app, err := tx.GetApplication(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, app)
		return &loan.NotFoundError{Kind: "application", ID: 5}
	})

	assert.True(t, loan.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	ctx := context.Background()

	s, err := Open(ctx, Config{DSN: dsn, MaxOpenConns: 5})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Reset(ctx))

	e := loan.NewEngine(s)
	app, err := e.Applications.Create(ctx, loan.ApplicationRequest{Name: "Kim", RequestedAmount: decimal.RequireFromString("1000000")})
	require.NoError(t, err)
	j, err := e.Judgments.Create(ctx, loan.JudgmentRequest{ApplicationID: app.ID, Name: "Kim", ApprovalAmount: decimal.RequireFromString("500000")})
	require.NoError(t, err)
	_, err = e.Judgments.Grant(ctx, j.ID)
	require.NoError(t, err)
	_, err = e.Applications.Contract(ctx, app.ID)
	require.NoError(t, err)

	entry, err := e.Entries.Create(ctx, app.ID, loan.EntryRequest{EntryAmount: decimal.RequireFromString("500000")})
	require.NoError(t, err)
	_, err = e.Entries.Update(ctx, entry.ID, loan.EntryRequest{EntryAmount: decimal.RequireFromString("300000")})
	require.NoError(t, err)

	b, err := e.Balances.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("300000").Equal(b.Balance))
}
