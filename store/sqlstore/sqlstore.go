/*
Package sqlstore provides the sqlx-backed loan.TxStore shared by the SQLite
and PostgreSQL stores.

PURPOSE:
  All queries are written once with '?' placeholders and rebound for the
  driver. A Dialect supplies what differs between engines: the schema and how
  the driver reports a unique-constraint violation.

KEY TABLES:
  counsels, applications, terms, accepted_terms, judgments, entries,
  balances, repayments

  Rows are never deleted; is_deleted flips instead.

CONSTRAINTS:
  - accepted_terms(application_id, terms_id) is unique; re-acceptance is a no-op
  - at most one live judgment per application (partial unique index)
  - balances(application_id) is unique

BALANCE VERSIONING:
  UpdateBalance issues

    UPDATE balances SET ..., version = version + 1
    WHERE application_id = ? AND version = ?

  and reports loan.ErrConcurrentModification when no row matched.

TRANSACTIONS:
  Store and its transactional view share one implementation (conn) that runs
  against either *sqlx.DB or *sqlx.Tx. Inside WithTx every read and write
  goes through the transaction.

SEE ALSO:
  - store/sqlite: SQLite dialect and constructor
  - store/postgres: PostgreSQL dialect and constructor
  - loan/store.go: interface definitions
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/warp/loan-engine/loan"
)

// Dialect captures what differs between database engines.
type Dialect struct {
	// Schema is executed by Migrate. It must be idempotent.
	Schema string
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(error) bool
}

// Store implements loan.TxStore over a sqlx database handle.
type Store struct {
	*conn
	db *sqlx.DB
}

// New wraps an open database. Call Migrate before first use.
func New(db *sqlx.DB, d Dialect) *Store {
	return &Store{conn: &conn{q: db, d: d}, db: db}
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.d.Schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx, d: s.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset clears all tables. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(st loan.Store) error {
		c := st.(*conn)
		for _, table := range []string{
			"repayments", "balances", "entries", "judgments",
			"accepted_terms", "terms", "applications", "counsels",
		} {
			if _, err := c.q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

var _ loan.TxStore = (*Store)(nil)

// =============================================================================
// QUERY HELPERS
// =============================================================================

type conn struct {
	q sqlx.ExtContext
	d Dialect
}

// insert runs an INSERT ... RETURNING id.
func (c *conn) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := c.q.QueryRowxContext(ctx, c.q.Rebind(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// get loads one row into dest. found is false when there is no row.
func (c *conn) get(ctx context.Context, dest any, query string, args ...any) (found bool, err error) {
	err = sqlx.GetContext(ctx, c.q, dest, c.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *conn) list(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

// update runs a statement that must touch exactly one row.
func (c *conn) update(ctx context.Context, kind string, id int64, query string, args ...any) error {
	res, err := c.q.ExecContext(ctx, c.q.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &loan.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func (c *conn) duplicate(err error, code, msg string) error {
	if c.d.IsUniqueViolation != nil && c.d.IsUniqueViolation(err) {
		return &loan.ConflictError{Code: code, Message: msg, Err: err}
	}
	return err
}

// getOne is the (nil, nil)-on-miss lookup used by every Get method.
func getOne[T any](ctx context.Context, c *conn, query string, args ...any) (*T, error) {
	var v T
	found, err := c.get(ctx, &v, query, args...)
	if err != nil || !found {
		return nil, err
	}
	return &v, nil
}
