/*
Package postgres provides a PostgreSQL-backed loan.TxStore using lib/pq.

PURPOSE:
  Production deployments with more than one API replica. Queries live in
  store/sqlstore. This package supplies the schema with NUMERIC money columns
  and the unique-violation check (SQLSTATE 23505).

CONCURRENCY:
  Transactions run at READ COMMITTED. The balance UPDATE waits on the row lock
  of a concurrent writer, then re-checks its version predicate against the
  committed row. A lost race therefore reports zero rows affected and the
  ledger retries.
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/warp/loan-engine/store/sqlstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS counsels (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	cell_phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	memo TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	address_detail TEXT NOT NULL DEFAULT '',
	zip_code TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	cell_phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	requested_amount NUMERIC(20, 2) NOT NULL,
	approval_amount NUMERIC(20, 2),
	applied_at TIMESTAMPTZ NOT NULL,
	contracted_at TIMESTAMPTZ,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS terms (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	terms_detail_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS accepted_terms (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	terms_id BIGINT NOT NULL REFERENCES terms(id),
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (application_id, terms_id)
);

CREATE TABLE IF NOT EXISTS judgments (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	name TEXT NOT NULL DEFAULT '',
	approval_amount NUMERIC(20, 2) NOT NULL,
	granted_at TIMESTAMPTZ,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_judgments_live_application
	ON judgments(application_id) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS entries (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	entry_amount NUMERIC(20, 2) NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_application ON entries(application_id);

CREATE TABLE IF NOT EXISTS balances (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL UNIQUE REFERENCES applications(id),
	balance NUMERIC(20, 2) NOT NULL,
	version BIGINT NOT NULL DEFAULT 1,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS repayments (
	id BIGSERIAL PRIMARY KEY,
	application_id BIGINT NOT NULL REFERENCES applications(id),
	repayment_amount NUMERIC(20, 2) NOT NULL,
	repayment_type TEXT NOT NULL CHECK (repayment_type IN ('ADD', 'REMOVE')),
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repayments_application ON repayments(application_id);
`

// Dialect is the PostgreSQL flavour of the shared store.
var Dialect = sqlstore.Dialect{
	Schema:            schema,
	IsUniqueViolation: isUniqueViolation,
}

// Config holds pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects, verifies the connection and migrates the schema.
func Open(ctx context.Context, cfg Config) (*sqlstore.Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := New(db.DB)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection without migrating.
func New(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(sqlx.NewDb(db, "postgres"), Dialect)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
