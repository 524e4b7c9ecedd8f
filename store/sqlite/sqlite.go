/*
Package sqlite provides a SQLite-backed loan.TxStore.

PURPOSE:
  Development and single-node deployments. Queries live in store/sqlstore;
  this package supplies the schema, the driver options and how go-sqlite3
  reports constraint violations.

MONEY COLUMNS:
  Amounts are stored as TEXT holding the decimal string, never REAL, so a
  value reads back exactly as written.

CONCURRENCY:
  SQLite allows one writer at a time. The pool is capped at one connection and
  transactions begin IMMEDIATE, so the write lock is taken up front instead of
  being upgraded mid-transaction. ":memory:" databases also need the single
  connection, since every new connection would open an empty database.

WAL MODE:
  File databases are opened in WAL mode so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/loan.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := loan.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/loan-engine/store/sqlstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS counsels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	cell_phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	memo TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	address_detail TEXT NOT NULL DEFAULT '',
	zip_code TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMP NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	cell_phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	requested_amount TEXT NOT NULL,
	approval_amount TEXT,
	applied_at TIMESTAMP NOT NULL,
	contracted_at TIMESTAMP,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	terms_detail_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS accepted_terms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER NOT NULL REFERENCES applications(id),
	terms_id INTEGER NOT NULL REFERENCES terms(id),
	created_at TIMESTAMP NOT NULL,
	UNIQUE (application_id, terms_id)
);

CREATE TABLE IF NOT EXISTS judgments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER NOT NULL REFERENCES applications(id),
	name TEXT NOT NULL DEFAULT '',
	approval_amount TEXT NOT NULL,
	granted_at TIMESTAMP,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

-- One live judgment per application
CREATE UNIQUE INDEX IF NOT EXISTS idx_judgments_live_application
	ON judgments(application_id) WHERE is_deleted = 0;

CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER NOT NULL REFERENCES applications(id),
	entry_amount TEXT NOT NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_application ON entries(application_id);

CREATE TABLE IF NOT EXISTS balances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER NOT NULL UNIQUE REFERENCES applications(id),
	balance TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS repayments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER NOT NULL REFERENCES applications(id),
	repayment_amount TEXT NOT NULL,
	repayment_type TEXT NOT NULL CHECK (repayment_type IN ('ADD', 'REMOVE')),
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repayments_application ON repayments(application_id);
`

// Dialect is the SQLite flavour of the shared store.
var Dialect = sqlstore.Dialect{
	Schema:            schema,
	IsUniqueViolation: isUniqueConstraintError,
}

// New opens (or creates) a SQLite database and migrates it.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*sqlstore.Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
