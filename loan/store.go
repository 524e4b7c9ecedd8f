/*
store.go - Persistence interfaces for the loan engine

PURPOSE:
  Defines the boundary between lifecycle/ledger rules and the database.
  Services never build SQL; they call these methods inside WithTx so that an
  entry and its balance adjustment commit together or not at all.

LOOKUP CONTRACT:
  Get* methods return (nil, nil) when the row does not exist. Services turn
  that into a NotFoundError. Soft-deleted rows ARE returned; filtering is a
  service decision.

BALANCE CONTRACT:
  UpdateBalance is a compare-and-swap on Balance.Version. If the stored
  version differs from b.Version the store returns ErrConcurrentModification
  and writes nothing. On success it increments b.Version.

IMPLEMENTATIONS:
  - loan/store/memory.go: in-memory, for tests and dev
  - store/sqlstore: sqlx-backed, shared by store/sqlite and store/postgres
*/
package loan

import "context"

// Store is the per-entity repository used by the services.
type Store interface {
	CreateCounsel(ctx context.Context, c *Counsel) error
	GetCounsel(ctx context.Context, id CounselID) (*Counsel, error)
	UpdateCounsel(ctx context.Context, c *Counsel) error

	CreateApplication(ctx context.Context, a *Application) error
	GetApplication(ctx context.Context, id ApplicationID) (*Application, error)
	UpdateApplication(ctx context.Context, a *Application) error

	CreateTerms(ctx context.Context, t *Terms) error
	// ListTerms returns the full catalog ordered by id ascending.
	ListTerms(ctx context.Context) ([]Terms, error)

	// CreateAcceptedTerms writes all rows or none. Re-accepting an
	// existing (application, terms) pair is a no-op.
	CreateAcceptedTerms(ctx context.Context, rows []AcceptedTerms) error
	ListAcceptedTerms(ctx context.Context, applicationID ApplicationID) ([]AcceptedTerms, error)

	CreateJudgment(ctx context.Context, j *Judgment) error
	GetJudgment(ctx context.Context, id JudgmentID) (*Judgment, error)
	// GetJudgmentByApplication returns the live (not deleted) judgment.
	GetJudgmentByApplication(ctx context.Context, applicationID ApplicationID) (*Judgment, error)
	UpdateJudgment(ctx context.Context, j *Judgment) error

	CreateEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)
	// GetLatestEntry returns the most recent non-deleted entry.
	GetLatestEntry(ctx context.Context, applicationID ApplicationID) (*Entry, error)
	// ListEntries returns every entry, deleted included, ordered by id.
	ListEntries(ctx context.Context, applicationID ApplicationID) ([]Entry, error)
	UpdateEntry(ctx context.Context, e *Entry) error

	CreateBalance(ctx context.Context, b *Balance) error
	GetBalance(ctx context.Context, applicationID ApplicationID) (*Balance, error)
	UpdateBalance(ctx context.Context, b *Balance) error

	CreateRepayment(ctx context.Context, r *Repayment) error
	GetRepayment(ctx context.Context, id RepaymentID) (*Repayment, error)
	// ListRepayments returns every repayment, deleted included, ordered by id.
	ListRepayments(ctx context.Context, applicationID ApplicationID) ([]Repayment, error)
	UpdateRepayment(ctx context.Context, r *Repayment) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Locker serializes ledger mutations per key across requests.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
