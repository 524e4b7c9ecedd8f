/*
Package loan provides the loan lifecycle state machine and the running-balance ledger.

PURPOSE:
  An application moves through a fixed sequence of gates:

    Application -> AcceptTerms -> Judgment -> Grant -> Contract -> Entry -> Balance

  Each gate is enforced here regardless of call order. Once contracted,
  disbursements (entries) and repayments adjust a single running balance per
  application that must always equal the signed sum of its active history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: ApplicationID, JudgmentID, EntryID, ...
  - Records: Application, Terms, AcceptedTerms, Judgment, Entry, Balance,
    Repayment, Counsel
  - Request/result shapes passed between the HTTP boundary and the services

MONEY:
  Every amount is a decimal.Decimal. There is no float arithmetic anywhere in
  the ledger, and each balance mutation is a subtract-then-add of two decimals.

SOFT DELETE:
  Rows are never removed. IsDeleted flips and the row stops contributing to
  the balance.

SEE ALSO:
  - errors.go: NotFound / Validation / Conflict taxonomy
  - store.go: persistence interfaces
  - balance.go: the only writer of Balance.Balance
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ApplicationID int64
type TermsID int64
type AcceptedTermsID int64
type JudgmentID int64
type EntryID int64
type BalanceID int64
type RepaymentID int64
type CounselID int64

// =============================================================================
// APPLICATION
// =============================================================================

// Application is one loan request.
//
// INVARIANT: ContractedAt != nil implies ApprovalAmount is valid and positive
// and a Judgment exists for this application.
type Application struct {
	ID              ApplicationID       `db:"id"`
	Name            string              `db:"name"`
	CellPhone       string              `db:"cell_phone"`
	Email           string              `db:"email"`
	RequestedAmount decimal.Decimal     `db:"requested_amount"`
	ApprovalAmount  decimal.NullDecimal `db:"approval_amount"`
	AppliedAt       time.Time           `db:"applied_at"`
	ContractedAt    *time.Time          `db:"contracted_at"`
	IsDeleted       bool                `db:"is_deleted"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

// IsContracted reports whether the contract gate has been passed.
func (a *Application) IsContracted() bool { return a.ContractedAt != nil }

// ApplicationRequest carries the client-editable fields of an application.
type ApplicationRequest struct {
	Name            string
	CellPhone       string
	Email           string
	RequestedAmount decimal.Decimal
}

// AcceptTermsRequest lists the catalog ids the applicant agreed to.
type AcceptTermsRequest struct {
	AcceptTermsIDs []TermsID
}

// =============================================================================
// TERMS
// =============================================================================

// Terms is an immutable catalog entry.
type Terms struct {
	ID             TermsID   `db:"id"`
	Name           string    `db:"name"`
	TermsDetailURL string    `db:"terms_detail_url"`
	CreatedAt      time.Time `db:"created_at"`
}

type TermsRequest struct {
	Name           string
	TermsDetailURL string
}

// AcceptedTerms records one (application, terms) acceptance.
type AcceptedTerms struct {
	ID            AcceptedTermsID `db:"id"`
	ApplicationID ApplicationID   `db:"application_id"`
	TermsID       TermsID         `db:"terms_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

// =============================================================================
// JUDGMENT
// =============================================================================

// Judgment is the credit decision for an application. At most one live
// judgment exists per application. GrantedAt is terminal: once set, the
// approval amount is frozen and the judgment cannot be granted again.
type Judgment struct {
	ID             JudgmentID      `db:"id"`
	ApplicationID  ApplicationID   `db:"application_id"`
	Name           string          `db:"name"`
	ApprovalAmount decimal.Decimal `db:"approval_amount"`
	GrantedAt      *time.Time      `db:"granted_at"`
	IsDeleted      bool            `db:"is_deleted"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (j *Judgment) IsGranted() bool { return j.GrantedAt != nil }

type JudgmentRequest struct {
	ApplicationID  ApplicationID
	Name           string
	ApprovalAmount decimal.Decimal
}

// GrantResult is what the grant copied onto the application.
type GrantResult struct {
	ApplicationID  ApplicationID
	ApprovalAmount decimal.Decimal
}

// =============================================================================
// ENTRY (disbursement)
// =============================================================================

type Entry struct {
	ID            EntryID         `db:"id"`
	ApplicationID ApplicationID   `db:"application_id"`
	EntryAmount   decimal.Decimal `db:"entry_amount"`
	IsDeleted     bool            `db:"is_deleted"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type EntryRequest struct {
	EntryAmount decimal.Decimal
}

// EntryUpdateResult keeps both sides of an amount change for audit.
type EntryUpdateResult struct {
	EntryID           EntryID
	ApplicationID     ApplicationID
	BeforeEntryAmount decimal.Decimal
	AfterEntryAmount  decimal.Decimal
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the running principal outstanding for one application.
// Version increases on every write and guards concurrent read-modify-write.
type Balance struct {
	ID            BalanceID       `db:"id"`
	ApplicationID ApplicationID   `db:"application_id"`
	Balance       decimal.Decimal `db:"balance"`
	Version       int64           `db:"version"`
	IsDeleted     bool            `db:"is_deleted"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// BalanceDelta replaces a previous contribution with a new one:
// balance := balance - Before + After.
type BalanceDelta struct {
	Before decimal.Decimal
	After  decimal.Decimal
}

// =============================================================================
// REPAYMENT
// =============================================================================

type RepaymentType string

const (
	// RepaymentAdd records money paid back; it lowers the balance owed.
	RepaymentAdd RepaymentType = "ADD"
	// RepaymentRemove reverses a payment; it raises the balance owed.
	RepaymentRemove RepaymentType = "REMOVE"
)

func (t RepaymentType) Valid() bool {
	return t == RepaymentAdd || t == RepaymentRemove
}

type Repayment struct {
	ID              RepaymentID     `db:"id"`
	ApplicationID   ApplicationID   `db:"application_id"`
	RepaymentAmount decimal.Decimal `db:"repayment_amount"`
	Type            RepaymentType   `db:"repayment_type"`
	IsDeleted       bool            `db:"is_deleted"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Effect is the signed contribution of this repayment to the balance.
func (r *Repayment) Effect() decimal.Decimal {
	return repaymentEffect(r.Type, r.RepaymentAmount)
}

func repaymentEffect(t RepaymentType, amount decimal.Decimal) decimal.Decimal {
	if t == RepaymentAdd {
		return amount.Neg()
	}
	return amount
}

type RepaymentRequest struct {
	Type            RepaymentType
	RepaymentAmount decimal.Decimal
}

type RepaymentUpdateResult struct {
	RepaymentID           RepaymentID
	ApplicationID         ApplicationID
	BeforeType            RepaymentType
	BeforeRepaymentAmount decimal.Decimal
	AfterType             RepaymentType
	AfterRepaymentAmount  decimal.Decimal
	Balance               decimal.Decimal
}

// =============================================================================
// COUNSEL (intake)
// =============================================================================

// Counsel is a pre-application consultation record. It has no lifecycle.
type Counsel struct {
	ID            CounselID `db:"id"`
	Name          string    `db:"name"`
	CellPhone     string    `db:"cell_phone"`
	Email         string    `db:"email"`
	Memo          string    `db:"memo"`
	Address       string    `db:"address"`
	AddressDetail string    `db:"address_detail"`
	ZipCode       string    `db:"zip_code"`
	AppliedAt     time.Time `db:"applied_at"`
	IsDeleted     bool      `db:"is_deleted"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type CounselRequest struct {
	Name          string
	CellPhone     string
	Email         string
	Memo          string
	Address       string
	AddressDetail string
	ZipCode       string
}
