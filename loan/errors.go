/*
errors.go - Error taxonomy for the loan engine

ERROR CATEGORIES:
  1. NotFound   - a referenced application/judgment/entry/balance/... is absent
  2. Validation - a lifecycle gate or business rule rejected the request
  3. Conflict   - the request collides with existing state (duplicate
                  judgment, re-grant, exhausted balance version retries)

  Each category has a sentinel for errors.Is() and a structured type that
  carries context. Errors propagate unmodified to the HTTP boundary, which maps
  them to 404 / 400 / 409.

RETRIES:
  ErrConcurrentModification is the only retryable error. It is produced by the
  store when a balance version check fails, retried by the ledger, and
  surfaced as a ConflictError once retries run out.
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	// ErrConcurrentModification is returned by a store when the balance
	// version no longer matches the version that was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Validation codes.
const (
	CodeTermsCatalogEmpty   = "terms_catalog_empty"
	CodeTermsMismatch       = "terms_mismatch"
	CodeJudgmentRequired    = "judgment_required"
	CodeApprovalAmount      = "approval_amount_not_positive"
	CodeNotContracted       = "application_not_contracted"
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidRepayment    = "invalid_repayment_type"
	CodeJudgmentExists      = "judgment_exists"
	CodeAlreadyGranted      = "judgment_already_granted"
	CodeAlreadyContracted   = "application_already_contracted"
	CodeBalanceConflict     = "balance_conflict"
	CodeDuplicate           = "duplicate"
	CodeRequiredFieldAbsent = "required_field_missing"
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError is a rejected lifecycle transition or bad input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError wraps ErrConflict and, optionally, the underlying cause.
type ConflictError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

func notFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalid(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func conflict(code, format string, args ...any) error {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) && !errors.Is(err, ErrConflict)
}

// Code returns the machine-readable code carried by a domain error, or "".
func Code(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Code
	}
	var c *ConflictError
	if errors.As(err, &c) {
		return c.Code
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Kind + "_not_found"
	}
	return ""
}
