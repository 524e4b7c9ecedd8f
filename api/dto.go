/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Request amounts accept a JSON number or a decimal string. Responses always
  carry amounts as decimal strings so no precision is lost in JavaScript
  clients.

MAPPING:
  Every conversion is an explicit to/from conversion function below.
  No reflection.

SEE ALSO:
  - validation.go: JSON schemas for the request bodies
  - handlers.go, ledger.go: Use these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CounselRequest struct {
	Name          string `json:"name"`
	CellPhone     string `json:"cell_phone"`
	Email         string `json:"email"`
	Memo          string `json:"memo"`
	Address       string `json:"address"`
	AddressDetail string `json:"address_detail"`
	ZipCode       string `json:"zip_code"`
}

type ApplicationRequest struct {
	Name            string          `json:"name"`
	CellPhone       string          `json:"cell_phone"`
	Email           string          `json:"email"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
}

type AcceptTermsRequest struct {
	AcceptTermsIDs []int64 `json:"accept_terms_ids"`
}

type TermsRequest struct {
	Name           string `json:"name"`
	TermsDetailURL string `json:"terms_detail_url"`
}

type JudgmentRequest struct {
	ApplicationID  int64           `json:"application_id"`
	Name           string          `json:"name"`
	ApprovalAmount decimal.Decimal `json:"approval_amount"`
}

type EntryRequest struct {
	EntryAmount decimal.Decimal `json:"entry_amount"`
}

type RepaymentRequest struct {
	Type            string          `json:"type"`
	RepaymentAmount decimal.Decimal `json:"repayment_amount"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type CounselDTO struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	CellPhone     string    `json:"cell_phone"`
	Email         string    `json:"email"`
	Memo          string    `json:"memo"`
	Address       string    `json:"address"`
	AddressDetail string    `json:"address_detail"`
	ZipCode       string    `json:"zip_code"`
	AppliedAt     time.Time `json:"applied_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ApplicationDTO struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	CellPhone       string           `json:"cell_phone"`
	Email           string           `json:"email"`
	RequestedAmount decimal.Decimal  `json:"requested_amount"`
	ApprovalAmount  *decimal.Decimal `json:"approval_amount"`
	AppliedAt       time.Time        `json:"applied_at"`
	ContractedAt    *time.Time       `json:"contracted_at"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type TermsDTO struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	TermsDetailURL string    `json:"terms_detail_url"`
	CreatedAt      time.Time `json:"created_at"`
}

type AcceptedTermsDTO struct {
	ApplicationID int64     `json:"application_id"`
	TermsID       int64     `json:"terms_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type JudgmentDTO struct {
	ID             int64           `json:"id"`
	ApplicationID  int64           `json:"application_id"`
	Name           string          `json:"name"`
	ApprovalAmount decimal.Decimal `json:"approval_amount"`
	GrantedAt      *time.Time      `json:"granted_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type GrantDTO struct {
	ApplicationID  int64           `json:"application_id"`
	ApprovalAmount decimal.Decimal `json:"approval_amount"`
}

type EntryDTO struct {
	ID            int64           `json:"id"`
	ApplicationID int64           `json:"application_id"`
	EntryAmount   decimal.Decimal `json:"entry_amount"`
	IsDeleted     bool            `json:"is_deleted"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type EntryUpdateDTO struct {
	EntryID           int64           `json:"entry_id"`
	ApplicationID     int64           `json:"application_id"`
	BeforeEntryAmount decimal.Decimal `json:"before_entry_amount"`
	AfterEntryAmount  decimal.Decimal `json:"after_entry_amount"`
}

type BalanceDTO struct {
	ApplicationID int64           `json:"application_id"`
	Balance       decimal.Decimal `json:"balance"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type RepaymentDTO struct {
	ID              int64           `json:"id"`
	ApplicationID   int64           `json:"application_id"`
	Type            string          `json:"type"`
	RepaymentAmount decimal.Decimal `json:"repayment_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type RepaymentUpdateDTO struct {
	RepaymentID           int64           `json:"repayment_id"`
	ApplicationID         int64           `json:"application_id"`
	BeforeType            string          `json:"before_type"`
	BeforeRepaymentAmount decimal.Decimal `json:"before_repayment_amount"`
	AfterType             string          `json:"after_type"`
	AfterRepaymentAmount  decimal.Decimal `json:"after_repayment_amount"`
	Balance               decimal.Decimal `json:"balance"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (r CounselRequest) toDomain() loan.CounselRequest {
	return loan.CounselRequest{
		Name:          r.Name,
		CellPhone:     r.CellPhone,
		Email:         r.Email,
		Memo:          r.Memo,
		Address:       r.Address,
		AddressDetail: r.AddressDetail,
		ZipCode:       r.ZipCode,
	}
}

func (r ApplicationRequest) toDomain() loan.ApplicationRequest {
	return loan.ApplicationRequest{
		Name:            r.Name,
		CellPhone:       r.CellPhone,
		Email:           r.Email,
		RequestedAmount: r.RequestedAmount,
	}
}

func (r AcceptTermsRequest) toDomain() loan.AcceptTermsRequest {
	ids := make([]loan.TermsID, len(r.AcceptTermsIDs))
	for i, id := range r.AcceptTermsIDs {
		ids[i] = loan.TermsID(id)
	}
	return loan.AcceptTermsRequest{AcceptTermsIDs: ids}
}

func (r TermsRequest) toDomain() loan.TermsRequest {
	return loan.TermsRequest{Name: r.Name, TermsDetailURL: r.TermsDetailURL}
}

func (r JudgmentRequest) toDomain() loan.JudgmentRequest {
	return loan.JudgmentRequest{
		ApplicationID:  loan.ApplicationID(r.ApplicationID),
		Name:           r.Name,
		ApprovalAmount: r.ApprovalAmount,
	}
}

func (r EntryRequest) toDomain() loan.EntryRequest {
	return loan.EntryRequest{EntryAmount: r.EntryAmount}
}

func (r RepaymentRequest) toDomain() loan.RepaymentRequest {
	return loan.RepaymentRequest{Type: loan.RepaymentType(r.Type), RepaymentAmount: r.RepaymentAmount}
}

func toCounselDTO(c *loan.Counsel) CounselDTO {
	return CounselDTO{
		ID:            int64(c.ID),
		Name:          c.Name,
		CellPhone:     c.CellPhone,
		Email:         c.Email,
		Memo:          c.Memo,
		Address:       c.Address,
		AddressDetail: c.AddressDetail,
		ZipCode:       c.ZipCode,
		AppliedAt:     c.AppliedAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toApplicationDTO(a *loan.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:              int64(a.ID),
		Name:            a.Name,
		CellPhone:       a.CellPhone,
		Email:           a.Email,
		RequestedAmount: a.RequestedAmount,
		AppliedAt:       a.AppliedAt,
		ContractedAt:    a.ContractedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.ApprovalAmount.Valid {
		amt := a.ApprovalAmount.Decimal
		dto.ApprovalAmount = &amt
	}
	return dto
}

func toTermsDTOs(ts []loan.Terms) []TermsDTO {
	out := make([]TermsDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTermsDTO(&t))
	}
	return out
}

func toTermsDTO(t *loan.Terms) TermsDTO {
	return TermsDTO{ID: int64(t.ID), Name: t.Name, TermsDetailURL: t.TermsDetailURL, CreatedAt: t.CreatedAt}
}

func toAcceptedTermsDTOs(rows []loan.AcceptedTerms) []AcceptedTermsDTO {
	out := make([]AcceptedTermsDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, AcceptedTermsDTO{
			ApplicationID: int64(r.ApplicationID),
			TermsID:       int64(r.TermsID),
			CreatedAt:     r.CreatedAt,
		})
	}
	return out
}

func toJudgmentDTO(j *loan.Judgment) JudgmentDTO {
	return JudgmentDTO{
		ID:             int64(j.ID),
		ApplicationID:  int64(j.ApplicationID),
		Name:           j.Name,
		ApprovalAmount: j.ApprovalAmount,
		GrantedAt:      j.GrantedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func toEntryDTO(e *loan.Entry) EntryDTO {
	return EntryDTO{
		ID:            int64(e.ID),
		ApplicationID: int64(e.ApplicationID),
		EntryAmount:   e.EntryAmount,
		IsDeleted:     e.IsDeleted,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toEntryDTOs(es []loan.Entry) []EntryDTO {
	out := make([]EntryDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toEntryDTO(&e))
	}
	return out
}

func toBalanceDTO(b *loan.Balance) BalanceDTO {
	return BalanceDTO{
		ApplicationID: int64(b.ApplicationID),
		Balance:       b.Balance,
		Version:       b.Version,
		UpdatedAt:     b.UpdatedAt,
	}
}

func toRepaymentDTO(r *loan.Repayment) RepaymentDTO {
	return RepaymentDTO{
		ID:              int64(r.ID),
		ApplicationID:   int64(r.ApplicationID),
		Type:            string(r.Type),
		RepaymentAmount: r.RepaymentAmount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toRepaymentDTOs(rs []loan.Repayment) []RepaymentDTO {
	out := make([]RepaymentDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRepaymentDTO(&r))
	}
	return out
}

func toRepaymentUpdateDTO(r *loan.RepaymentUpdateResult) RepaymentUpdateDTO {
	return RepaymentUpdateDTO{
		RepaymentID:           int64(r.RepaymentID),
		ApplicationID:         int64(r.ApplicationID),
		BeforeType:            string(r.BeforeType),
		BeforeRepaymentAmount: r.BeforeRepaymentAmount,
		AfterType:             string(r.AfterType),
		AfterRepaymentAmount:  r.AfterRepaymentAmount,
		Balance:               r.Balance,
	}
}
