package api

import (
	"net/http"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// ENTRY HANDLERS (disbursements)
// =============================================================================

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	var req EntryRequest
	if !h.decode(w, r, entrySchema, &req) {
		return
	}
	e, err := h.Engine.Entries.Create(r.Context(), loan.ApplicationID(appID), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// GetEntry returns the latest live entry of the application.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	e, err := h.Engine.Entries.Get(r.Context(), loan.ApplicationID(appID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// ListEntries returns the full disbursement history, deleted rows included.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	es, err := h.Engine.Entries.List(r.Context(), loan.ApplicationID(appID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(es))
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "entryID")
	if !ok {
		return
	}
	var req EntryRequest
	if !h.decode(w, r, entrySchema, &req) {
		return
	}
	res, err := h.Engine.Entries.Update(r.Context(), loan.EntryID(id), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EntryUpdateDTO{
		EntryID:           int64(res.EntryID),
		ApplicationID:     int64(res.ApplicationID),
		BeforeEntryAmount: res.BeforeEntryAmount,
		AfterEntryAmount:  res.AfterEntryAmount,
	})
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "entryID")
	if !ok {
		return
	}
	if err := h.Engine.Entries.Delete(r.Context(), loan.EntryID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	b, err := h.Engine.Balances.Get(r.Context(), loan.ApplicationID(appID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// REPAYMENT HANDLERS
// =============================================================================

func (h *Handler) CreateRepayment(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	var req RepaymentRequest
	if !h.decode(w, r, repaymentSchema, &req) {
		return
	}
	rp, err := h.Engine.Repayments.Create(r.Context(), loan.ApplicationID(appID), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRepaymentDTO(rp))
}

func (h *Handler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	rs, err := h.Engine.Repayments.List(r.Context(), loan.ApplicationID(appID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepaymentDTOs(rs))
}

func (h *Handler) UpdateRepayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "repaymentID")
	if !ok {
		return
	}
	var req RepaymentRequest
	if !h.decode(w, r, repaymentSchema, &req) {
		return
	}
	res, err := h.Engine.Repayments.Update(r.Context(), loan.RepaymentID(id), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRepaymentUpdateDTO(res))
}

func (h *Handler) DeleteRepayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "repaymentID")
	if !ok {
		return
	}
	if err := h.Engine.Repayments.Delete(r.Context(), loan.RepaymentID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
