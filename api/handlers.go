/*
handlers.go - HTTP API handlers for the loan lifecycle

PURPOSE:
  Exposes the loan engine via REST API. Handles HTTP request/response,
  JSON schema validation, and delegates every rule to the loan package.

ENDPOINTS:
  Counsels:
    POST   /counsels                              Create intake record
    GET    /counsels/{counselID}                  Get intake record
    PUT    /counsels/{counselID}                  Update intake record
    DELETE /counsels/{counselID}                  Soft-delete intake record

  Terms:
    POST   /terms                                 Add a catalog entry
    GET    /terms                                 List the catalog

  Applications:
    POST   /applications                          Create application
    GET    /applications/{applicationID}          Get application
    PUT    /applications/{applicationID}          Update application
    DELETE /applications/{applicationID}          Soft-delete application
    POST   /applications/{applicationID}/terms    Accept the whole catalog
    GET    /applications/{applicationID}/terms    List accepted terms
    PUT    /applications/{applicationID}/contract Contract the application

  Judgments:
    POST   /judgments                             Create judgment
    GET    /judgments/{judgmentID}                Get judgment
    GET    /judgments/applications/{applicationID} Get judgment by application
    PUT    /judgments/{judgmentID}                Update ungranted judgment
    DELETE /judgments/{judgmentID}                Soft-delete ungranted judgment
    PATCH  /judgments/{judgmentID}/grants         Grant the approval amount

  Ledger (ledger.go):
    /internal/applications/...                    Entries, balance, repayments

ERROR HANDLING:
  Domain errors map to HTTP status in writeDomainError:
  - 400: ValidationError or malformed body
  - 404: NotFoundError
  - 409: ConflictError (duplicate judgment, re-grant, balance conflict)
  - 500: anything else

SECURITY NOTE:
  No authentication or authorization. The /internal routes are expected to
  sit behind a private network boundary.

SEE ALSO:
  - dto.go: Request/response data structures
  - validation.go: Request body schemas
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every table. Both stores implement it.
type Resetter interface {
	Reset(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *loan.Engine
	Store  Resetter

	log *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over an engine and the store behind it.
func NewHandler(engine *loan.Engine, store Resetter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Store: store, log: log}
}

// =============================================================================
// COUNSEL HANDLERS
// =============================================================================

func (h *Handler) CreateCounsel(w http.ResponseWriter, r *http.Request) {
	var req CounselRequest
	if !h.decode(w, r, counselSchema, &req) {
		return
	}
	c, err := h.Engine.Counsels.Create(r.Context(), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCounselDTO(c))
}

func (h *Handler) GetCounsel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "counselID")
	if !ok {
		return
	}
	c, err := h.Engine.Counsels.Get(r.Context(), loan.CounselID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCounselDTO(c))
}

func (h *Handler) UpdateCounsel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "counselID")
	if !ok {
		return
	}
	var req CounselRequest
	if !h.decode(w, r, counselSchema, &req) {
		return
	}
	c, err := h.Engine.Counsels.Update(r.Context(), loan.CounselID(id), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCounselDTO(c))
}

func (h *Handler) DeleteCounsel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "counselID")
	if !ok {
		return
	}
	if err := h.Engine.Counsels.Delete(r.Context(), loan.CounselID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TERMS HANDLERS
// =============================================================================

func (h *Handler) CreateTerms(w http.ResponseWriter, r *http.Request) {
	var req TermsRequest
	if !h.decode(w, r, termsSchema, &req) {
		return
	}
	t, err := h.Engine.Terms.Create(r.Context(), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTermsDTO(t))
}

func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.Engine.Terms.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTermsDTOs(terms))
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req ApplicationRequest
	if !h.decode(w, r, applicationSchema, &req) {
		return
	}
	a, err := h.Engine.Applications.Create(r.Context(), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(a))
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	a, err := h.Engine.Applications.Get(r.Context(), loan.ApplicationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(a))
}

func (h *Handler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	var req ApplicationRequest
	if !h.decode(w, r, applicationSchema, &req) {
		return
	}
	a, err := h.Engine.Applications.Update(r.Context(), loan.ApplicationID(id), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(a))
}

func (h *Handler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	if err := h.Engine.Applications.Delete(r.Context(), loan.ApplicationID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptTerms records the applicant's acceptance of the full catalog.
func (h *Handler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	var req AcceptTermsRequest
	if !h.decode(w, r, acceptTermsSchema, &req) {
		return
	}
	if err := h.Engine.Applications.AcceptTerms(r.Context(), loan.ApplicationID(id), req.toDomain()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (h *Handler) ListAcceptedTerms(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	rows, err := h.Engine.Applications.AcceptedTerms(r.Context(), loan.ApplicationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAcceptedTermsDTOs(rows))
}

func (h *Handler) ContractApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	a, err := h.Engine.Applications.Contract(r.Context(), loan.ApplicationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(a))
}

// =============================================================================
// JUDGMENT HANDLERS
// =============================================================================

func (h *Handler) CreateJudgment(w http.ResponseWriter, r *http.Request) {
	var req JudgmentRequest
	if !h.decode(w, r, judgmentSchema, &req) {
		return
	}
	j, err := h.Engine.Judgments.Create(r.Context(), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJudgmentDTO(j))
}

func (h *Handler) GetJudgment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "judgmentID")
	if !ok {
		return
	}
	j, err := h.Engine.Judgments.Get(r.Context(), loan.JudgmentID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJudgmentDTO(j))
}

func (h *Handler) GetJudgmentByApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "applicationID")
	if !ok {
		return
	}
	j, err := h.Engine.Judgments.GetByApplication(r.Context(), loan.ApplicationID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJudgmentDTO(j))
}

func (h *Handler) UpdateJudgment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "judgmentID")
	if !ok {
		return
	}
	var req JudgmentRequest
	if !h.decode(w, r, judgmentUpdateSchema, &req) {
		return
	}
	j, err := h.Engine.Judgments.Update(r.Context(), loan.JudgmentID(id), req.toDomain())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJudgmentDTO(j))
}

func (h *Handler) DeleteJudgment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "judgmentID")
	if !ok {
		return
	}
	if err := h.Engine.Judgments.Delete(r.Context(), loan.JudgmentID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantJudgment copies the approval amount onto the application.
func (h *Handler) GrantJudgment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "judgmentID")
	if !ok {
		return
	}
	g, err := h.Engine.Judgments.Grant(r.Context(), loan.JudgmentID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, GrantDTO{
		ApplicationID:  int64(g.ApplicationID),
		ApprovalAmount: g.ApprovalAmount,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the loan error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case loan.IsNotFound(err):
		status = http.StatusNotFound
	case loan.IsValidation(err):
		status = http.StatusBadRequest
	case loan.IsConflict(err):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "Internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: loan.Code(err)})
}

// decode validates and decodes the body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, dst any) bool {
	if err := decodeJSON(r, schema, dst); err != nil {
		var re *requestError
		if errors.As(err, &re) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   re.msg,
				Code:    "invalid_request",
				Details: re.fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+param, err)
		return 0, false
	}
	return id, true
}
