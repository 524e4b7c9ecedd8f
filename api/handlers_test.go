/*
handlers_test.go - HTTP tests for the lifecycle and ledger routes

Tests for:
- The full application lifecycle over HTTP
- Status code mapping of NotFound / Validation / Conflict
- Ledger routes keeping the balance equal to the active history
- Request body validation, rate limiting, health and metrics
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/loan/store"
)

func newTestRouter(t *testing.T, opts RouterOptions) (http.Handler, *Handler) {
	t.Helper()
	log := zaptest.NewLogger(t)
	mem := store.NewMemory()
	h := NewHandler(loan.NewEngine(mem, loan.WithLogger(log)), mem, log)
	opts.Logger = log
	return NewRouter(h, opts), h
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

// seedTerms creates n catalog entries and returns their ids.
func seedTerms(t *testing.T, router http.Handler, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		rec := do(t, router, http.MethodPost, "/terms", map[string]string{
			"name":             fmt.Sprintf("terms-%d", i),
			"terms_detail_url": fmt.Sprintf("https://example.com/terms/%d", i),
		})
		requireStatus(t, rec, http.StatusCreated)
		ids = append(ids, decodeBody[TermsDTO](t, rec).ID)
	}
	return ids
}

func createApplication(t *testing.T, router http.Handler, requested string) int64 {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/applications", map[string]any{
		"name":             "Kim",
		"cell_phone":       "010-1111-2222",
		"email":            "kim@example.com",
		"requested_amount": requested,
	})
	requireStatus(t, rec, http.StatusCreated)
	return decodeBody[ApplicationDTO](t, rec).ID
}

// contractOverHTTP takes an application through judgment, grant, and contract.
func contractOverHTTP(t *testing.T, router http.Handler, appID int64, approval string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/judgments", map[string]any{
		"application_id":  appID,
		"name":            "Kim",
		"approval_amount": approval,
	})
	requireStatus(t, rec, http.StatusCreated)
	jID := decodeBody[JudgmentDTO](t, rec).ID

	requireStatus(t, do(t, router, http.MethodPatch, fmt.Sprintf("/judgments/%d/grants", jID), nil), http.StatusOK)
	requireStatus(t, do(t, router, http.MethodPut, fmt.Sprintf("/applications/%d/contract", appID), nil), http.StatusOK)
}

func balanceOf(t *testing.T, router http.Handler, appID int64) decimal.Decimal {
	t.Helper()
	rec := do(t, router, http.MethodGet, fmt.Sprintf("/internal/applications/%d/balance", appID), nil)
	requireStatus(t, rec, http.StatusOK)
	return decodeBody[BalanceDTO](t, rec).Balance
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestLifecycle_FullFlowOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: A catalog of three terms and a new application
	termIDs := seedTerms(t, router, 3)
	appID := createApplication(t, router, "1500000")

	// WHEN: The applicant accepts only two of the three terms
	rec := do(t, router, http.MethodPost, fmt.Sprintf("/applications/%d/terms", appID),
		map[string]any{"accept_terms_ids": termIDs[:2]})

	// THEN: The request is rejected with terms_mismatch
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, loan.CodeTermsMismatch, decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: The full catalog is accepted, in any order
	rec = do(t, router, http.MethodPost, fmt.Sprintf("/applications/%d/terms", appID),
		map[string]any{"accept_terms_ids": []int64{termIDs[2], termIDs[0], termIDs[1]}})
	requireStatus(t, rec, http.StatusOK)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/applications/%d/terms", appID), nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Len(t, decodeBody[[]AcceptedTermsDTO](t, rec), 3)

	// WHEN: Contract is attempted before any judgment
	rec = do(t, router, http.MethodPut, fmt.Sprintf("/applications/%d/contract", appID), nil)

	// THEN: The contract gate rejects it
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, loan.CodeJudgmentRequired, decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: A judgment is created and granted
	rec = do(t, router, http.MethodPost, "/judgments", map[string]any{
		"application_id":  appID,
		"name":            "Kim",
		"approval_amount": 1000000,
	})
	requireStatus(t, rec, http.StatusCreated)
	jID := decodeBody[JudgmentDTO](t, rec).ID

	rec = do(t, router, http.MethodPatch, fmt.Sprintf("/judgments/%d/grants", jID), nil)
	requireStatus(t, rec, http.StatusOK)
	grant := decodeBody[GrantDTO](t, rec)

	// THEN: The approval amount is copied onto the application exactly
	assert.True(t, grant.ApprovalAmount.Equal(decimal.NewFromInt(1_000_000)))
	rec = do(t, router, http.MethodGet, fmt.Sprintf("/applications/%d", appID), nil)
	requireStatus(t, rec, http.StatusOK)
	app := decodeBody[ApplicationDTO](t, rec)
	require.NotNil(t, app.ApprovalAmount)
	assert.True(t, app.ApprovalAmount.Equal(decimal.NewFromInt(1_000_000)))
	assert.Nil(t, app.ContractedAt)

	// AND: A second grant conflicts
	rec = do(t, router, http.MethodPatch, fmt.Sprintf("/judgments/%d/grants", jID), nil)
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, loan.CodeAlreadyGranted, decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: The application is contracted
	rec = do(t, router, http.MethodPut, fmt.Sprintf("/applications/%d/contract", appID), nil)

	// THEN: contracted_at is set
	requireStatus(t, rec, http.StatusOK)
	assert.NotNil(t, decodeBody[ApplicationDTO](t, rec).ContractedAt)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/judgments/applications/%d", appID), nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, jID, decodeBody[JudgmentDTO](t, rec).ID)
}

func TestJudgment_SecondLiveJudgmentConflicts(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: An application with a judgment
	appID := createApplication(t, router, "1000")
	body := map[string]any{"application_id": appID, "name": "Kim", "approval_amount": "500"}
	requireStatus(t, do(t, router, http.MethodPost, "/judgments", body), http.StatusCreated)

	// WHEN: A second judgment is submitted for the same application
	rec := do(t, router, http.MethodPost, "/judgments", body)

	// THEN: It conflicts
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, loan.CodeJudgmentExists, decodeBody[ErrorResponse](t, rec).Code)
}

func TestCounsel_CRUD(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: A counsel record
	rec := do(t, router, http.MethodPost, "/counsels", map[string]string{
		"name":     "Park",
		"memo":     "asked about rates",
		"zip_code": "06236",
	})
	requireStatus(t, rec, http.StatusCreated)
	id := decodeBody[CounselDTO](t, rec).ID

	// WHEN: It is updated
	rec = do(t, router, http.MethodPut, fmt.Sprintf("/counsels/%d", id), map[string]string{
		"name": "Park",
		"memo": "called back",
	})

	// THEN: The new memo is returned
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "called back", decodeBody[CounselDTO](t, rec).Memo)

	// WHEN: It is deleted
	requireStatus(t, do(t, router, http.MethodDelete, fmt.Sprintf("/counsels/%d", id), nil), http.StatusNoContent)

	// THEN: It is no longer found
	requireStatus(t, do(t, router, http.MethodGet, fmt.Sprintf("/counsels/%d", id), nil), http.StatusNotFound)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_EntryAndRepaymentRoutesKeepBalance(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: A contracted application
	appID := createApplication(t, router, "1000000")
	contractOverHTTP(t, router, appID, "1000000")
	base := fmt.Sprintf("/internal/applications/%d", appID)

	// WHEN: 1,000,000 is disbursed
	rec := do(t, router, http.MethodPost, base+"/entries", map[string]any{"entry_amount": "1000000"})
	requireStatus(t, rec, http.StatusCreated)
	entryID := decodeBody[EntryDTO](t, rec).ID

	// THEN: The balance is 1,000,000
	assert.True(t, balanceOf(t, router, appID).Equal(decimal.NewFromInt(1_000_000)))

	// WHEN: 500,000 is repaid
	rec = do(t, router, http.MethodPost, base+"/repayments", map[string]any{"type": "ADD", "repayment_amount": 500000})
	requireStatus(t, rec, http.StatusCreated)
	repaymentID := decodeBody[RepaymentDTO](t, rec).ID
	assert.True(t, balanceOf(t, router, appID).Equal(decimal.NewFromInt(500_000)))

	// WHEN: The repayment is corrected to 200,000
	rec = do(t, router, http.MethodPut, fmt.Sprintf("/internal/applications/repayments/%d", repaymentID),
		map[string]any{"type": "ADD", "repayment_amount": "200000"})
	requireStatus(t, rec, http.StatusOK)
	upd := decodeBody[RepaymentUpdateDTO](t, rec)

	// THEN: Both sides are reported and the balance follows
	assert.True(t, upd.BeforeRepaymentAmount.Equal(decimal.NewFromInt(500_000)))
	assert.True(t, upd.AfterRepaymentAmount.Equal(decimal.NewFromInt(200_000)))
	assert.True(t, upd.Balance.Equal(decimal.NewFromInt(800_000)))
	assert.True(t, balanceOf(t, router, appID).Equal(decimal.NewFromInt(800_000)))

	// WHEN: The entry amount is edited to 600,000
	rec = do(t, router, http.MethodPut, fmt.Sprintf("/internal/applications/entries/%d", entryID),
		map[string]any{"entry_amount": "600000"})
	requireStatus(t, rec, http.StatusOK)
	eu := decodeBody[EntryUpdateDTO](t, rec)
	assert.True(t, eu.BeforeEntryAmount.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, balanceOf(t, router, appID).Equal(decimal.NewFromInt(400_000)))

	// WHEN: The repayment and the entry are deleted
	requireStatus(t, do(t, router, http.MethodDelete, fmt.Sprintf("/internal/applications/repayments/%d", repaymentID), nil), http.StatusNoContent)
	requireStatus(t, do(t, router, http.MethodDelete, fmt.Sprintf("/internal/applications/entries/%d", entryID), nil), http.StatusNoContent)

	// THEN: The balance returns to zero and the entry history is kept
	assert.True(t, balanceOf(t, router, appID).IsZero())

	rec = do(t, router, http.MethodGet, base+"/entries", nil)
	requireStatus(t, rec, http.StatusOK)
	entries := decodeBody[[]EntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDeleted)

	rec = do(t, router, http.MethodGet, base+"/repayments", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Empty(t, decodeBody[[]RepaymentDTO](t, rec))
}

func TestLedger_EntryBeforeContractRejected(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: An application that was never contracted
	appID := createApplication(t, router, "1000")

	// WHEN: A disbursement is attempted
	rec := do(t, router, http.MethodPost, fmt.Sprintf("/internal/applications/%d/entries", appID),
		map[string]any{"entry_amount": "100"})

	// THEN: It is a validation error and no balance exists
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, loan.CodeNotContracted, decodeBody[ErrorResponse](t, rec).Code)
	requireStatus(t, do(t, router, http.MethodGet, fmt.Sprintf("/internal/applications/%d/balance", appID), nil), http.StatusNotFound)
}

func TestLedger_LatestEntry(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: Two disbursements
	appID := createApplication(t, router, "1000")
	contractOverHTTP(t, router, appID, "1000")
	base := fmt.Sprintf("/internal/applications/%d", appID)
	requireStatus(t, do(t, router, http.MethodPost, base+"/entries", map[string]any{"entry_amount": "100"}), http.StatusCreated)
	requireStatus(t, do(t, router, http.MethodPost, base+"/entries", map[string]any{"entry_amount": "250.50"}), http.StatusCreated)

	// WHEN: The latest entry is requested
	rec := do(t, router, http.MethodGet, base+"/entries/latest", nil)

	// THEN: The second one is returned and both add to the balance
	requireStatus(t, rec, http.StatusOK)
	assert.True(t, decodeBody[EntryDTO](t, rec).EntryAmount.Equal(decimal.RequireFromString("250.50")))
	assert.True(t, balanceOf(t, router, appID).Equal(decimal.RequireFromString("350.50")))
}

// =============================================================================
// ERRORS, VALIDATION, MIDDLEWARE
// =============================================================================

func TestErrors_StatusMapping(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown application", http.MethodGet, "/applications/999", nil, http.StatusNotFound, "application_not_found"},
		{"non-numeric id", http.MethodGet, "/applications/abc", nil, http.StatusBadRequest, ""},
		{"missing required field", http.MethodPost, "/applications", map[string]any{"name": "Kim"}, http.StatusBadRequest, "invalid_request"},
		{"malformed json", http.MethodPost, "/terms", "{not json", http.StatusBadRequest, "invalid_request"},
		{"bad repayment type", http.MethodPost, "/internal/applications/1/repayments", map[string]any{"type": "REFUND", "repayment_amount": 1}, http.StatusBadRequest, "invalid_request"},
		{"amount is not a number", http.MethodPost, "/internal/applications/1/entries", map[string]any{"entry_amount": "ten"}, http.StatusBadRequest, "invalid_request"},
		{"accept on empty catalog", http.MethodPost, "/applications/999/terms", map[string]any{"accept_terms_ids": []int{}}, http.StatusNotFound, "application_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			requireStatus(t, rec, tt.status)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
			}
		})
	}
}

func TestAmounts_MoreThanTwoDecimalPlacesRejected(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})
	appID := createApplication(t, router, "1000")

	// WHEN: The amount arrives as a string with three decimal places
	rec := do(t, router, http.MethodPost, "/judgments", map[string]any{
		"application_id":  appID,
		"approval_amount": "0.001",
	})

	// THEN: The schema rejects it
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "invalid_request", decodeBody[ErrorResponse](t, rec).Code)

	// WHEN: The same amount arrives as a JSON number
	rec = do(t, router, http.MethodPost, "/judgments", map[string]any{
		"application_id":  appID,
		"approval_amount": 0.001,
	})

	// THEN: The domain rejects it before anything is stored
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, loan.CodeInvalidAmount, decodeBody[ErrorResponse](t, rec).Code)
	requireStatus(t, do(t, router, http.MethodGet, fmt.Sprintf("/judgments/applications/%d", appID), nil), http.StatusNotFound)
}

func TestContract_SecondCallConflicts(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	// GIVEN: A contracted application
	appID := createApplication(t, router, "1000")
	contractOverHTTP(t, router, appID, "1000")

	// WHEN: It is contracted again
	rec := do(t, router, http.MethodPut, fmt.Sprintf("/applications/%d/contract", appID), nil)

	// THEN: The call conflicts
	requireStatus(t, rec, http.StatusConflict)
	assert.Equal(t, loan.CodeAlreadyContracted, decodeBody[ErrorResponse](t, rec).Code)
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	// GIVEN: A router allowing a burst of one request
	router, _ := newTestRouter(t, RouterOptions{RPS: 0.001, Burst: 1})

	// WHEN: Two requests arrive from the same client
	first := do(t, router, http.MethodGet, "/terms", nil)
	second := do(t, router, http.MethodGet, "/terms", nil)

	// THEN: Only the first is served
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, RouterOptions{})

	requireStatus(t, do(t, router, http.MethodGet, "/healthz", nil), http.StatusOK)

	// The request above is counted by route pattern.
	rec := do(t, router, http.MethodGet, "/metrics", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `loan_http_requests_total{method="GET",route="/healthz",status="200"}`)
}
