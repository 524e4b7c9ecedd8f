/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store through the engine,
  so every gate is exercised exactly as a client would exercise it.

AVAILABLE SCENARIOS:
  standard-terms:    Seeds the terms catalog only
  contracted-loan:   One application taken through contract with a first
                     disbursement of 1,000,000
  repayment-history: A contracted loan with two disbursements and a mix of
                     ADD and REMOVE repayments

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Seed the terms catalog
 3. Drive applications through accept -> judgment -> grant -> contract
 4. Record entries and repayments through the ledger

USAGE VIA API:
	POST /scenarios/load
	{"scenario_id": "contracted-loan"}

NOTE:
  Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-terms",
		Name:        "Standard Terms",
		Description: "Terms catalog with the three standard agreements",
	},
	{
		ID:          "contracted-loan",
		Name:        "Contracted Loan",
		Description: "Application contracted at 1,000,000 with one disbursement",
	},
	{
		ID:          "repayment-history",
		Name:        "Repayment History",
		Description: "Two disbursements, two repayments and one reversed payment",
	},
}

var scenarioLoaders = map[string]func(context.Context, *loan.Engine) error{
	"standard-terms":    loadStandardTermsScenario,
	"contracted-loan":   loadContractedLoanScenario,
	"repayment-history": loadRepaymentHistoryScenario,
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, scenarioSchema, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Engine); err != nil {
		h.log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var standardTerms = []loan.TermsRequest{
	{Name: "Personal information collection", TermsDetailURL: "https://example.com/terms/privacy"},
	{Name: "Credit inquiry consent", TermsDetailURL: "https://example.com/terms/credit"},
	{Name: "Loan agreement", TermsDetailURL: "https://example.com/terms/loan"},
}

func loadStandardTermsScenario(ctx context.Context, e *loan.Engine) error {
	for _, req := range standardTerms {
		if _, err := e.Terms.Create(ctx, req); err != nil {
			return fmt.Errorf("create terms %q: %w", req.Name, err)
		}
	}
	return nil
}

// contract drives one application from creation to contract.
func contract(ctx context.Context, e *loan.Engine, name string, requested, approved decimal.Decimal) (loan.ApplicationID, error) {
	app, err := e.Applications.Create(ctx, loan.ApplicationRequest{
		Name:            name,
		CellPhone:       "010-0000-0000",
		Email:           "applicant@example.com",
		RequestedAmount: requested,
	})
	if err != nil {
		return 0, fmt.Errorf("create application: %w", err)
	}

	catalog, err := e.Terms.List(ctx)
	if err != nil {
		return 0, err
	}
	ids := make([]loan.TermsID, len(catalog))
	for i, t := range catalog {
		ids[i] = t.ID
	}
	if err := e.Applications.AcceptTerms(ctx, app.ID, loan.AcceptTermsRequest{AcceptTermsIDs: ids}); err != nil {
		return 0, fmt.Errorf("accept terms: %w", err)
	}

	j, err := e.Judgments.Create(ctx, loan.JudgmentRequest{
		ApplicationID:  app.ID,
		Name:           name,
		ApprovalAmount: approved,
	})
	if err != nil {
		return 0, fmt.Errorf("create judgment: %w", err)
	}
	if _, err := e.Judgments.Grant(ctx, j.ID); err != nil {
		return 0, fmt.Errorf("grant judgment: %w", err)
	}
	if _, err := e.Applications.Contract(ctx, app.ID); err != nil {
		return 0, fmt.Errorf("contract: %w", err)
	}
	return app.ID, nil
}

func loadContractedLoanScenario(ctx context.Context, e *loan.Engine) error {
	if err := loadStandardTermsScenario(ctx, e); err != nil {
		return err
	}
	appID, err := contract(ctx, e, "Kim Minsu", decimal.NewFromInt(1_500_000), decimal.NewFromInt(1_000_000))
	if err != nil {
		return err
	}
	_, err = e.Entries.Create(ctx, appID, loan.EntryRequest{EntryAmount: decimal.NewFromInt(1_000_000)})
	return err
}

func loadRepaymentHistoryScenario(ctx context.Context, e *loan.Engine) error {
	if err := loadStandardTermsScenario(ctx, e); err != nil {
		return err
	}
	appID, err := contract(ctx, e, "Lee Jiwon", decimal.NewFromInt(3_000_000), decimal.NewFromInt(2_000_000))
	if err != nil {
		return err
	}

	for _, amt := range []int64{1_200_000, 800_000} {
		if _, err := e.Entries.Create(ctx, appID, loan.EntryRequest{EntryAmount: decimal.NewFromInt(amt)}); err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
	}

	// 2,000,000 - 500,000 - 300,000 + 300,000 = 1,500,000
	repayments := []loan.RepaymentRequest{
		{Type: loan.RepaymentAdd, RepaymentAmount: decimal.NewFromInt(500_000)},
		{Type: loan.RepaymentAdd, RepaymentAmount: decimal.NewFromInt(300_000)},
		{Type: loan.RepaymentRemove, RepaymentAmount: decimal.NewFromInt(300_000)},
	}
	for _, req := range repayments {
		if _, err := e.Repayments.Create(ctx, appID, req); err != nil {
			return fmt.Errorf("create repayment: %w", err)
		}
	}
	return nil
}
