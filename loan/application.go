package loan

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// APPLICATION SERVICE
// =============================================================================

// ApplicationService owns the application record and the two gates that
// live on it: terms acceptance and contract.
type ApplicationService struct {
	store TxStore
	log   *zap.Logger
	now   func() time.Time
}

func (s *ApplicationService) Create(ctx context.Context, req ApplicationRequest) (*Application, error) {
	if err := validateApplicationRequest(req); err != nil {
		return nil, err
	}
	now := s.now()
	app := &Application{
		Name:            req.Name,
		CellPhone:       req.CellPhone,
		Email:           req.Email,
		RequestedAmount: req.RequestedAmount,
		AppliedAt:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}
	s.log.Info("application created", zap.Int64("application_id", int64(app.ID)))
	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, id ApplicationID) (*Application, error) {
	return requireApplication(ctx, s.store, id)
}

// Update replaces the client-editable fields. Lifecycle markers
// (ApprovalAmount, ContractedAt) are never touched here.
func (s *ApplicationService) Update(ctx context.Context, id ApplicationID, req ApplicationRequest) (*Application, error) {
	if err := validateApplicationRequest(req); err != nil {
		return nil, err
	}
	var out *Application
	err := s.store.WithTx(ctx, func(tx Store) error {
		app, err := requireApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		app.Name = req.Name
		app.CellPhone = req.CellPhone
		app.Email = req.Email
		app.RequestedAmount = req.RequestedAmount
		app.UpdatedAt = s.now()
		out = app
		return tx.UpdateApplication(ctx, app)
	})
	return out, err
}

func (s *ApplicationService) Delete(ctx context.Context, id ApplicationID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		app, err := requireApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		app.IsDeleted = true
		app.UpdatedAt = s.now()
		return tx.UpdateApplication(ctx, app)
	})
}

// =============================================================================
// TERMS ACCEPTANCE
// =============================================================================

// AcceptTerms records acceptance of the full catalog. The submitted ids must
// be exactly the catalog's ids, in any order. All rows are written or none.
func (s *ApplicationService) AcceptTerms(ctx context.Context, id ApplicationID, req AcceptTermsRequest) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		if _, err := requireApplication(ctx, tx, id); err != nil {
			return err
		}
		catalog, err := tx.ListTerms(ctx)
		if err != nil {
			return err
		}
		if err := matchCatalog(catalog, req.AcceptTermsIDs); err != nil {
			return err
		}

		now := s.now()
		rows := make([]AcceptedTerms, 0, len(req.AcceptTermsIDs))
		for _, termsID := range req.AcceptTermsIDs {
			rows = append(rows, AcceptedTerms{ApplicationID: id, TermsID: termsID, CreatedAt: now})
		}
		if err := tx.CreateAcceptedTerms(ctx, rows); err != nil {
			return err
		}
		s.log.Info("terms accepted",
			zap.Int64("application_id", int64(id)),
			zap.Int("terms", len(rows)))
		return nil
	})
}

// AcceptedTerms lists the terms an application has accepted.
func (s *ApplicationService) AcceptedTerms(ctx context.Context, id ApplicationID) ([]AcceptedTerms, error) {
	if _, err := requireApplication(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.store.ListAcceptedTerms(ctx, id)
}

// matchCatalog accepts iff the submitted ids, as a set, equal the catalog's.
func matchCatalog(catalog []Terms, submitted []TermsID) error {
	if len(catalog) == 0 {
		return invalid(CodeTermsCatalogEmpty, "no terms are defined")
	}
	if len(submitted) != len(catalog) {
		return invalid(CodeTermsMismatch, "expected %d terms, got %d", len(catalog), len(submitted))
	}

	want := make([]TermsID, len(catalog))
	for i, t := range catalog {
		want[i] = t.ID
	}
	got := slices.Clone(submitted)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return invalid(CodeTermsMismatch, "submitted terms %v do not match catalog %v", got, want)
	}
	return nil
}

// =============================================================================
// CONTRACT
// =============================================================================

// Contract stamps ContractedAt once. It requires a judgment for the
// application and a positive approval amount, which only a grant sets.
func (s *ApplicationService) Contract(ctx context.Context, id ApplicationID) (*Application, error) {
	var out *Application
	err := s.store.WithTx(ctx, func(tx Store) error {
		app, err := requireApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if app.IsContracted() {
			return conflict(CodeAlreadyContracted, "application %d is already contracted", id)
		}
		j, err := tx.GetJudgmentByApplication(ctx, id)
		if err != nil {
			return err
		}
		if j == nil {
			return invalid(CodeJudgmentRequired, "application %d has no judgment", id)
		}
		if !app.ApprovalAmount.Valid || !app.ApprovalAmount.Decimal.IsPositive() {
			return invalid(CodeApprovalAmount, "application %d has no positive approval amount", id)
		}

		now := s.now()
		app.ContractedAt = &now
		app.UpdatedAt = now
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("application contracted",
		zap.Int64("application_id", int64(id)),
		zap.String("approval_amount", out.ApprovalAmount.Decimal.String()))
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func requireApplication(ctx context.Context, s Store, id ApplicationID) (*Application, error) {
	app, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil || app.IsDeleted {
		return nil, notFound("application", int64(id))
	}
	return app, nil
}

func validateApplicationRequest(req ApplicationRequest) error {
	if req.Name == "" {
		return invalid(CodeRequiredFieldAbsent, "name is required")
	}
	return requireNonNegative("requested_amount", req.RequestedAmount)
}
