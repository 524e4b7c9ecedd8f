package loan

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// JUDGMENT SERVICE
// =============================================================================

// JudgmentService records credit decisions and grants them.
//
// A judgment can be edited until it is granted. Grant copies the approval
// amount onto the application and marks the judgment granted, both in one
// transaction.
type JudgmentService struct {
	store TxStore
	log   *zap.Logger
	now   func() time.Time
}

func (s *JudgmentService) Create(ctx context.Context, req JudgmentRequest) (*Judgment, error) {
	if err := requireNonNegative("approval_amount", req.ApprovalAmount); err != nil {
		return nil, err
	}
	var out *Judgment
	err := s.store.WithTx(ctx, func(tx Store) error {
		if _, err := requireApplication(ctx, tx, req.ApplicationID); err != nil {
			return err
		}
		existing, err := tx.GetJudgmentByApplication(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict(CodeJudgmentExists, "application %d already has judgment %d",
				req.ApplicationID, existing.ID)
		}

		now := s.now()
		j := &Judgment{
			ApplicationID:  req.ApplicationID,
			Name:           req.Name,
			ApprovalAmount: req.ApprovalAmount,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.CreateJudgment(ctx, j); err != nil {
			return err
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("judgment created",
		zap.Int64("judgment_id", int64(out.ID)),
		zap.Int64("application_id", int64(out.ApplicationID)))
	return out, nil
}

func (s *JudgmentService) Get(ctx context.Context, id JudgmentID) (*Judgment, error) {
	return requireJudgment(ctx, s.store, id)
}

func (s *JudgmentService) GetByApplication(ctx context.Context, appID ApplicationID) (*Judgment, error) {
	if _, err := requireApplication(ctx, s.store, appID); err != nil {
		return nil, err
	}
	j, err := s.store.GetJudgmentByApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, notFound("judgment", int64(appID))
	}
	return j, nil
}

// Update edits name and approval amount of an ungranted judgment.
// The application it belongs to cannot change.
func (s *JudgmentService) Update(ctx context.Context, id JudgmentID, req JudgmentRequest) (*Judgment, error) {
	if err := requireNonNegative("approval_amount", req.ApprovalAmount); err != nil {
		return nil, err
	}
	var out *Judgment
	err := s.store.WithTx(ctx, func(tx Store) error {
		j, err := requireJudgment(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.IsGranted() {
			return conflict(CodeAlreadyGranted, "judgment %d is already granted", id)
		}
		j.Name = req.Name
		j.ApprovalAmount = req.ApprovalAmount
		j.UpdatedAt = s.now()
		out = j
		return tx.UpdateJudgment(ctx, j)
	})
	return out, err
}

// Delete soft-deletes an ungranted judgment.
func (s *JudgmentService) Delete(ctx context.Context, id JudgmentID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		j, err := requireJudgment(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.IsGranted() {
			return conflict(CodeAlreadyGranted, "judgment %d is already granted", id)
		}
		j.IsDeleted = true
		j.UpdatedAt = s.now()
		return tx.UpdateJudgment(ctx, j)
	})
}

// Grant copies the judgment's approval amount onto its application.
// A judgment is granted at most once.
func (s *JudgmentService) Grant(ctx context.Context, id JudgmentID) (*GrantResult, error) {
	var out *GrantResult
	err := s.store.WithTx(ctx, func(tx Store) error {
		j, err := requireJudgment(ctx, tx, id)
		if err != nil {
			return err
		}
		if j.IsGranted() {
			return conflict(CodeAlreadyGranted, "judgment %d is already granted", id)
		}
		app, err := requireApplication(ctx, tx, j.ApplicationID)
		if err != nil {
			return err
		}

		now := s.now()
		app.ApprovalAmount.Decimal = j.ApprovalAmount
		app.ApprovalAmount.Valid = true
		app.UpdatedAt = now
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return err
		}
		j.GrantedAt = &now
		j.UpdatedAt = now
		if err := tx.UpdateJudgment(ctx, j); err != nil {
			return err
		}
		out = &GrantResult{ApplicationID: app.ID, ApprovalAmount: j.ApprovalAmount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("judgment granted",
		zap.Int64("judgment_id", int64(id)),
		zap.Int64("application_id", int64(out.ApplicationID)),
		zap.String("approval_amount", out.ApprovalAmount.String()))
	return out, nil
}

func requireJudgment(ctx context.Context, s Store, id JudgmentID) (*Judgment, error) {
	j, err := s.GetJudgment(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil || j.IsDeleted {
		return nil, notFound("judgment", int64(id))
	}
	return j, nil
}
