package loan

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REPAYMENT SERVICE
// =============================================================================

// RepaymentService records repayments against a contracted application's
// balance. ADD lowers the balance by the amount and REMOVE raises it.
// Update and delete replace or reverse the previous effect exactly.
type RepaymentService struct {
	ledger *BalanceLedger
}

func (s *RepaymentService) Create(ctx context.Context, appID ApplicationID, req RepaymentRequest) (*Repayment, error) {
	if err := validateRepayment(req); err != nil {
		return nil, err
	}
	l := s.ledger
	var out *Repayment
	err := l.mutate(ctx, "repayment.create", appID, func(tx Store) error {
		if _, err := requireApplication(ctx, tx, appID); err != nil {
			return err
		}
		now := l.now()
		r := &Repayment{
			ApplicationID:   appID,
			RepaymentAmount: req.RepaymentAmount,
			Type:            req.Type,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateRepayment(ctx, r); err != nil {
			return err
		}
		if _, err := applyDelta(ctx, tx, appID, BalanceDelta{Before: decimal.Zero, After: r.Effect()}, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns active repayments ordered by id.
func (s *RepaymentService) List(ctx context.Context, appID ApplicationID) ([]Repayment, error) {
	st := s.ledger.store
	if _, err := requireApplication(ctx, st, appID); err != nil {
		return nil, err
	}
	all, err := st.ListRepayments(ctx, appID)
	if err != nil {
		return nil, err
	}
	out := make([]Repayment, 0, len(all))
	for _, r := range all {
		if !r.IsDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RepaymentService) Update(ctx context.Context, id RepaymentID, req RepaymentRequest) (*RepaymentUpdateResult, error) {
	if err := validateRepayment(req); err != nil {
		return nil, err
	}
	appID, err := s.applicationOf(ctx, id)
	if err != nil {
		return nil, err
	}

	l := s.ledger
	var out *RepaymentUpdateResult
	err = l.mutate(ctx, "repayment.update", appID, func(tx Store) error {
		r, err := requireRepayment(ctx, tx, id)
		if err != nil {
			return err
		}
		res := &RepaymentUpdateResult{
			RepaymentID:           id,
			ApplicationID:         appID,
			BeforeType:            r.Type,
			BeforeRepaymentAmount: r.RepaymentAmount,
			AfterType:             req.Type,
			AfterRepaymentAmount:  req.RepaymentAmount,
		}
		before := r.Effect()
		r.Type = req.Type
		r.RepaymentAmount = req.RepaymentAmount
		r.UpdatedAt = l.now()
		if err := tx.UpdateRepayment(ctx, r); err != nil {
			return err
		}
		b, err := applyDelta(ctx, tx, appID, BalanceDelta{Before: before, After: r.Effect()}, r.UpdatedAt)
		if err != nil {
			return err
		}
		res.Balance = b.Balance
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete soft-deletes the repayment and reverses its effect.
func (s *RepaymentService) Delete(ctx context.Context, id RepaymentID) error {
	appID, err := s.applicationOf(ctx, id)
	if err != nil {
		return err
	}
	l := s.ledger
	return l.mutate(ctx, "repayment.delete", appID, func(tx Store) error {
		r, err := requireRepayment(ctx, tx, id)
		if err != nil {
			return err
		}
		r.IsDeleted = true
		r.UpdatedAt = l.now()
		if err := tx.UpdateRepayment(ctx, r); err != nil {
			return err
		}
		_, err = applyDelta(ctx, tx, appID, BalanceDelta{Before: r.Effect(), After: decimal.Zero}, r.UpdatedAt)
		return err
	})
}

func (s *RepaymentService) applicationOf(ctx context.Context, id RepaymentID) (ApplicationID, error) {
	r, err := requireRepayment(ctx, s.ledger.store, id)
	if err != nil {
		return 0, err
	}
	return r.ApplicationID, nil
}

func requireRepayment(ctx context.Context, s Store, id RepaymentID) (*Repayment, error) {
	r, err := s.GetRepayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.IsDeleted {
		return nil, notFound("repayment", int64(id))
	}
	return r, nil
}

func validateRepayment(req RepaymentRequest) error {
	if !req.Type.Valid() {
		return invalid(CodeInvalidRepayment, "type must be ADD or REMOVE, got %q", req.Type)
	}
	return requirePositive("repayment_amount", req.RepaymentAmount)
}
