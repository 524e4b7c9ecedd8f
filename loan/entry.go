package loan

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY SERVICE - Disbursements
// =============================================================================

// EntryService records disbursements. Each write adjusts the balance in the
// same transaction: create adds the amount, update swaps the old amount for
// the new one, delete reverses it.
type EntryService struct {
	ledger *BalanceLedger
}

// Create appends a disbursement. The application must be contracted.
// Every entry adds to the running balance; the first one creates it.
func (s *EntryService) Create(ctx context.Context, appID ApplicationID, req EntryRequest) (*Entry, error) {
	if err := requirePositive("entry_amount", req.EntryAmount); err != nil {
		return nil, err
	}
	l := s.ledger
	var out *Entry
	err := l.mutate(ctx, "entry.create", appID, func(tx Store) error {
		app, err := requireApplication(ctx, tx, appID)
		if err != nil {
			return err
		}
		if !app.IsContracted() {
			return invalid(CodeNotContracted, "application %d is not contracted", appID)
		}

		now := l.now()
		e := &Entry{
			ApplicationID: appID,
			EntryAmount:   req.EntryAmount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateEntry(ctx, e); err != nil {
			return err
		}
		if _, err := creditEntry(ctx, tx, appID, e.EntryAmount, now); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the latest active entry of an application.
func (s *EntryService) Get(ctx context.Context, appID ApplicationID) (*Entry, error) {
	st := s.ledger.store
	if _, err := requireApplication(ctx, st, appID); err != nil {
		return nil, err
	}
	e, err := st.GetLatestEntry(ctx, appID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, notFound("entry", int64(appID))
	}
	return e, nil
}

// List returns the full entry history, deleted rows included.
func (s *EntryService) List(ctx context.Context, appID ApplicationID) ([]Entry, error) {
	st := s.ledger.store
	if _, err := requireApplication(ctx, st, appID); err != nil {
		return nil, err
	}
	return st.ListEntries(ctx, appID)
}

func (s *EntryService) Update(ctx context.Context, id EntryID, req EntryRequest) (*EntryUpdateResult, error) {
	if err := requirePositive("entry_amount", req.EntryAmount); err != nil {
		return nil, err
	}
	appID, err := s.applicationOf(ctx, id)
	if err != nil {
		return nil, err
	}

	l := s.ledger
	var out *EntryUpdateResult
	err = l.mutate(ctx, "entry.update", appID, func(tx Store) error {
		e, err := requireEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		before := e.EntryAmount
		e.EntryAmount = req.EntryAmount
		e.UpdatedAt = l.now()
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
		if _, err := applyDelta(ctx, tx, appID, BalanceDelta{Before: before, After: e.EntryAmount}, e.UpdatedAt); err != nil {
			return err
		}
		out = &EntryUpdateResult{
			EntryID:           id,
			ApplicationID:     appID,
			BeforeEntryAmount: before,
			AfterEntryAmount:  e.EntryAmount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete soft-deletes the entry and reverses its amount out of the balance.
func (s *EntryService) Delete(ctx context.Context, id EntryID) error {
	appID, err := s.applicationOf(ctx, id)
	if err != nil {
		return err
	}
	l := s.ledger
	return l.mutate(ctx, "entry.delete", appID, func(tx Store) error {
		e, err := requireEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		e.IsDeleted = true
		e.UpdatedAt = l.now()
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
		_, err = applyDelta(ctx, tx, appID, BalanceDelta{Before: e.EntryAmount, After: decimal.Zero}, e.UpdatedAt)
		return err
	})
}

// applicationOf resolves the lock key before the transaction starts.
func (s *EntryService) applicationOf(ctx context.Context, id EntryID) (ApplicationID, error) {
	e, err := requireEntry(ctx, s.ledger.store, id)
	if err != nil {
		return 0, err
	}
	return e.ApplicationID, nil
}

func requireEntry(ctx context.Context, s Store, id EntryID) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.IsDeleted {
		return nil, notFound("entry", int64(id))
	}
	return e, nil
}
