package loan

import (
	"context"
	"time"
)

// TermsService manages the terms catalog. Terms are never edited.
type TermsService struct {
	store TxStore
	now   func() time.Time
}

func (s *TermsService) Create(ctx context.Context, req TermsRequest) (*Terms, error) {
	if req.Name == "" {
		return nil, invalid(CodeRequiredFieldAbsent, "name is required")
	}
	t := &Terms{Name: req.Name, TermsDetailURL: req.TermsDetailURL, CreatedAt: s.now()}
	if err := s.store.CreateTerms(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns the catalog ordered by id.
func (s *TermsService) List(ctx context.Context) ([]Terms, error) {
	return s.store.ListTerms(ctx)
}

// CounselService manages intake consultations.
type CounselService struct {
	store TxStore
	now   func() time.Time
}

func (s *CounselService) Create(ctx context.Context, req CounselRequest) (*Counsel, error) {
	if req.Name == "" {
		return nil, invalid(CodeRequiredFieldAbsent, "name is required")
	}
	now := s.now()
	c := &Counsel{AppliedAt: now, CreatedAt: now, UpdatedAt: now}
	req.applyTo(c)
	if err := s.store.CreateCounsel(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CounselService) Get(ctx context.Context, id CounselID) (*Counsel, error) {
	return requireCounsel(ctx, s.store, id)
}

func (s *CounselService) Update(ctx context.Context, id CounselID, req CounselRequest) (*Counsel, error) {
	if req.Name == "" {
		return nil, invalid(CodeRequiredFieldAbsent, "name is required")
	}
	var out *Counsel
	err := s.store.WithTx(ctx, func(tx Store) error {
		c, err := requireCounsel(ctx, tx, id)
		if err != nil {
			return err
		}
		req.applyTo(c)
		c.UpdatedAt = s.now()
		out = c
		return tx.UpdateCounsel(ctx, c)
	})
	return out, err
}

func (s *CounselService) Delete(ctx context.Context, id CounselID) error {
	return s.store.WithTx(ctx, func(tx Store) error {
		c, err := requireCounsel(ctx, tx, id)
		if err != nil {
			return err
		}
		c.IsDeleted = true
		c.UpdatedAt = s.now()
		return tx.UpdateCounsel(ctx, c)
	})
}

func (r CounselRequest) applyTo(c *Counsel) {
	c.Name = r.Name
	c.CellPhone = r.CellPhone
	c.Email = r.Email
	c.Memo = r.Memo
	c.Address = r.Address
	c.AddressDetail = r.AddressDetail
	c.ZipCode = r.ZipCode
}

func requireCounsel(ctx context.Context, s Store, id CounselID) (*Counsel, error) {
	c, err := s.GetCounsel(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil || c.IsDeleted {
		return nil, notFound("counsel", int64(id))
	}
	return c, nil
}
