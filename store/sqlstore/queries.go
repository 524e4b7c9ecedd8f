package sqlstore

import (
	"context"
	"fmt"

	"github.com/warp/loan-engine/loan"
)

const (
	counselColumns     = `id, name, cell_phone, email, memo, address, address_detail, zip_code, applied_at, is_deleted, created_at, updated_at`
	applicationColumns = `id, name, cell_phone, email, requested_amount, approval_amount, applied_at, contracted_at, is_deleted, created_at, updated_at`
	termsColumns       = `id, name, terms_detail_url, created_at`
	acceptedColumns    = `id, application_id, terms_id, created_at`
	judgmentColumns    = `id, application_id, name, approval_amount, granted_at, is_deleted, created_at, updated_at`
	entryColumns       = `id, application_id, entry_amount, is_deleted, created_at, updated_at`
	balanceColumns     = `id, application_id, balance, version, is_deleted, created_at, updated_at`
	repaymentColumns   = `id, application_id, repayment_amount, repayment_type, is_deleted, created_at, updated_at`
)

// =============================================================================
// COUNSELS
// =============================================================================

func (c *conn) CreateCounsel(ctx context.Context, v *loan.Counsel) error {
	id, err := c.insert(ctx, `
		INSERT INTO counsels (name, cell_phone, email, memo, address, address_detail, zip_code, applied_at, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		v.Name, v.CellPhone, v.Email, v.Memo, v.Address, v.AddressDetail, v.ZipCode,
		v.AppliedAt, v.IsDeleted, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert counsel: %w", err)
	}
	v.ID = loan.CounselID(id)
	return nil
}

func (c *conn) GetCounsel(ctx context.Context, id loan.CounselID) (*loan.Counsel, error) {
	return getOne[loan.Counsel](ctx, c, `SELECT `+counselColumns+` FROM counsels WHERE id = ?`, id)
}

func (c *conn) UpdateCounsel(ctx context.Context, v *loan.Counsel) error {
	return c.update(ctx, "counsel", int64(v.ID), `
		UPDATE counsels SET name = ?, cell_phone = ?, email = ?, memo = ?, address = ?,
			address_detail = ?, zip_code = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`,
		v.Name, v.CellPhone, v.Email, v.Memo, v.Address, v.AddressDetail, v.ZipCode,
		v.IsDeleted, v.UpdatedAt, v.ID)
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (c *conn) CreateApplication(ctx context.Context, a *loan.Application) error {
	id, err := c.insert(ctx, `
		INSERT INTO applications (name, cell_phone, email, requested_amount, approval_amount, applied_at, contracted_at, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		a.Name, a.CellPhone, a.Email, a.RequestedAmount, a.ApprovalAmount,
		a.AppliedAt, a.ContractedAt, a.IsDeleted, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	a.ID = loan.ApplicationID(id)
	return nil
}

func (c *conn) GetApplication(ctx context.Context, id loan.ApplicationID) (*loan.Application, error) {
	return getOne[loan.Application](ctx, c, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
}

func (c *conn) UpdateApplication(ctx context.Context, a *loan.Application) error {
	return c.update(ctx, "application", int64(a.ID), `
		UPDATE applications SET name = ?, cell_phone = ?, email = ?, requested_amount = ?,
			approval_amount = ?, contracted_at = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.CellPhone, a.Email, a.RequestedAmount,
		a.ApprovalAmount, a.ContractedAt, a.IsDeleted, a.UpdatedAt, a.ID)
}

// =============================================================================
// TERMS
// =============================================================================

func (c *conn) CreateTerms(ctx context.Context, t *loan.Terms) error {
	id, err := c.insert(ctx, `
		INSERT INTO terms (name, terms_detail_url, created_at) VALUES (?, ?, ?) RETURNING id`,
		t.Name, t.TermsDetailURL, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert terms: %w", err)
	}
	t.ID = loan.TermsID(id)
	return nil
}

func (c *conn) ListTerms(ctx context.Context) ([]loan.Terms, error) {
	var out []loan.Terms
	if err := c.list(ctx, &out, `SELECT `+termsColumns+` FROM terms ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list terms: %w", err)
	}
	return out, nil
}

func (c *conn) CreateAcceptedTerms(ctx context.Context, rows []loan.AcceptedTerms) error {
	for _, r := range rows {
		_, err := c.q.ExecContext(ctx, c.q.Rebind(`
			INSERT INTO accepted_terms (application_id, terms_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT (application_id, terms_id) DO NOTHING`),
			r.ApplicationID, r.TermsID, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert accepted terms %d: %w", r.TermsID, err)
		}
	}
	return nil
}

func (c *conn) ListAcceptedTerms(ctx context.Context, appID loan.ApplicationID) ([]loan.AcceptedTerms, error) {
	var out []loan.AcceptedTerms
	err := c.list(ctx, &out, `SELECT `+acceptedColumns+` FROM accepted_terms WHERE application_id = ? ORDER BY terms_id`, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted terms: %w", err)
	}
	return out, nil
}

// =============================================================================
// JUDGMENTS
// =============================================================================

func (c *conn) CreateJudgment(ctx context.Context, j *loan.Judgment) error {
	id, err := c.insert(ctx, `
		INSERT INTO judgments (application_id, name, approval_amount, granted_at, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		j.ApplicationID, j.Name, j.ApprovalAmount, j.GrantedAt, j.IsDeleted, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return c.duplicate(err, loan.CodeJudgmentExists,
			fmt.Sprintf("application %d already has a judgment", j.ApplicationID))
	}
	j.ID = loan.JudgmentID(id)
	return nil
}

func (c *conn) GetJudgment(ctx context.Context, id loan.JudgmentID) (*loan.Judgment, error) {
	return getOne[loan.Judgment](ctx, c, `SELECT `+judgmentColumns+` FROM judgments WHERE id = ?`, id)
}

func (c *conn) GetJudgmentByApplication(ctx context.Context, appID loan.ApplicationID) (*loan.Judgment, error) {
	return getOne[loan.Judgment](ctx, c, `
		SELECT `+judgmentColumns+` FROM judgments
		WHERE application_id = ? AND is_deleted = ?
		ORDER BY id LIMIT 1`, appID, false)
}

func (c *conn) UpdateJudgment(ctx context.Context, j *loan.Judgment) error {
	return c.update(ctx, "judgment", int64(j.ID), `
		UPDATE judgments SET name = ?, approval_amount = ?, granted_at = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`,
		j.Name, j.ApprovalAmount, j.GrantedAt, j.IsDeleted, j.UpdatedAt, j.ID)
}

// =============================================================================
// ENTRIES
// =============================================================================

func (c *conn) CreateEntry(ctx context.Context, e *loan.Entry) error {
	id, err := c.insert(ctx, `
		INSERT INTO entries (application_id, entry_amount, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		e.ApplicationID, e.EntryAmount, e.IsDeleted, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	e.ID = loan.EntryID(id)
	return nil
}

func (c *conn) GetEntry(ctx context.Context, id loan.EntryID) (*loan.Entry, error) {
	return getOne[loan.Entry](ctx, c, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
}

func (c *conn) GetLatestEntry(ctx context.Context, appID loan.ApplicationID) (*loan.Entry, error) {
	return getOne[loan.Entry](ctx, c, `
		SELECT `+entryColumns+` FROM entries
		WHERE application_id = ? AND is_deleted = ?
		ORDER BY id DESC LIMIT 1`, appID, false)
}

func (c *conn) ListEntries(ctx context.Context, appID loan.ApplicationID) ([]loan.Entry, error) {
	var out []loan.Entry
	if err := c.list(ctx, &out, `SELECT `+entryColumns+` FROM entries WHERE application_id = ? ORDER BY id`, appID); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return out, nil
}

func (c *conn) UpdateEntry(ctx context.Context, e *loan.Entry) error {
	return c.update(ctx, "entry", int64(e.ID), `
		UPDATE entries SET entry_amount = ?, is_deleted = ?, updated_at = ? WHERE id = ?`,
		e.EntryAmount, e.IsDeleted, e.UpdatedAt, e.ID)
}

// =============================================================================
// BALANCES
// =============================================================================

func (c *conn) CreateBalance(ctx context.Context, b *loan.Balance) error {
	id, err := c.insert(ctx, `
		INSERT INTO balances (application_id, balance, version, is_deleted, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		RETURNING id`,
		b.ApplicationID, b.Balance, b.IsDeleted, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if c.d.IsUniqueViolation != nil && c.d.IsUniqueViolation(err) {
			// Lost the race to create it; a retry will read and update instead.
			return loan.ErrConcurrentModification
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	b.ID = loan.BalanceID(id)
	b.Version = 1
	return nil
}

func (c *conn) GetBalance(ctx context.Context, appID loan.ApplicationID) (*loan.Balance, error) {
	return getOne[loan.Balance](ctx, c, `SELECT `+balanceColumns+` FROM balances WHERE application_id = ?`, appID)
}

func (c *conn) UpdateBalance(ctx context.Context, b *loan.Balance) error {
	res, err := c.q.ExecContext(ctx, c.q.Rebind(`
		UPDATE balances SET balance = ?, is_deleted = ?, version = version + 1, updated_at = ?
		WHERE application_id = ? AND version = ?`),
		b.Balance, b.IsDeleted, b.UpdatedAt, b.ApplicationID, b.Version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return loan.ErrConcurrentModification
	}
	b.Version++
	return nil
}

// =============================================================================
// REPAYMENTS
// =============================================================================

func (c *conn) CreateRepayment(ctx context.Context, r *loan.Repayment) error {
	id, err := c.insert(ctx, `
		INSERT INTO repayments (application_id, repayment_amount, repayment_type, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.ApplicationID, r.RepaymentAmount, r.Type, r.IsDeleted, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert repayment: %w", err)
	}
	r.ID = loan.RepaymentID(id)
	return nil
}

func (c *conn) GetRepayment(ctx context.Context, id loan.RepaymentID) (*loan.Repayment, error) {
	return getOne[loan.Repayment](ctx, c, `SELECT `+repaymentColumns+` FROM repayments WHERE id = ?`, id)
}

func (c *conn) ListRepayments(ctx context.Context, appID loan.ApplicationID) ([]loan.Repayment, error) {
	var out []loan.Repayment
	if err := c.list(ctx, &out, `SELECT `+repaymentColumns+` FROM repayments WHERE application_id = ? ORDER BY id`, appID); err != nil {
		return nil, fmt.Errorf("failed to list repayments: %w", err)
	}
	return out, nil
}

func (c *conn) UpdateRepayment(ctx context.Context, r *loan.Repayment) error {
	return c.update(ctx, "repayment", int64(r.ID), `
		UPDATE repayments SET repayment_amount = ?, repayment_type = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`,
		r.RepaymentAmount, r.Type, r.IsDeleted, r.UpdatedAt, r.ID)
}
