// Package store provides an in-memory loan.TxStore.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every table in maps guarded by one mutex. WithTx works on a
// copy of the tables and swaps it in on commit, so a failed transaction
// leaves nothing behind.
type Memory struct {
	mu sync.Mutex
	t  *tables
}

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

// WithTx runs fn against a private copy of the data. Transactions are
// serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.t.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.t = work
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = newTables()
	return nil
}

// locked runs fn on the live tables.
func (m *Memory) locked(fn func(*tables) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.t)
}

// =============================================================================
// TABLES
// =============================================================================

type tables struct {
	seq          map[string]int64
	counsels     map[loan.CounselID]loan.Counsel
	applications map[loan.ApplicationID]loan.Application
	terms        map[loan.TermsID]loan.Terms
	accepted     []loan.AcceptedTerms
	judgments    map[loan.JudgmentID]loan.Judgment
	entries      map[loan.EntryID]loan.Entry
	balances     map[loan.ApplicationID]loan.Balance
	repayments   map[loan.RepaymentID]loan.Repayment
}

func newTables() *tables {
	return &tables{
		seq:          make(map[string]int64),
		counsels:     make(map[loan.CounselID]loan.Counsel),
		applications: make(map[loan.ApplicationID]loan.Application),
		terms:        make(map[loan.TermsID]loan.Terms),
		judgments:    make(map[loan.JudgmentID]loan.Judgment),
		entries:      make(map[loan.EntryID]loan.Entry),
		balances:     make(map[loan.ApplicationID]loan.Balance),
		repayments:   make(map[loan.RepaymentID]loan.Repayment),
	}
}

// clone copies every table. Records are values; their pointer fields
// (timestamps) are replaced on write, never mutated in place.
func (t *tables) clone() *tables {
	return &tables{
		seq:          maps.Clone(t.seq),
		counsels:     maps.Clone(t.counsels),
		applications: maps.Clone(t.applications),
		terms:        maps.Clone(t.terms),
		accepted:     slices.Clone(t.accepted),
		judgments:    maps.Clone(t.judgments),
		entries:      maps.Clone(t.entries),
		balances:     maps.Clone(t.balances),
		repayments:   maps.Clone(t.repayments),
	}
}

func (t *tables) next(table string) int64 {
	t.seq[table]++
	return t.seq[table]
}

func getRow[K comparable, V any](rows map[K]V, id K) *V {
	v, ok := rows[id]
	if !ok {
		return nil
	}
	return &v
}

// sortedRows returns rows matching keep, ordered by id.
func sortedRows[K ~int64, V any](rows map[K]V, keep func(V) bool) []V {
	ids := make([]K, 0, len(rows))
	for id, v := range rows {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, rows[id])
	}
	return out
}

func missing(kind string, id int64) error {
	return &loan.NotFoundError{Kind: kind, ID: id}
}

// --- counsels ---

func (t *tables) CreateCounsel(_ context.Context, c *loan.Counsel) error {
	c.ID = loan.CounselID(t.next("counsels"))
	t.counsels[c.ID] = *c
	return nil
}

func (t *tables) GetCounsel(_ context.Context, id loan.CounselID) (*loan.Counsel, error) {
	return getRow(t.counsels, id), nil
}

func (t *tables) UpdateCounsel(_ context.Context, c *loan.Counsel) error {
	if _, ok := t.counsels[c.ID]; !ok {
		return missing("counsel", int64(c.ID))
	}
	t.counsels[c.ID] = *c
	return nil
}

// --- applications ---

func (t *tables) CreateApplication(_ context.Context, a *loan.Application) error {
	a.ID = loan.ApplicationID(t.next("applications"))
	t.applications[a.ID] = *a
	return nil
}

func (t *tables) GetApplication(_ context.Context, id loan.ApplicationID) (*loan.Application, error) {
	return getRow(t.applications, id), nil
}

func (t *tables) UpdateApplication(_ context.Context, a *loan.Application) error {
	if _, ok := t.applications[a.ID]; !ok {
		return missing("application", int64(a.ID))
	}
	t.applications[a.ID] = *a
	return nil
}

// --- terms ---

func (t *tables) CreateTerms(_ context.Context, tm *loan.Terms) error {
	tm.ID = loan.TermsID(t.next("terms"))
	t.terms[tm.ID] = *tm
	return nil
}

func (t *tables) ListTerms(context.Context) ([]loan.Terms, error) {
	return sortedRows(t.terms, func(loan.Terms) bool { return true }), nil
}

func (t *tables) CreateAcceptedTerms(_ context.Context, rows []loan.AcceptedTerms) error {
	for _, r := range rows {
		if _, ok := t.terms[r.TermsID]; !ok {
			return missing("terms", int64(r.TermsID))
		}
		dup := slices.ContainsFunc(t.accepted, func(a loan.AcceptedTerms) bool {
			return a.ApplicationID == r.ApplicationID && a.TermsID == r.TermsID
		})
		if dup {
			continue
		}
		r.ID = loan.AcceptedTermsID(t.next("accepted_terms"))
		t.accepted = append(t.accepted, r)
	}
	return nil
}

func (t *tables) ListAcceptedTerms(_ context.Context, appID loan.ApplicationID) ([]loan.AcceptedTerms, error) {
	var out []loan.AcceptedTerms
	for _, a := range t.accepted {
		if a.ApplicationID == appID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- judgments ---

func (t *tables) CreateJudgment(_ context.Context, j *loan.Judgment) error {
	for _, existing := range t.judgments {
		if existing.ApplicationID == j.ApplicationID && !existing.IsDeleted {
			return &loan.ConflictError{Code: loan.CodeJudgmentExists, Message: "judgment already exists for application"}
		}
	}
	j.ID = loan.JudgmentID(t.next("judgments"))
	t.judgments[j.ID] = *j
	return nil
}

func (t *tables) GetJudgment(_ context.Context, id loan.JudgmentID) (*loan.Judgment, error) {
	return getRow(t.judgments, id), nil
}

func (t *tables) GetJudgmentByApplication(_ context.Context, appID loan.ApplicationID) (*loan.Judgment, error) {
	live := sortedRows(t.judgments, func(j loan.Judgment) bool {
		return j.ApplicationID == appID && !j.IsDeleted
	})
	if len(live) == 0 {
		return nil, nil
	}
	return &live[0], nil
}

func (t *tables) UpdateJudgment(_ context.Context, j *loan.Judgment) error {
	if _, ok := t.judgments[j.ID]; !ok {
		return missing("judgment", int64(j.ID))
	}
	t.judgments[j.ID] = *j
	return nil
}

// --- entries ---

func (t *tables) CreateEntry(_ context.Context, e *loan.Entry) error {
	e.ID = loan.EntryID(t.next("entries"))
	t.entries[e.ID] = *e
	return nil
}

func (t *tables) GetEntry(_ context.Context, id loan.EntryID) (*loan.Entry, error) {
	return getRow(t.entries, id), nil
}

func (t *tables) GetLatestEntry(_ context.Context, appID loan.ApplicationID) (*loan.Entry, error) {
	live := sortedRows(t.entries, func(e loan.Entry) bool {
		return e.ApplicationID == appID && !e.IsDeleted
	})
	if len(live) == 0 {
		return nil, nil
	}
	return &live[len(live)-1], nil
}

func (t *tables) ListEntries(_ context.Context, appID loan.ApplicationID) ([]loan.Entry, error) {
	return sortedRows(t.entries, func(e loan.Entry) bool { return e.ApplicationID == appID }), nil
}

func (t *tables) UpdateEntry(_ context.Context, e *loan.Entry) error {
	if _, ok := t.entries[e.ID]; !ok {
		return missing("entry", int64(e.ID))
	}
	t.entries[e.ID] = *e
	return nil
}

// --- balances ---

func (t *tables) CreateBalance(_ context.Context, b *loan.Balance) error {
	if _, ok := t.balances[b.ApplicationID]; ok {
		// Someone else created it first; the caller re-reads and retries.
		return loan.ErrConcurrentModification
	}
	b.ID = loan.BalanceID(t.next("balances"))
	b.Version = 1
	t.balances[b.ApplicationID] = *b
	return nil
}

func (t *tables) GetBalance(_ context.Context, appID loan.ApplicationID) (*loan.Balance, error) {
	return getRow(t.balances, appID), nil
}

func (t *tables) UpdateBalance(_ context.Context, b *loan.Balance) error {
	cur, ok := t.balances[b.ApplicationID]
	if !ok {
		return missing("balance", int64(b.ApplicationID))
	}
	if cur.Version != b.Version {
		return loan.ErrConcurrentModification
	}
	b.Version++
	t.balances[b.ApplicationID] = *b
	return nil
}

// --- repayments ---

func (t *tables) CreateRepayment(_ context.Context, r *loan.Repayment) error {
	r.ID = loan.RepaymentID(t.next("repayments"))
	t.repayments[r.ID] = *r
	return nil
}

func (t *tables) GetRepayment(_ context.Context, id loan.RepaymentID) (*loan.Repayment, error) {
	return getRow(t.repayments, id), nil
}

func (t *tables) ListRepayments(_ context.Context, appID loan.ApplicationID) ([]loan.Repayment, error) {
	return sortedRows(t.repayments, func(r loan.Repayment) bool { return r.ApplicationID == appID }), nil
}

func (t *tables) UpdateRepayment(_ context.Context, r *loan.Repayment) error {
	if _, ok := t.repayments[r.ID]; !ok {
		return missing("repayment", int64(r.ID))
	}
	t.repayments[r.ID] = *r
	return nil
}

// =============================================================================
// LOCKED ACCESSORS - Memory outside a transaction
// =============================================================================

func (m *Memory) CreateCounsel(ctx context.Context, c *loan.Counsel) error {
	return m.locked(func(t *tables) error { return t.CreateCounsel(ctx, c) })
}

func (m *Memory) GetCounsel(ctx context.Context, id loan.CounselID) (*loan.Counsel, error) {
	var out *loan.Counsel
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetCounsel(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) UpdateCounsel(ctx context.Context, c *loan.Counsel) error {
	return m.locked(func(t *tables) error { return t.UpdateCounsel(ctx, c) })
}

func (m *Memory) CreateApplication(ctx context.Context, a *loan.Application) error {
	return m.locked(func(t *tables) error { return t.CreateApplication(ctx, a) })
}

func (m *Memory) GetApplication(ctx context.Context, id loan.ApplicationID) (*loan.Application, error) {
	var out *loan.Application
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetApplication(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) UpdateApplication(ctx context.Context, a *loan.Application) error {
	return m.locked(func(t *tables) error { return t.UpdateApplication(ctx, a) })
}

func (m *Memory) CreateTerms(ctx context.Context, tm *loan.Terms) error {
	return m.locked(func(t *tables) error { return t.CreateTerms(ctx, tm) })
}

func (m *Memory) ListTerms(ctx context.Context) ([]loan.Terms, error) {
	var out []loan.Terms
	err := m.locked(func(t *tables) (err error) {
		out, err = t.ListTerms(ctx)
		return err
	})
	return out, err
}

func (m *Memory) CreateAcceptedTerms(ctx context.Context, rows []loan.AcceptedTerms) error {
	return m.locked(func(t *tables) error { return t.CreateAcceptedTerms(ctx, rows) })
}

func (m *Memory) ListAcceptedTerms(ctx context.Context, appID loan.ApplicationID) ([]loan.AcceptedTerms, error) {
	var out []loan.AcceptedTerms
	err := m.locked(func(t *tables) (err error) {
		out, err = t.ListAcceptedTerms(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) CreateJudgment(ctx context.Context, j *loan.Judgment) error {
	return m.locked(func(t *tables) error { return t.CreateJudgment(ctx, j) })
}

func (m *Memory) GetJudgment(ctx context.Context, id loan.JudgmentID) (*loan.Judgment, error) {
	var out *loan.Judgment
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetJudgment(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) GetJudgmentByApplication(ctx context.Context, appID loan.ApplicationID) (*loan.Judgment, error) {
	var out *loan.Judgment
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetJudgmentByApplication(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) UpdateJudgment(ctx context.Context, j *loan.Judgment) error {
	return m.locked(func(t *tables) error { return t.UpdateJudgment(ctx, j) })
}

func (m *Memory) CreateEntry(ctx context.Context, e *loan.Entry) error {
	return m.locked(func(t *tables) error { return t.CreateEntry(ctx, e) })
}

func (m *Memory) GetEntry(ctx context.Context, id loan.EntryID) (*loan.Entry, error) {
	var out *loan.Entry
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetEntry(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) GetLatestEntry(ctx context.Context, appID loan.ApplicationID) (*loan.Entry, error) {
	var out *loan.Entry
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetLatestEntry(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) ListEntries(ctx context.Context, appID loan.ApplicationID) ([]loan.Entry, error) {
	var out []loan.Entry
	err := m.locked(func(t *tables) (err error) {
		out, err = t.ListEntries(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) UpdateEntry(ctx context.Context, e *loan.Entry) error {
	return m.locked(func(t *tables) error { return t.UpdateEntry(ctx, e) })
}

func (m *Memory) CreateBalance(ctx context.Context, b *loan.Balance) error {
	return m.locked(func(t *tables) error { return t.CreateBalance(ctx, b) })
}

func (m *Memory) GetBalance(ctx context.Context, appID loan.ApplicationID) (*loan.Balance, error) {
	var out *loan.Balance
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetBalance(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) UpdateBalance(ctx context.Context, b *loan.Balance) error {
	return m.locked(func(t *tables) error { return t.UpdateBalance(ctx, b) })
}

func (m *Memory) CreateRepayment(ctx context.Context, r *loan.Repayment) error {
	return m.locked(func(t *tables) error { return t.CreateRepayment(ctx, r) })
}

func (m *Memory) GetRepayment(ctx context.Context, id loan.RepaymentID) (*loan.Repayment, error) {
	var out *loan.Repayment
	err := m.locked(func(t *tables) (err error) {
		out, err = t.GetRepayment(ctx, id)
		return err
	})
	return out, err
}

func (m *Memory) ListRepayments(ctx context.Context, appID loan.ApplicationID) ([]loan.Repayment, error) {
	var out []loan.Repayment
	err := m.locked(func(t *tables) (err error) {
		out, err = t.ListRepayments(ctx, appID)
		return err
	})
	return out, err
}

func (m *Memory) UpdateRepayment(ctx context.Context, r *loan.Repayment) error {
	return m.locked(func(t *tables) error { return t.UpdateRepayment(ctx, r) })
}
var _ loan.TxStore = (*Memory)(nil)
