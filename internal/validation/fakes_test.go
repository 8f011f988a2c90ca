package validation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
	coreerrors "github.com/lueurxax/maritime-claim-validator/internal/core/errors"
	"github.com/lueurxax/maritime-claim-validator/internal/platform/config"
)

// Test error sentinels.
var (
	errTimeout     = errors.New("canceling statement due to statement timeout")
	errRateLimited = errors.New("429 too many requests")
	errDBDown      = errors.New("connection refused")
)

const (
	analysisSupported   = "SUPPORT: Yes\nCONFIDENCE: 0.8\nEVIDENCE: 12 calls recorded\nLIMITATIONS: single quarter"
	analysisUnsupported = "SUPPORT: No\nCONFIDENCE: 0.2\nEVIDENCE: none\nLIMITATIONS: no rows"
)

// fakeCompleter routes extraction and analysis prompts to separate replies.
type fakeCompleter struct {
	extraction    string
	extractionErr error
	analysis      func(user string) (string, error)

	extractCalls  atomic.Int32
	analysisCalls atomic.Int32
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	if system == extractionSystemPrompt {
		f.extractCalls.Add(1)
		return f.extraction, f.extractionErr
	}

	f.analysisCalls.Add(1)

	if f.analysis == nil {
		return analysisSupported, nil
	}

	return f.analysis(user)
}

// fakeExecutor returns canned rows unless failFor rejects the statement.
// Custom statements are recorded separately from generated ones.
type fakeExecutor struct {
	mu      sync.Mutex
	rows    domain.ResultSet
	failFor func(sql string) error
	queries []string
	args    [][]any
	custom  []string
}

func (f *fakeExecutor) Execute(_ context.Context, sql string, args ...any) (domain.ResultSet, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	f.args = append(f.args, args)
	f.mu.Unlock()

	if f.failFor != nil {
		if err := f.failFor(sql); err != nil {
			return domain.ResultSet{}, err
		}
	}

	return f.rows, nil
}

func (f *fakeExecutor) RunCustomQuery(_ context.Context, sql string) (domain.ResultSet, error) {
	f.mu.Lock()
	f.custom = append(f.custom, sql)
	f.mu.Unlock()

	if f.failFor != nil {
		if err := f.failFor(sql); err != nil {
			return domain.ResultSet{}, err
		}
	}

	return f.rows, nil
}

func rowsOf(n int) domain.ResultSet {
	rs := domain.ResultSet{Columns: []string{"imo", "vessel_name"}}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, []any{int64(9000000 + i), "MAERSK TEST"})
	}

	return rs
}

// fakeRepo is an in-memory research metadata store.
type fakeRepo struct {
	mu          sync.Mutex
	themes      map[int64]*domain.Theme
	claims      map[int64]*domain.ClaimRecord
	nextID      int64
	confidences map[int64][]float64

	storeErr  error
	updateErr error
	deleteErr error
	staleIDs  []int64
}

func newFakeRepo(themes ...*domain.Theme) *fakeRepo {
	r := &fakeRepo{
		themes:      make(map[int64]*domain.Theme),
		claims:      make(map[int64]*domain.ClaimRecord),
		confidences: make(map[int64][]float64),
	}

	for _, t := range themes {
		r.themes[t.ID] = t
	}

	return r
}

func (r *fakeRepo) GetTheme(_ context.Context, id int64) (*domain.Theme, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.themes[id]
	if !ok {
		return nil, coreerrors.ErrThemeNotFound
	}

	cp := *t

	return &cp, nil
}

func (r *fakeRepo) UpdateThemeConfidence(_ context.Context, themeID int64, confidence float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return r.updateErr
	}

	r.confidences[themeID] = append(r.confidences[themeID], confidence)

	if t, ok := r.themes[themeID]; ok {
		c := confidence
		t.OverallConfidence = &c
		t.Status = domain.ThemeStatusCompleted
	}

	return nil
}

func (r *fakeRepo) StoreClaim(_ context.Context, rec *domain.ClaimRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return 0, r.storeErr
	}

	r.nextID++
	cp := *rec
	cp.ID = r.nextID
	r.claims[cp.ID] = &cp

	return cp.ID, nil
}

func (r *fakeRepo) GetClaim(_ context.Context, id int64) (*domain.ClaimRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[id]
	if !ok {
		return nil, coreerrors.ErrClaimNotFound
	}

	cp := *c

	return &cp, nil
}

func (r *fakeRepo) UpdateClaimResult(_ context.Context, rec *domain.ClaimRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.claims[rec.ID]; !ok {
		return coreerrors.ErrClaimNotFound
	}

	cp := *rec
	r.claims[rec.ID] = &cp

	return nil
}

func (r *fakeRepo) DeleteThemeClaims(_ context.Context, themeID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return 0, r.deleteErr
	}

	var n int64

	for id, c := range r.claims {
		if c.ThemeID == themeID && !c.Manual {
			delete(r.claims, id)
			n++
		}
	}

	return n, nil
}

func (r *fakeRepo) ListThemeClaims(_ context.Context, themeID int64) ([]domain.ClaimRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.ClaimRecord

	for _, c := range r.claims {
		if c.ThemeID == themeID {
			out = append(out, *c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *fakeRepo) ListStaleClaimIDs(_ context.Context, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.staleIDs) > limit {
		return r.staleIDs[:limit], nil
	}

	return r.staleIDs, nil
}

func (r *fakeRepo) claimList() []domain.ClaimRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ClaimRecord, 0, len(r.claims))
	for _, c := range r.claims {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultQuarter:    "2025Q1",
		ValidationWorkers: 1,
		MaxClaims:         10,
		BulkWorkers:       2,
		BulkBatchSize:     50,
	}
}

func testTheme() *domain.Theme {
	return &domain.Theme{
		ID:                7,
		Quarter:           "2025Q1",
		Title:             "Red Sea diversions",
		ResearchContent:   "Maersk vessels increased port calls to Rotterdam in Q1 2025",
		ValidationTargets: []string{"port frequency"},
	}
}
