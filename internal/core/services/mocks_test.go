package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/goleak"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	goleak.VerifyTestMain(m)
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

// fetchQuery builds a fetch query, failing the test on error.
func fetchQuery(t *testing.T, url, path string) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(domain.KindFetch, map[string]any{
		domain.ParamURL:  url,
		domain.ParamPath: path,
	})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}

// --- Handler ---

type mockHandler struct {
	kind    string
	resolve func(ctx context.Context, q domain.Query, attempt int) (domain.Payload, error)
	fresh   bool

	mu       sync.Mutex
	calls    map[string]int
	inFlight int
	peak     int
	evicted  []string
	evictErr error
}

func newMockHandler(kind string) *mockHandler {
	return &mockHandler{kind: kind, calls: make(map[string]int)}
}

func (h *mockHandler) Kind() string { return h.kind }

func (h *mockHandler) Resolve(ctx context.Context, q domain.Query) (domain.Payload, error) {
	h.mu.Lock()
	h.calls[q.ID]++
	attempt := h.calls[q.ID]
	h.inFlight++
	h.peak = max(h.peak, h.inFlight)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inFlight--
		h.mu.Unlock()
	}()

	if h.resolve != nil {
		return h.resolve(ctx, q, attempt)
	}
	return domain.Payload{Path: q.Path(), Hash: "sha256:" + q.ID[:16], Size: 42}, nil
}

func (h *mockHandler) Fresh(_ context.Context, _ domain.Resolution, _ bool) bool {
	return h.fresh
}

func (h *mockHandler) Evict(_ context.Context, prev domain.Resolution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evictErr != nil {
		return h.evictErr
	}
	h.evicted = append(h.evicted, prev.Path)
	return nil
}

func (h *mockHandler) totalCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		n += c
	}
	return n
}

func (h *mockHandler) callsFor(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func (h *mockHandler) peakConcurrency() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peak
}

// --- BatchHandler ---

type mockBatchHandler struct {
	*mockHandler
	batch func(ctx context.Context, qs []domain.Query, call int) ([]driven.BatchResult, error)

	batches [][]string
}

func newMockBatchHandler(kind string) *mockBatchHandler {
	return &mockBatchHandler{mockHandler: newMockHandler(kind)}
}

func (h *mockBatchHandler) ResolveBatch(ctx context.Context, qs []domain.Query) ([]driven.BatchResult, error) {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	h.mu.Lock()
	h.batches = append(h.batches, ids)
	call := len(h.batches)
	h.mu.Unlock()

	if h.batch != nil {
		return h.batch(ctx, qs, call)
	}
	out := make([]driven.BatchResult, len(qs))
	for i, q := range qs {
		out[i].Payload = domain.Payload{Path: q.Path(), Size: 1}
	}
	return out, nil
}

func (h *mockBatchHandler) batchCalls() [][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]string(nil), h.batches...)
}

// shellQuery builds a shell query, failing the test on error.
func shellQuery(t *testing.T, path string, data any) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(domain.KindShell, map[string]any{
		domain.ParamPath: path,
		domain.ParamData: data,
	})
	if err != nil {
		t.Fatalf("NewQuery: %v", err)
	}
	return q
}

// unreachable fails every attempt with a retryable transport error.
func unreachable(_ context.Context, _ domain.Query, _ int) (domain.Payload, error) {
	return domain.Payload{}, &domain.TransportError{
		Retryable: true,
		Err:       errors.New("dial tcp: lookup unreachable.invalid: no such host"),
	}
}

// --- QuerySource ---

type mockSource struct {
	queries []domain.Query
	err     error
	reads   int
}

func (s *mockSource) Read(ctx context.Context) ([]domain.Query, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return s.queries, ctx.Err()
}

func (s *mockSource) Describe() string { return "mock source" }

// --- ResultStore ---

type mockStore struct {
	mu       sync.Mutex
	saved    *domain.ResultSet
	saves    int
	failures int
	loadErr  error
}

func (s *mockStore) Load(_ context.Context) (*domain.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.saved.Clone(), nil
}

func (s *mockStore) Save(_ context.Context, results *domain.ResultSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	s.saved = results.Clone()
	return nil
}

func (s *mockStore) Location() string { return "mock store" }

// --- HistoryStore ---

type mockHistory struct {
	mu      sync.Mutex
	runs    []domain.RunSummary
	results map[string][]domain.Resolution
}

func newMockHistory() *mockHistory {
	return &mockHistory{results: make(map[string][]domain.Resolution)}
}

func (h *mockHistory) RecordRun(_ context.Context, s *domain.RunSummary, results []domain.Resolution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append([]domain.RunSummary{*s}, h.runs...)
	h.results[s.RunID] = results
	return nil
}

func (h *mockHistory) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit < len(h.runs) {
		return h.runs[:limit], nil
	}
	return h.runs, nil
}

func (h *mockHistory) Close() error { return nil }

// --- Manifest and job factories ---

type mockManifests struct {
	manifest *domain.Manifest
	err      error
}

func (m *mockManifests) Read(_ context.Context, _ string) (*domain.Manifest, error) {
	return m.manifest, m.err
}

type mockJobFactory struct {
	kind    string
	handler driven.Handler
	index   string
}

func (f *mockJobFactory) Kind() string { return f.kind }

func (f *mockJobFactory) Plan(job domain.Job, _ domain.Project, base domain.RunOptions) (*driven.JobPlan, error) {
	opts, err := job.Options.RunOptions(base)
	if err != nil {
		return nil, err
	}
	index, err := job.Options.Index(f.index)
	if err != nil {
		return nil, err
	}
	q, err := job.Query.Build(domain.QueryDefaults{Selector: "<" + job.Name + ">", Field: "value"})
	if err != nil {
		return nil, err
	}
	return &driven.JobPlan{
		Query:      q,
		RecordKind: domain.KindFetch,
		Handlers:   []driven.Handler{f.handler},
		IndexName:  index,
		Options:    opts,
	}, nil
}

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
