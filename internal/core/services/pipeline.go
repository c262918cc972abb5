package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driving"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// writeAttempts bounds how often a failed store write is retried.
const writeAttempts = 3

// Pipeline runs one job: read queries, resolve them, write the result store.
type Pipeline struct {
	job      string
	source   driven.QuerySource
	resolver *Resolver
	store    driven.ResultStore
	history  driven.HistoryStore
	evict    bool
	observer driving.StateObserver

	// storePath is where store persists, empty for in-memory stores
	storePath string

	newBackOff func() backoff.BackOff
	newRunID   func() string
	now        func() time.Time

	mu    sync.RWMutex
	state domain.PipelineState
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithHistory records every finished run in h.
func WithHistory(h driven.HistoryStore) PipelineOption {
	return func(p *Pipeline) {
		p.history = h
	}
}

// WithObserver notifies fn of every state transition.
func WithObserver(fn driving.StateObserver) PipelineOption {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithEviction drops stale entries and their outputs instead of retaining them.
func WithEviction(evict bool) PipelineOption {
	return func(p *Pipeline) {
		p.evict = evict
	}
}

// WithStorePath records where the pipeline's store persists.
func WithStorePath(path string) PipelineOption {
	return func(p *Pipeline) {
		p.storePath = path
	}
}

// WithWriteBackOff replaces the delay policy between store write attempts.
func WithWriteBackOff(fn func() backoff.BackOff) PipelineOption {
	return func(p *Pipeline) {
		p.newBackOff = fn
	}
}

// NewPipeline creates a pipeline in StateIdle.
func NewPipeline(
	job string,
	source driven.QuerySource,
	resolver *Resolver,
	store driven.ResultStore,
	options ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		job:        job,
		source:     source,
		resolver:   resolver,
		store:      store,
		newBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(200 * time.Millisecond) },
		newRunID:   uuid.NewString,
		now:        time.Now,
		state:      domain.StateIdle,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Job returns the name of the job this pipeline runs.
func (p *Pipeline) Job() string {
	return p.job
}

// State returns the current pipeline state.
func (p *Pipeline) State() domain.PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Run executes the pipeline once. Per-query failures are reported in the summary
// and do not fail the run; only read, store and cancellation errors do.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (p *Pipeline) Run(ctx context.Context) *domain.RunSummary {
	summary := &domain.RunSummary{
		RunID:     p.newRunID(),
		Job:       p.job,
		State:     domain.StateIdle,
		StartedAt: p.now(),
	}

	// 1. Read the previous results and the declared queries
	if err := p.transition(domain.StateReading); err != nil {
		return p.fail(ctx, summary, nil, err)
	}
	previous, err := p.store.Load(ctx)
	if err != nil {
		return p.fail(ctx, summary, nil, fmt.Errorf("load %s: %w", p.store.Location(), err))
	}
	logger.Info("[%s] loaded %d previous resolutions from %s", p.job, previous.Len(), p.store.Location())

	queries, err := p.source.Read(ctx)
	if err != nil {
		return p.fail(ctx, summary, nil, fmt.Errorf("read %s: %w", p.source.Describe(), err))
	}
	summary.Declared = len(queries)

	// 2. Resolve
	if err := p.transition(domain.StateResolving); err != nil {
		return p.fail(ctx, summary, nil, err)
	}
	report := p.resolver.ResolveAll(ctx, queries, previous)
	summary.Unique = len(report.Order)
	summary.Reused = report.Reused

	results := p.merge(ctx, previous, report, summary)
	summary.Tally(report.Results, report.Order)

	// 3. Write; a cancelled run still persists what it has
	if err := p.transition(domain.StateWriting); err != nil {
		return p.fail(ctx, summary, results, err)
	}
	if err := p.write(context.WithoutCancel(ctx), results); err != nil {
		return p.fail(ctx, summary, results, err)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, summary, results, fmt.Errorf("%w: %w", domain.ErrCancelled, err))
	}

	if err := p.transition(domain.StateDone); err != nil {
		return p.fail(ctx, summary, results, err)
	}
	summary.State = domain.StateDone
	summary.EndedAt = p.now()
	p.record(ctx, summary, results)
	return summary
}

// merge combines fresh resolutions with previous entries no longer declared.
// A previous entry whose output path is now claimed by a declared query is
// superseded: its entry is dropped and the output is left to its new owner.
func (p *Pipeline) merge(
	ctx context.Context,
	previous *domain.ResultSet,
	report *ResolveReport,
	summary *domain.RunSummary,
) *domain.ResultSet {
	results := report.Results.Clone()
	claimed := make(map[string]bool)
	for _, id := range results.IDs() {
		if r, _ := results.Get(id); r.Path != "" {
			claimed[filepath.Clean(r.Path)] = true
		}
	}

	for _, id := range previous.IDs() {
		if _, ok := results.Get(id); ok {
			continue
		}
		prev, _ := previous.Get(id)
		if prev.Path != "" && claimed[filepath.Clean(prev.Path)] {
			logger.Debug("[%s] %s is now produced by another query", p.job, prev.Path)
			continue
		}
		if !p.evict {
			results.Put(prev)
			continue
		}
		if err := p.evictEntry(ctx, prev); err != nil {
			logger.Warn("[%s] could not evict %s: %v", p.job, prev.Path, err)
			results.Put(prev)
			continue
		}
		summary.Evicted++
	}
	return results
}

func (p *Pipeline) evictEntry(ctx context.Context, prev domain.Resolution) error {
	if !prev.OK() {
		return nil
	}
	h, ok := p.resolver.Handler(prev.Kind)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedQueryKind, prev.Kind)
	}
	logger.Progress(p.job, "Evicting %s", prev.Path)
	return h.Evict(ctx, prev)
}

// write saves the result store, retrying transient failures.
func (p *Pipeline) write(ctx context.Context, results *domain.ResultSet) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), writeAttempts-1), ctx)
	err := backoff.RetryNotify(func() error {
		return p.store.Save(ctx, results)
	}, b, func(err error, next time.Duration) {
		logger.Warn("[%s] writing %s failed: %v, retrying in %s", p.job, p.store.Location(), err, next)
	})
	if err == nil {
		logger.Info("[%s] wrote %d resolutions to %s", p.job, results.Len(), p.store.Location())
		return nil
	}
	if errors.Is(err, domain.ErrIO) {
		return err
	}
	return &domain.IOError{Op: "write", Path: p.store.Location(), Err: err}
}

func (p *Pipeline) fail(
	ctx context.Context,
	summary *domain.RunSummary,
	results *domain.ResultSet,
	err error,
) *domain.RunSummary {
	_ = p.transition(domain.StateFailed)
	summary.State = domain.StateFailed
	summary.Err = err
	summary.EndedAt = p.now()
	p.record(ctx, summary, results)
	return summary
}

func (p *Pipeline) record(ctx context.Context, summary *domain.RunSummary, results *domain.ResultSet) {
	if p.history == nil {
		return
	}
	if err := p.history.RecordRun(context.WithoutCancel(ctx), summary, results.Sorted()); err != nil {
		logger.Warn("[%s] could not record run history: %v", p.job, err)
	}
}

func (p *Pipeline) transition(to domain.PipelineState) error {
	p.mu.Lock()
	from := p.state
	if !from.CanTransition(to) {
		p.mu.Unlock()
		return fmt.Errorf("invalid pipeline transition %s -> %s", from, to)
	}
	p.state = to
	p.mu.Unlock()

	if p.observer != nil {
		p.observer(p.job, from, to)
	}
	return nil
}
