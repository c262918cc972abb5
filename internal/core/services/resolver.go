package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// maxRetryAfter caps server-requested delays between attempts.
const maxRetryAfter = time.Minute

// ResolveReport is the outcome of resolving a batch of queries.
type ResolveReport struct {
	// Results holds exactly one resolution per unique identity.
	Results *domain.ResultSet
	// Order lists the unique identities in first-declaration order.
	Order []string
	// Reused counts resolutions taken from the previous results.
	Reused int
	// Attempts is the total number of handler invocations.
	Attempts int
}

// Resolver turns queries into resolutions using the handler registered for each kind.
type Resolver struct {
	job      string
	handlers map[string]driven.Handler
	opts     domain.RunOptions

	newBackOff func() backoff.BackOff
	now        func() time.Time

	group singleflight.Group
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithBackOff replaces the delay policy between attempts.
func WithBackOff(fn func() backoff.BackOff) ResolverOption {
	return func(r *Resolver) {
		r.newBackOff = fn
	}
}

// WithClock replaces the time source used for resolution timestamps and max-age.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver for one job.
func NewResolver(job string, handlers []driven.Handler, opts domain.RunOptions, options ...ResolverOption) *Resolver {
	r := &Resolver{
		job:        job,
		handlers:   make(map[string]driven.Handler, len(handlers)),
		opts:       opts.Normalise(),
		newBackOff: defaultBackOff,
		now:        time.Now,
	}
	for _, h := range handlers {
		r.handlers[h.Kind()] = h
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Handler returns the handler registered for a query kind.
func (r *Resolver) Handler(kind string) (driven.Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// ResolveAll resolves every distinct query once. Duplicates share the resolution
// of their identity. Per-query failures never abort the batch; once ctx is done the
// remaining queries are recorded as cancelled. Pending queries of a kind with a
// BatchHandler are resolved together.
func (r *Resolver) ResolveAll(ctx context.Context, queries []domain.Query, previous *domain.ResultSet) *ResolveReport {
	unique := dedupe(queries)
	report := &ResolveReport{
		Results: domain.NewResultSet(),
		Order:   make([]string, 0, len(unique)),
	}
	for _, q := range unique {
		report.Order = append(report.Order, q.ID)
	}
	logger.Debug("[%s] %d queries, %d unique", r.job, len(queries), len(unique))

	var mu sync.Mutex
	put := func(res domain.Resolution, reused bool) {
		mu.Lock()
		defer mu.Unlock()
		report.Results.Put(res)
		if reused {
			report.Reused++
		} else {
			report.Attempts += res.Attempts
		}
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)

	pending := make(map[string][]domain.Query)
	var batchKinds []string
	for _, q := range unique {
		bh, ok := r.handlers[q.Kind].(driven.BatchHandler)
		if !ok {
			g.Go(func() error {
				put(r.Resolve(ctx, q, previous))
				return nil
			})
			continue
		}
		if res, reused, done := r.settled(ctx, bh, q, previous); done {
			put(res, reused)
			continue
		}
		if _, seen := pending[q.Kind]; !seen {
			batchKinds = append(batchKinds, q.Kind)
		}
		pending[q.Kind] = append(pending[q.Kind], q)
	}

	for _, kind := range batchKinds {
		bh := r.handlers[kind].(driven.BatchHandler)
		qs := pending[kind]
		g.Go(func() error {
			results, attempts := r.attemptBatch(ctx, bh, qs)
			mu.Lock()
			defer mu.Unlock()
			for _, res := range results {
				report.Results.Put(res)
			}
			report.Attempts += attempts
			return nil
		})
	}
	_ = g.Wait()

	return report
}

// Resolve produces the resolution of a single query. The second result reports
// whether a previous resolution was reused. Concurrent calls for the same identity
// share one resolution.
func (r *Resolver) Resolve(ctx context.Context, q domain.Query, previous *domain.ResultSet) (domain.Resolution, bool) {
	h, ok := r.handlers[q.Kind]
	if !ok {
		err := fmt.Errorf("%w: %q", domain.ErrUnsupportedQueryKind, q.Kind)
		logger.Progress(r.job, "%s failed: %v", q.Describe(), err)
		return domain.Failed(q, err, 0), false
	}

	if res, reused, done := r.settled(ctx, h, q, previous); done {
		return res, reused
	}

	v, _, _ := r.group.Do(q.ID, func() (any, error) {
		return r.attempt(ctx, h, q), nil
	})
	return v.(domain.Resolution), false
}

// settled resolves q without invoking h when its previous resolution can be
// reused or ctx is already done. The last result reports whether it did.
func (r *Resolver) settled(
	ctx context.Context,
	h driven.Handler,
	q domain.Query,
	previous *domain.ResultSet,
) (res domain.Resolution, reused, done bool) {
	if prev, ok := previous.Get(q.ID); ok && r.reusable(ctx, h, prev) {
		logger.Progress(r.job, "%s skipped (up to date)", q.Describe())
		return prev, true, true
	}
	if ctx.Err() != nil {
		return domain.Cancelled(q, 0), false, true
	}
	return domain.Resolution{}, false, false
}

// reusable applies the cache policy to a previous resolution.
func (r *Resolver) reusable(ctx context.Context, h driven.Handler, prev domain.Resolution) bool {
	if !prev.OK() || r.opts.Cache == domain.CacheRefresh {
		return false
	}
	if r.opts.MaxAge > 0 && r.now().Sub(prev.ResolvedAt) > r.opts.MaxAge {
		logger.Debug("[%s] %s expired (resolved %s)", r.job, prev.QueryID, prev.ResolvedAt.Format(time.RFC3339))
		return false
	}
	return h.Fresh(ctx, prev, r.opts.Cache == domain.CacheVerify)
}

// attempt runs the handler for one query.
func (r *Resolver) attempt(ctx context.Context, h driven.Handler, q domain.Query) domain.Resolution {
	var payload domain.Payload

	logger.Progress(r.job, "Resolving %s...", q.Describe())
	attempts, err := r.retry(ctx, q.Describe(), func(actx context.Context) error {
		p, err := h.Resolve(actx, q)
		payload = p
		return err
	})
	switch {
	case err == nil:
		logger.Progress(r.job, "%s finished", q.Describe())
		return domain.Succeeded(q, payload, attempts, r.now())
	case domain.IsCancelled(err) || ctx.Err() != nil:
		logger.Progress(r.job, "%s cancelled", q.Describe())
		return domain.Cancelled(q, attempts)
	default:
		logger.Progress(r.job, "%s failed after %d attempt(s): %v", q.Describe(), attempts, err)
		return domain.Failed(q, err, attempts)
	}
}

// attemptBatch runs the batch handler for qs, retrying the batch as a whole.
// It returns one resolution per query and the number of invocations.
func (r *Resolver) attemptBatch(ctx context.Context, h driven.BatchHandler, qs []domain.Query) ([]domain.Resolution, int) {
	var results []driven.BatchResult

	desc := fmt.Sprintf("%d %s queries", len(qs), h.Kind())
	logger.Progress(r.job, "Resolving %s together...", desc)
	attempts, err := r.retry(ctx, desc, func(actx context.Context) error {
		res, err := h.ResolveBatch(actx, qs)
		if err != nil {
			return err
		}
		if len(res) != len(qs) {
			return fmt.Errorf("batch returned %d results for %d queries", len(res), len(qs))
		}
		results = res
		return nil
	})

	out := make([]domain.Resolution, len(qs))
	failed := 0
	for i, q := range qs {
		switch {
		case err == nil && results[i].Err == nil:
			out[i] = domain.Succeeded(q, results[i].Payload, attempts, r.now())
		case err == nil:
			failed++
			logger.Progress(r.job, "%s failed: %v", q.Describe(), results[i].Err)
			out[i] = domain.Failed(q, results[i].Err, attempts)
		case domain.IsCancelled(err) || ctx.Err() != nil:
			out[i] = domain.Cancelled(q, attempts)
		default:
			out[i] = domain.Failed(q, err, attempts)
		}
	}

	switch {
	case err == nil:
		logger.Progress(r.job, "%s finished, %d failed", desc, failed)
	case domain.IsCancelled(err) || ctx.Err() != nil:
		logger.Progress(r.job, "%s cancelled", desc)
	default:
		logger.Progress(r.job, "%s failed after %d attempt(s): %v", desc, attempts, err)
	}
	return out, attempts
}

// retry calls fn until it succeeds, fails permanently or runs out of attempts.
// Every call gets its own timeout. It returns the number of calls made.
func (r *Resolver) retry(ctx context.Context, desc string, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	b := &retryAfterBackOff{BackOff: r.newBackOff()}

	op := func() error {
		attempts++
		logger.Debug("[%s] resolving %s (attempt %d/%d)", r.job, desc, attempts, r.opts.Retries)

		actx := ctx
		if r.opts.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
		}

		err := fn(actx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err()))
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		b.requested(err)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.Retries-1)), ctx)
	notify := func(err error, next time.Duration) {
		logger.Debug("[%s] %s: %v, retrying in %s", r.job, desc, err, next)
	}
	err := backoff.RetryNotify(op, policy, notify)
	return attempts, err
}

// retryAfterBackOff uses a server-requested delay, when one is pending, as the
// next interval instead of the wrapped policy's.
type retryAfterBackOff struct {
	backoff.BackOff
	pending time.Duration
}

// requested records the Retry-After carried by err, if any.
func (b *retryAfterBackOff) requested(err error) {
	var te *domain.TransportError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		b.pending = min(te.RetryAfter, maxRetryAfter)
	}
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.pending > 0 {
		next, b.pending = b.pending, 0
	}
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.pending = 0
	b.BackOff.Reset()
}

// dedupe keeps the first query of every identity, preserving declaration order.
func dedupe(queries []domain.Query) []domain.Query {
	seen := make(map[string]struct{}, len(queries))
	out := make([]domain.Query, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}
