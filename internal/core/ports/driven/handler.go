package driven

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// Handler performs the out-of-sandbox action for queries of one kind.
type Handler interface {
	// Kind returns the query kind this handler resolves.
	Kind() string

	// Resolve performs one attempt at resolving the query.
	// Retryable failures are reported as *domain.TransportError with Retryable set;
	// queries the handler cannot process return an error wrapping domain.ErrInvalidQuery.
	Resolve(ctx context.Context, q domain.Query) (domain.Payload, error)

	// Fresh reports whether a previous successful resolution is still usable.
	// With verify set, the output's content hash must also match.
	Fresh(ctx context.Context, prev domain.Resolution, verify bool) bool

	// Evict removes the output of a resolution that is no longer declared.
	Evict(ctx context.Context, prev domain.Resolution) error
}

// BatchHandler is a Handler that resolves several queries with one action.
// The resolver hands it every pending query of its kind at once.
type BatchHandler interface {
	Handler

	// ResolveBatch performs one attempt at resolving qs together. On success it
	// returns one result per query, in order. An error fails every query.
	ResolveBatch(ctx context.Context, qs []domain.Query) ([]BatchResult, error)
}

// BatchResult is the outcome of one query of a batch.
type BatchResult struct {
	Payload domain.Payload
	Err     error
}

// JobPlan is what a JobFactory derives from a configured job.
type JobPlan struct {
	// Query is the typst query whose result lists the job's records.
	Query domain.TypstQuery

	// RecordKind is the query kind of records that do not declare one.
	RecordKind string

	// Handlers resolve the job's queries, keyed by their Kind.
	Handlers []Handler

	// IndexName is the result store file, relative to typst.toml.
	// Empty keeps results in memory only.
	IndexName string

	// Options are the job's run options before invocation overrides.
	Options domain.RunOptions
}

// JobFactory configures jobs of one kind.
type JobFactory interface {
	// Kind returns the job kind, e.g. "web-resource".
	Kind() string

	// Plan validates the job configuration and builds its plan.
	// base carries the default run options the job's options are applied to.
	Plan(job domain.Job, project domain.Project, base domain.RunOptions) (*JobPlan, error)
}
