package webresource

import (
	"fmt"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

const (
	// JobKind identifies web-resource jobs in typst.toml.
	JobKind = "web-resource"

	// DefaultIndex is the result store used when `index` is true or unset.
	DefaultIndex = "web-resource-index.toml"

	// DefaultSelector is queried when the job sets no selector.
	DefaultSelector = "<web-resource>"

	// OptRate limits downloads per second.
	OptRate = "rate"

	// OptUserAgent overrides the User-Agent header.
	OptUserAgent = "user-agent"
)

// Ensure JobFactory implements the interface.
var _ driven.JobFactory = (*JobFactory)(nil)

// JobFactory configures web-resource jobs.
type JobFactory struct {
	client ClientConfig
}

// NewJobFactory creates a factory; cfg applies to every job it plans.
func NewJobFactory(cfg ClientConfig) *JobFactory {
	return &JobFactory{client: cfg}
}

// Kind returns JobKind.
func (f *JobFactory) Kind() string {
	return JobKind
}

// Plan validates a web-resource job and creates its fetch handler.
func (f *JobFactory) Plan(job domain.Job, project domain.Project, base domain.RunOptions) (*driven.JobPlan, error) {
	query, err := job.Query.Build(domain.QueryDefaults{
		Selector: DefaultSelector,
		Field:    "value",
		One:      false,
	})
	if err != nil {
		return nil, err
	}
	if query.One {
		return nil, fmt.Errorf("%w: web-resource query must have `one = false`", domain.ErrInvalidInput)
	}

	opts, err := job.Options.RunOptions(base)
	if err != nil {
		return nil, err
	}
	index, err := job.Options.Index(DefaultIndex)
	if err != nil {
		return nil, err
	}
	perSecond, _, err := job.Options.Float(OptRate)
	if err != nil {
		return nil, err
	}
	if perSecond < 0 {
		return nil, fmt.Errorf("%w: option `%s` must not be negative", domain.ErrInvalidInput, OptRate)
	}

	cfg := f.client
	if ua, ok, err := job.Options.String(OptUserAgent); err != nil {
		return nil, err
	} else if ok {
		cfg.UserAgent = ua
	}

	client := NewClient(cfg, NewRateLimiter(perSecond))
	return &driven.JobPlan{
		Query:      query,
		RecordKind: domain.KindFetch,
		Handlers:   []driven.Handler{NewHandler(project.ResolveRoot(), client)},
		IndexName:  index,
		Options:    opts,
	}, nil
}
