package shell

import (
	"fmt"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

const (
	// JobKind identifies shell jobs in typst.toml.
	JobKind = "shell"

	// DefaultIndex is the result store used when `index` is true or unset.
	DefaultIndex = "shell-index.toml"

	// OptCommand is the program and its arguments.
	OptCommand = "command"

	// OptJoined requests a single invocation for all records.
	OptJoined = "joined"

	// OptConcurrent allows commands to run in parallel.
	OptConcurrent = "concurrent"
)

// Ensure JobFactory implements the interface.
var _ driven.JobFactory = (*JobFactory)(nil)

// JobFactory configures shell jobs.
type JobFactory struct{}

// NewJobFactory creates a shell job factory.
func NewJobFactory() *JobFactory {
	return &JobFactory{}
}

// Kind returns JobKind.
func (f *JobFactory) Kind() string {
	return JobKind
}

// Plan validates a shell job and creates its handler.
// Commands run one at a time unless `concurrent` or `concurrency` is set;
// with `joined` one command handles all records.
func (f *JobFactory) Plan(job domain.Job, project domain.Project, base domain.RunOptions) (*driven.JobPlan, error) {
	query, err := job.Query.Build(domain.QueryDefaults{Field: "value", One: false})
	if err != nil {
		return nil, err
	}
	if query.One {
		return nil, fmt.Errorf("%w: shell query must have `one = false`", domain.ErrInvalidInput)
	}

	command, ok, err := job.Options.StringSlice(OptCommand)
	if err != nil {
		return nil, err
	}
	if !ok || len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("%w: missing field `%s`", domain.ErrInvalidInput, OptCommand)
	}

	joined, _, err := job.Options.Bool(OptJoined)
	if err != nil {
		return nil, err
	}

	opts, err := job.Options.RunOptions(base)
	if err != nil {
		return nil, err
	}
	concurrent, _, err := job.Options.Bool(OptConcurrent)
	if err != nil {
		return nil, err
	}
	if _, explicit := job.Options[domain.OptConcurrency]; !concurrent && !explicit {
		opts.Concurrency = 1
	}
	index, err := job.Options.Index(DefaultIndex)
	if err != nil {
		return nil, err
	}

	var handler driven.Handler = NewHandler(project.ResolveRoot(), command)
	if joined {
		handler = NewJoinedHandler(project.ResolveRoot(), command)
	}

	return &driven.JobPlan{
		Query:      query,
		RecordKind: domain.KindShell,
		Handlers:   []driven.Handler{handler},
		IndexName:  index,
		Options:    opts,
	}, nil
}
