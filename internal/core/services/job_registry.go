package services

import (
	"fmt"
	"sort"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

// JobRegistry maps job kinds to the factories that configure them.
type JobRegistry struct {
	factories map[string]driven.JobFactory
}

// NewJobRegistry creates a registry with the given factories.
func NewJobRegistry(factories ...driven.JobFactory) *JobRegistry {
	r := &JobRegistry{factories: make(map[string]driven.JobFactory)}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds a factory, replacing any factory of the same kind.
func (r *JobRegistry) Register(f driven.JobFactory) {
	r.factories[f.Kind()] = f
}

// Kinds returns the registered job kinds in sorted order.
func (r *JobRegistry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Plan configures a job using the factory for its kind.
func (r *JobRegistry) Plan(job domain.Job, project domain.Project, base domain.RunOptions) (*driven.JobPlan, error) {
	f, ok := r.factories[job.Kind]
	if !ok {
		return nil, fmt.Errorf("job %q: %w %q", job.Name, domain.ErrUnknownJobKind, job.Kind)
	}
	plan, err := f.Plan(job, project, base)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}
	return plan, nil
}
