package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driving"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// Ensure Preprocessor implements the interface.
var _ driving.Preprocessor = (*Preprocessor)(nil)

// Preprocessor builds one pipeline per configured job and runs them.
type Preprocessor struct {
	manifests driven.ManifestReader
	registry  *JobRegistry
	sources   driven.SourceFactory
	stores    driven.StoreFactory
	history   driven.HistoryStore
	base      domain.RunOptions
}

// NewPreprocessor creates a preprocessor.
// history is optional; base holds the run options used when a job sets none.
func NewPreprocessor(
	manifests driven.ManifestReader,
	registry *JobRegistry,
	sources driven.SourceFactory,
	stores driven.StoreFactory,
	history driven.HistoryStore,
	base domain.RunOptions,
) *Preprocessor {
	return &Preprocessor{
		manifests: manifests,
		registry:  registry,
		sources:   sources,
		stores:    stores,
		history:   history,
		base:      base,
	}
}

// Run executes the selected jobs concurrently.
// Configuration errors of all jobs are reported together before any job starts.
func (p *Preprocessor) Run(ctx context.Context, req driving.RunRequest) ([]*domain.RunSummary, error) {
	manifest, err := p.manifests.Read(ctx, req.Project.Input)
	if err != nil {
		return nil, err
	}
	logger.Info("using manifest %s with %d job(s)", manifest.Path, len(manifest.Jobs))

	jobs, err := selectJobs(manifest.Jobs, req.Jobs)
	if err != nil {
		return nil, err
	}
	if (req.QueryFile != "" || req.Output != "") && len(jobs) != 1 {
		return nil, fmt.Errorf("%w: --query-file and --output need exactly one job, %d selected",
			domain.ErrInvalidInput, len(jobs))
	}

	pipelines := make([]*Pipeline, 0, len(jobs))
	var errs []error
	for _, job := range jobs {
		pl, err := p.build(manifest, job, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pipelines = append(pipelines, pl)
	}
	if err := p.checkStores(manifest, jobs, pipelines); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	summaries := make([]*domain.RunSummary, len(pipelines))
	var g errgroup.Group
	for i, pl := range pipelines {
		g.Go(func() error {
			summaries[i] = pl.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, s := range summaries {
		if s.State == domain.StateFailed {
			failed = append(failed, fmt.Errorf("job %q: %w", s.Job, s.Err))
		}
	}
	return summaries, errors.Join(failed...)
}

func (p *Preprocessor) build(manifest *domain.Manifest, job domain.Job, req driving.RunRequest) (*Pipeline, error) {
	plan, err := p.registry.Plan(job, req.Project, p.base)
	if err != nil {
		return nil, err
	}
	opts := req.Overrides.Apply(plan.Options).Normalise()

	storePath := req.Output
	if storePath == "" {
		storePath = indexPath(manifest, plan)
	}

	source := p.sources(driven.SourceRequest{
		Query:      plan.Query,
		File:       req.QueryFile,
		RecordKind: plan.RecordKind,
	})
	resolver := NewResolver(job.Name, plan.Handlers, opts)

	options := []PipelineOption{WithEviction(opts.Evict), WithStorePath(storePath)}
	if p.history != nil {
		options = append(options, WithHistory(p.history))
	}
	if req.Observer != nil {
		options = append(options, WithObserver(req.Observer))
	}
	return NewPipeline(job.Name, source, resolver, p.stores(storePath), options...), nil
}

// checkStores rejects selected jobs whose result store is also used by another
// job of the manifest. Jobs sharing a store overwrite each other's entries and,
// with eviction, each other's outputs.
func (p *Preprocessor) checkStores(manifest *domain.Manifest, selected []domain.Job, pipelines []*Pipeline) error {
	owners := make(map[string][]string)
	var order []string
	claim := func(path, job string) {
		if path == "" {
			return
		}
		if _, ok := owners[path]; !ok {
			order = append(order, path)
		}
		owners[path] = append(owners[path], job)
	}

	chosen := make(map[string]bool, len(selected))
	for _, job := range selected {
		chosen[job.Name] = true
	}
	for _, pl := range pipelines {
		claim(pl.storePath, pl.job)
	}
	for _, job := range manifest.Jobs {
		if chosen[job.Name] {
			continue
		}
		// unselected jobs only need a plan to know their store
		plan, err := p.registry.Plan(job, domain.Project{}, p.base)
		if err != nil {
			continue
		}
		claim(indexPath(manifest, plan), job.Name)
	}

	var errs []error
	for _, path := range order {
		if jobs := owners[path]; len(jobs) > 1 {
			errs = append(errs, fmt.Errorf("%w: jobs %q share the result store %s, set a distinct `index` for each",
				domain.ErrInvalidInput, jobs, path))
		}
	}
	return errors.Join(errs...)
}

// indexPath resolves a plan's index name against the manifest directory.
func indexPath(manifest *domain.Manifest, plan *driven.JobPlan) string {
	if plan.IndexName == "" || filepath.IsAbs(plan.IndexName) {
		return plan.IndexName
	}
	return filepath.Join(manifest.Dir(), plan.IndexName)
}

// selectJobs filters jobs by name, keeping manifest order.
func selectJobs(jobs []domain.Job, names []string) ([]domain.Job, error) {
	if len(names) == 0 {
		return jobs, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = false
	}
	var out []domain.Job
	for _, j := range jobs {
		if _, ok := wanted[j.Name]; ok {
			wanted[j.Name] = true
			out = append(out, j)
		}
	}
	var errs []error
	for _, n := range names {
		if !wanted[n] {
			errs = append(errs, fmt.Errorf("job %q: %w", n, domain.ErrNotFound))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
