package driving

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// Preprocessor runs the prequery jobs of a document.
type Preprocessor interface {
	// Run executes every selected job and returns one summary per job, in manifest order.
	// The error is non-nil if configuration failed or any job ended in StateFailed.
	Run(ctx context.Context, req RunRequest) ([]*domain.RunSummary, error)
}

// RunRequest describes one invocation.
type RunRequest struct {
	Project domain.Project

	// Jobs restricts the run to the named jobs; empty runs all.
	Jobs []string

	// Overrides take precedence over job options.
	Overrides domain.RunOverrides

	// QueryFile replaces the typst query with pre-exported JSON ("-" for stdin).
	// Only valid when a single job runs.
	QueryFile string

	// Output replaces the job's index path. Only valid when a single job runs.
	Output string

	// Observer, if set, is notified of every pipeline state transition.
	Observer StateObserver
}

// StateObserver receives pipeline state transitions.
type StateObserver func(job string, from, to domain.PipelineState)

// RunHistory exposes recorded runs.
type RunHistory interface {
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
