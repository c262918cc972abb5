package driven

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// HistoryStore records preprocessing runs.
type HistoryStore interface {
	// RecordRun stores a finished run and the resolutions it produced.
	RecordRun(ctx context.Context, summary *domain.RunSummary, results []domain.Resolution) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)

	// Close releases the underlying storage.
	Close() error
}
