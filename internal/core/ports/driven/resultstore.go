package driven

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// ResultStore persists the ResultSet of one job between runs.
type ResultStore interface {
	// Load returns the previously persisted results; an absent store is empty.
	Load(ctx context.Context) (*domain.ResultSet, error)

	// Save replaces the persisted results. Implementations must never leave a
	// partially written store behind.
	Save(ctx context.Context, results *domain.ResultSet) error

	// Location describes where results are kept.
	Location() string
}

// StoreFactory creates the result store at path; an empty path keeps results in memory.
type StoreFactory func(path string) ResultStore
