package services

import (
	"context"
	"errors"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driving"
)

// Ensure HistoryService implements the interface.
var _ driving.RunHistory = (*HistoryService)(nil)

// ErrHistoryDisabled is returned when no history store is configured.
var ErrHistoryDisabled = errors.New("run history is not enabled")

// DefaultHistoryLimit is the number of runs listed when no limit is given.
const DefaultHistoryLimit = 20

// HistoryService lists recorded runs.
type HistoryService struct {
	store driven.HistoryStore
}

// NewHistoryService creates a history service; store may be nil.
func NewHistoryService(store driven.HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// Recent returns up to limit runs, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.store.ListRuns(ctx, limit)
}
