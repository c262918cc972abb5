package memory

import (
	"context"
	"sync"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

// Ensure ResultStore implements the interface.
var _ driven.ResultStore = (*ResultStore)(nil)

// ResultStore is an in-memory implementation of driven.ResultStore.
// It backs jobs with `index = false` and keeps results for the process lifetime.
type ResultStore struct {
	mu      sync.RWMutex
	results *domain.ResultSet
	saves   int
}

// NewResultStore creates an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: domain.NewResultSet()}
}

// Load returns a copy of the stored results.
func (s *ResultStore) Load(_ context.Context) (*domain.ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results.Clone(), nil
}

// Save replaces the stored results with a copy of results.
func (s *ResultStore) Save(_ context.Context, results *domain.ResultSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results.Clone()
	s.saves++
	return nil
}

// Saves returns how often Save was called.
func (s *ResultStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Location describes the store.
func (s *ResultStore) Location() string {
	return "memory"
}
