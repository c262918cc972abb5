package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/fsutil"
)

// Ensure ResultStore implements the interface.
var _ driven.ResultStore = (*ResultStore)(nil)

// ResultStore keeps a job's results in a single file.
type ResultStore struct {
	path   string
	format Format
}

// NewResultStore creates a store at path; the format follows its extension.
func NewResultStore(path string) *ResultStore {
	return &ResultStore{path: path, format: FormatFor(path)}
}

// Load reads the previous results. A missing file is an empty result set.
func (s *ResultStore) Load(_ context.Context) (*domain.ResultSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewResultSet(), nil
	}
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: s.path, Err: err}
	}

	var doc document
	if err := s.format.unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", domain.ErrInvalidInput, s.path, err)
	}
	return decode(&doc)
}

// Save atomically replaces the file with the serialized results.
func (s *ResultStore) Save(_ context.Context, results *domain.ResultSet) error {
	data, err := s.Encode(results)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(s.path, data); err != nil {
		return &domain.IOError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

// Encode serializes results exactly as Save writes them.
func (s *ResultStore) Encode(results *domain.ResultSet) ([]byte, error) {
	data, err := s.format.marshal(encode(results))
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", s.path, err)
	}
	return data, nil
}

// Location returns the store path.
func (s *ResultStore) Location() string {
	return s.path
}
