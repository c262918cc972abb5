// Package storage selects the result store implementation for a job.
package storage

import (
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage/file"
	"github.com/prequery/prequery-preprocess/internal/adapters/driven/storage/memory"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

// Ensure NewResultStore is a driven.StoreFactory.
var _ driven.StoreFactory = NewResultStore

// NewResultStore returns a file store at path, or a memory store for an empty path.
func NewResultStore(path string) driven.ResultStore {
	if path == "" {
		return memory.NewResultStore()
	}
	return file.NewResultStore(path)
}
