package driven

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// QuerySource produces the ordered queries declared by a document.
type QuerySource interface {
	// Read returns every declared query, duplicates included, in declaration order.
	// Returns an error wrapping domain.ErrParse if the data is structurally invalid.
	Read(ctx context.Context) ([]domain.Query, error)

	// Describe names the source for log output.
	Describe() string
}

// SourceRequest selects the query source of one job.
type SourceRequest struct {
	// Query is run against the document unless File is set.
	Query domain.TypstQuery

	// File names pre-exported query output to read instead ("-" for stdin).
	File string

	// RecordKind is the query kind of records that do not declare one.
	RecordKind string
}

// SourceFactory creates the query source for one job.
type SourceFactory func(req SourceRequest) QuerySource
