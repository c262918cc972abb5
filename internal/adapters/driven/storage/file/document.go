package file

import (
	"fmt"
	"time"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// Version is the store document version this package reads and writes.
const Version = 1

type document struct {
	Version     int      `toml:"version" json:"version" yaml:"version"`
	Resolutions []record `toml:"resolution" json:"resolution" yaml:"resolution"`
}

type record struct {
	ID          string   `toml:"id" json:"id" yaml:"id"`
	Kind        string   `toml:"kind" json:"kind" yaml:"kind"`
	Status      string   `toml:"status" json:"status" yaml:"status"`
	URL         string   `toml:"url,omitempty" json:"url,omitempty" yaml:"url,omitempty"`
	Path        string   `toml:"path,omitempty" json:"path,omitempty" yaml:"path,omitempty"`
	Params      string   `toml:"params,omitempty" json:"params,omitempty" yaml:"params,omitempty"`
	Hash        string   `toml:"hash,omitempty" json:"hash,omitempty" yaml:"hash,omitempty"`
	Size        int64    `toml:"size,omitempty" json:"size,omitempty" yaml:"size,omitempty"`
	ContentType string   `toml:"content-type,omitempty" json:"content-type,omitempty" yaml:"content-type,omitempty"`
	ResolvedAt  string   `toml:"resolved-at,omitempty" json:"resolved-at,omitempty" yaml:"resolved-at,omitempty"`
	Attempts    int      `toml:"attempts" json:"attempts" yaml:"attempts"`
	Failure     *failure `toml:"failure,omitempty" json:"failure,omitempty" yaml:"failure,omitempty"`
}

type failure struct {
	Kind    string `toml:"kind" json:"kind" yaml:"kind"`
	Message string `toml:"message" json:"message" yaml:"message"`
}

// encode converts a result set into its document, in canonical order.
func encode(results *domain.ResultSet) *document {
	doc := &document{Version: Version, Resolutions: []record{}}
	for _, r := range results.Sorted() {
		rec := record{
			ID:          r.QueryID,
			Kind:        r.Kind,
			Status:      string(r.Status),
			URL:         r.URL,
			Path:        r.Path,
			Params:      r.Params,
			Hash:        r.Hash,
			Size:        r.Size,
			ContentType: r.ContentType,
			Attempts:    r.Attempts,
		}
		if !r.ResolvedAt.IsZero() {
			rec.ResolvedAt = r.ResolvedAt.UTC().Format(time.RFC3339)
		}
		if r.Failure != nil {
			rec.Failure = &failure{Kind: string(r.Failure.Kind), Message: r.Failure.Message}
		}
		doc.Resolutions = append(doc.Resolutions, rec)
	}
	return doc
}

// decode converts a document back into a result set.
func decode(doc *document) (*domain.ResultSet, error) {
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: unsupported result store version %d (want %d)",
			domain.ErrInvalidInput, doc.Version, Version)
	}
	results := domain.NewResultSet()
	for i, rec := range doc.Resolutions {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: resolution %d has no id", domain.ErrInvalidInput, i)
		}
		r := domain.Resolution{
			QueryID:     rec.ID,
			Kind:        rec.Kind,
			Status:      domain.Status(rec.Status),
			URL:         rec.URL,
			Path:        rec.Path,
			Params:      rec.Params,
			Hash:        rec.Hash,
			Size:        rec.Size,
			ContentType: rec.ContentType,
			Attempts:    rec.Attempts,
		}
		if rec.ResolvedAt != "" {
			at, err := time.Parse(time.RFC3339, rec.ResolvedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: resolution %s: %v", domain.ErrInvalidInput, rec.ID, err)
			}
			r.ResolvedAt = at.UTC()
		}
		if rec.Failure != nil {
			r.Failure = &domain.Failure{Kind: domain.FailureKind(rec.Failure.Kind), Message: rec.Failure.Message}
		}
		results.Put(r)
	}
	return results, nil
}
