package driven

import (
	"context"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// ManifestReader locates and parses the prequery manifest of a document.
type ManifestReader interface {
	// Read finds the typst.toml closest to input and parses its [tool.prequery] section.
	Read(ctx context.Context, input string) (*domain.Manifest, error)
}
