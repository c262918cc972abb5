package webresource

import (
	"context"
	"errors"
	"net/url"
	"os"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/fsutil"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// Ensure Handler implements the interface.
var _ driven.Handler = (*Handler)(nil)

// Handler resolves fetch queries by downloading the url to the path.
type Handler struct {
	root   string
	client *Client
}

// NewHandler creates a fetch handler writing below root.
func NewHandler(root string, client *Client) *Handler {
	return &Handler{root: root, client: client}
}

// Kind returns domain.KindFetch.
func (h *Handler) Kind() string {
	return domain.KindFetch
}

// Resolve downloads the resource. The target is only replaced once the whole
// body has been received.
func (h *Handler) Resolve(ctx context.Context, q domain.Query) (domain.Payload, error) {
	rawURL, target, err := h.target(q)
	if err != nil {
		return domain.Payload{}, err
	}
	logger.Debug("downloading %s to %s", rawURL, target)

	f, err := fsutil.Create(target)
	if err != nil {
		return domain.Payload{}, &domain.IOError{Op: "create", Path: target, Err: err}
	}
	defer f.Abort()

	contentType, err := h.client.Download(ctx, rawURL, f)
	if err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) || domain.IsCancelled(err) {
			return domain.Payload{}, err
		}
		return domain.Payload{}, &domain.IOError{Op: "write", Path: target, Err: err}
	}
	if err := f.Commit(); err != nil {
		return domain.Payload{}, &domain.IOError{Op: "write", Path: target, Err: err}
	}

	return domain.Payload{
		Path:        q.Path(),
		Hash:        f.Digest(),
		Size:        f.Size(),
		ContentType: contentType,
	}, nil
}

// Fresh reports whether the downloaded file still exists and, with verify,
// still has the recorded content hash.
func (h *Handler) Fresh(_ context.Context, prev domain.Resolution, verify bool) bool {
	target, err := fsutil.Resolve(h.root, prev.Path)
	if err != nil || !fsutil.Exists(target) {
		return false
	}
	if !verify {
		return true
	}
	digest, _, err := fsutil.HashFile(target)
	return err == nil && digest == prev.Hash
}

// Evict deletes the downloaded file. A file that is already gone is not an error.
func (h *Handler) Evict(_ context.Context, prev domain.Resolution) error {
	target, err := fsutil.Resolve(h.root, prev.Path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return &domain.IOError{Op: "remove", Path: target, Err: err}
	}
	return nil
}

// target validates the query parameters and resolves the output path.
func (h *Handler) target(q domain.Query) (string, string, error) {
	rawURL, path := q.URL(), q.Path()
	if rawURL == "" {
		return "", "", domain.InvalidQueryError("record has no `url`")
	}
	if path == "" {
		return "", "", domain.InvalidQueryError("record has no `path`")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", domain.InvalidQueryError("malformed url %q: %v", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", domain.InvalidQueryError("unsupported url scheme %q", u.Scheme)
	}
	target, err := fsutil.Resolve(h.root, path)
	if err != nil {
		return "", "", domain.InvalidQueryError("%v", err)
	}
	return rawURL, target, nil
}
