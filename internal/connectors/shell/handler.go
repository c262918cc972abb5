package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/fsutil"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// ContentType is recorded for command outputs.
const ContentType = "application/json"

// Ensure Handler implements the interface.
var _ driven.Handler = (*Handler)(nil)

// Handler resolves shell queries by running a command.
type Handler struct {
	root    string
	command []string
}

// NewHandler creates a handler running command in root.
func NewHandler(root string, command []string) *Handler {
	return &Handler{root: root, command: command}
}

// Kind returns domain.KindShell.
func (h *Handler) Kind() string {
	return domain.KindShell
}

// Resolve runs the command with the record's data and writes its output.
// A failing command is not retried.
func (h *Handler) Resolve(ctx context.Context, q domain.Query) (domain.Payload, error) {
	path, target, err := h.target(q)
	if err != nil {
		return domain.Payload{}, err
	}

	input, err := json.Marshal(q.Params[domain.ParamData])
	if err != nil {
		return domain.Payload{}, domain.InvalidQueryError("encoding data: %v", err)
	}

	output, err := h.run(ctx, input)
	if err != nil {
		return domain.Payload{}, err
	}
	return h.write(path, target, output)
}

// target validates the record's output path and resolves it inside the root.
func (h *Handler) target(q domain.Query) (path, target string, err error) {
	path = q.Path()
	if path == "" {
		return "", "", domain.InvalidQueryError("record has no `path`")
	}
	target, err = fsutil.Resolve(h.root, path)
	if err != nil {
		return "", "", domain.InvalidQueryError("%v", err)
	}
	return path, target, nil
}

// write stores one command output as compact JSON.
func (h *Handler) write(path, target string, output []byte) (domain.Payload, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, output); err != nil {
		return domain.Payload{}, domain.InvalidQueryError("command output is not valid JSON: %v", err)
	}
	data := compact.Bytes()

	if err := fsutil.WriteFile(target, data); err != nil {
		return domain.Payload{}, &domain.IOError{Op: "write", Path: target, Err: err}
	}
	return domain.Payload{
		Path:        path,
		Hash:        fsutil.HashBytes(data),
		Size:        int64(len(data)),
		ContentType: ContentType,
	}, nil
}

func (h *Handler) run(ctx context.Context, input []byte) ([]byte, error) {
	logger.Debug("executing %s", strings.Join(h.command, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.command[0], h.command[1:]...)
	cmd.Dir = h.root
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &domain.TransportError{
			Err: fmt.Errorf("command `%s` failed: %w", strings.Join(h.command, " "), err),
		}
	}
	return stdout.Bytes(), nil
}

// Fresh reports whether the output file still exists and, with verify, still
// has the recorded content hash.
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

// Evict deletes the output file.
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
