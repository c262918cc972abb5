package typst

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
	"github.com/prequery/prequery-preprocess/internal/logger"
)

// FallbackInput is always passed to queried documents so they can avoid
// depending on files that have not been preprocessed yet.
const FallbackInput = "prequery-fallback=true"

// Stdin names standard input as a query file.
const Stdin = "-"

// Ensure the sources implement the interface.
var (
	_ driven.QuerySource = (*CommandSource)(nil)
	_ driven.QuerySource = (*FileSource)(nil)
)

// QueryArgs builds the arguments of a `typst query` invocation.
// Inputs are passed in sorted order.
func QueryArgs(q domain.TypstQuery, root, input string) []string {
	args := []string{"query"}
	if root != "" {
		args = append(args, "--root", root)
	}
	if q.Field != "" {
		args = append(args, "--field", q.Field)
	}
	if q.One {
		args = append(args, "--one")
	}
	keys := make([]string, 0, len(q.Inputs))
	for k := range q.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--input", k+"="+q.Inputs[k])
	}
	args = append(args, "--input", FallbackInput, input, q.Selector)
	return args
}

// CommandSource runs `typst query` and parses its output.
type CommandSource struct {
	typst      string
	project    domain.Project
	query      domain.TypstQuery
	recordKind string
}

// NewCommandSource creates a source querying the project's input document.
func NewCommandSource(project domain.Project, query domain.TypstQuery, recordKind string) *CommandSource {
	typst := project.Typst
	if typst == "" {
		typst = "typst"
	}
	return &CommandSource{typst: typst, project: project, query: query, recordKind: recordKind}
}

// Read runs the query. A failing command is reported as a parse error.
func (s *CommandSource) Read(ctx context.Context) ([]domain.Query, error) {
	args := QueryArgs(s.query, s.project.Root, s.project.Input)
	logger.Debug("running %s %s", s.typst, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.typst, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if logger.IsVerbose() {
		// typst warnings are shown as they happen
		cmd.Stderr = io.MultiWriter(&stderr, logger.Output())
	}
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCancelled, ctxErr)
		}
		msg := fmt.Sprintf("`%s query` failed", s.typst)
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg += ": " + detail
		}
		return nil, &domain.ParseError{Index: -1, Msg: msg, Err: err}
	}
	return ParseRecords(stdout.Bytes(), s.recordKind)
}

// Describe names the source for log output.
func (s *CommandSource) Describe() string {
	return fmt.Sprintf("query %s in %s", s.query.Selector, s.project.Input)
}

// FileSource reads query output from a file or stdin.
type FileSource struct {
	path       string
	stdin      io.Reader
	recordKind string
}

// NewFileSource creates a source reading path; Stdin reads from stdin.
func NewFileSource(path string, stdin io.Reader, recordKind string) *FileSource {
	return &FileSource{path: path, stdin: stdin, recordKind: recordKind}
}

// Read parses the file contents.
func (s *FileSource) Read(_ context.Context) ([]domain.Query, error) {
	var (
		data []byte
		err  error
	)
	if s.path == Stdin {
		data, err = io.ReadAll(s.stdin)
	} else {
		data, err = os.ReadFile(s.path)
	}
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: s.path, Err: err}
	}
	return ParseRecords(data, s.recordKind)
}

// Describe names the source for log output.
func (s *FileSource) Describe() string {
	if s.path == Stdin {
		return "stdin"
	}
	return s.path
}

// NewSourceFactory returns a factory that queries the project's document, or
// reads the requested query file instead.
func NewSourceFactory(project domain.Project, stdin io.Reader) driven.SourceFactory {
	return func(req driven.SourceRequest) driven.QuerySource {
		if req.File != "" {
			return NewFileSource(req.File, stdin, req.RecordKind)
		}
		return NewCommandSource(project, req.Query, req.RecordKind)
	}
}
