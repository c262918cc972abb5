package typst

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

func TestQueryArgs(t *testing.T) {
	q := domain.TypstQuery{
		Selector: "<web-resource>",
		Field:    "value",
		Inputs:   map[string]string{"theme": "dark", "lang": "de"},
	}

	args := QueryArgs(q, "/project", "main.typ")

	assert.Equal(t, []string{
		"query", "--root", "/project", "--field", "value",
		"--input", "lang=de", "--input", "theme=dark",
		"--input", "prequery-fallback=true",
		"main.typ", "<web-resource>",
	}, args)
}

func TestQueryArgs_Minimal(t *testing.T) {
	args := QueryArgs(domain.TypstQuery{Selector: "<x>", One: true}, "", "doc.typ")

	assert.Equal(t, []string{"query", "--one", "--input", "prequery-fallback=true", "doc.typ", "<x>"}, args)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"url": "https://example.com/a", "path": "a"}]`), 0644))

	s := NewFileSource(path, nil, domain.KindFetch)
	queries, err := s.Read(context.Background())

	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "https://example.com/a", queries[0].URL())
	assert.Equal(t, path, s.Describe())
}

func TestFileSource_Stdin(t *testing.T) {
	stdin := strings.NewReader(`[{"path": "out.json", "data": [1, 2]}]`)

	s := NewFileSource(Stdin, stdin, domain.KindShell)
	queries, err := s.Read(context.Background())

	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, domain.KindShell, queries[0].Kind)
	assert.Equal(t, "stdin", s.Describe())
}

func TestFileSource_Missing(t *testing.T) {
	s := NewFileSource(filepath.Join(t.TempDir(), "nope.json"), nil, domain.KindFetch)

	_, err := s.Read(context.Background())

	assert.ErrorIs(t, err, domain.ErrIO)
}

// fakeTypst writes an executable script standing in for the typst binary.
func fakeTypst(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "typst")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestCommandSource(t *testing.T) {
	// echo the received arguments back as a record so they can be checked
	typst := fakeTypst(t, `printf '[{"url": "https://example.com/x", "path": "%s"}]' "$*"`)
	project := domain.Project{Typst: typst, Input: "main.typ"}
	query := domain.TypstQuery{Selector: "<web-resource>", Field: "value"}

	s := NewCommandSource(project, query, domain.KindFetch)
	queries, err := s.Read(context.Background())

	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t,
		"query --field value --input prequery-fallback=true main.typ <web-resource>",
		queries[0].Path())
	assert.Contains(t, s.Describe(), "<web-resource>")
}

func TestCommandSource_Failure(t *testing.T) {
	typst := fakeTypst(t, `echo "error: file not found" >&2; exit 1`)
	project := domain.Project{Typst: typst, Input: "missing.typ"}

	_, err := NewCommandSource(project, domain.TypstQuery{Selector: "<x>"}, domain.KindFetch).
		Read(context.Background())

	require.Error(t, err)
	assert.True(t, domain.IsParseError(err))
	assert.Contains(t, err.Error(), "file not found")
}

func TestNewSourceFactory(t *testing.T) {
	factory := NewSourceFactory(domain.Project{Input: "main.typ"}, strings.NewReader("[]"))

	src := factory(driven.SourceRequest{Query: domain.TypstQuery{Selector: "<x>"}, RecordKind: domain.KindFetch})
	assert.IsType(t, &CommandSource{}, src)

	src = factory(driven.SourceRequest{File: Stdin, RecordKind: domain.KindFetch})
	assert.IsType(t, &FileSource{}, src)
}
