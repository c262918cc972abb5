package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
	"github.com/prequery/prequery-preprocess/internal/core/ports/driven"
)

// ManifestFile is the name of the Typst package manifest.
const ManifestFile = "typst.toml"

// Ensure ManifestReader implements the interface.
var _ driven.ManifestReader = (*ManifestReader)(nil)

// ManifestReader reads the [tool.prequery] section of typst.toml files.
type ManifestReader struct{}

// NewManifestReader creates a manifest reader.
func NewManifestReader() *ManifestReader {
	return &ManifestReader{}
}

// Read finds the typst.toml closest to input and parses it.
func (r *ManifestReader) Read(_ context.Context, input string) (*domain.Manifest, error) {
	path, err := FindManifest(input)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.IOError{Op: "read", Path: path, Err: err}
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// FindManifest returns the typst.toml in the input file's directory or the
// closest parent directory containing one.
func FindManifest(input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	for {
		candidate := filepath.Join(dir, ManifestFile)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s file found for input file %s: %w", ManifestFile, abs, domain.ErrNotFound)
		}
		dir = parent
	}
}

// ParseManifest parses the [tool.prequery] section of typst.toml content.
func ParseManifest(data []byte) (*domain.Manifest, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	tool, _ := doc["tool"].(map[string]any)
	section, ok := tool["prequery"].(map[string]any)
	if !ok {
		return nil, domain.ErrManifestMissing
	}

	rawJobs, ok := section["jobs"]
	if !ok {
		return nil, fmt.Errorf("%w: missing field `jobs`", domain.ErrInvalidInput)
	}
	list, ok := rawJobs.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: `jobs` must be an array of tables", domain.ErrInvalidInput)
	}

	m := &domain.Manifest{Jobs: make([]domain.Job, 0, len(list))}
	var errs []error
	for i, item := range list {
		table, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: jobs[%d] must be a table", domain.ErrInvalidInput, i))
			continue
		}
		job, err := parseJob(table)
		if err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		m.Jobs = append(m.Jobs, job)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

func parseJob(table map[string]any) (domain.Job, error) {
	opts := domain.Options{}
	for k, v := range table {
		opts[k] = v
	}

	var job domain.Job
	name, ok, err := opts.String("name")
	if err != nil {
		return job, err
	}
	if !ok {
		return job, fmt.Errorf("%w: missing field `name`", domain.ErrInvalidInput)
	}
	kind, ok, err := opts.String("kind")
	if err != nil {
		return job, err
	}
	if !ok {
		return job, fmt.Errorf("%w: job %q: missing field `kind`", domain.ErrInvalidInput, name)
	}
	delete(opts, "name")
	delete(opts, "kind")

	job.Name = name
	job.Kind = kind
	if raw, ok := opts["query"]; ok {
		delete(opts, "query")
		q, ok := raw.(map[string]any)
		if !ok {
			return job, fmt.Errorf("%w: job %q: `query` must be a table", domain.ErrInvalidInput, name)
		}
		spec, err := parseQuery(q)
		if err != nil {
			return job, fmt.Errorf("job %q: %w", name, err)
		}
		job.Query = spec
	}
	job.Options = opts
	return job, nil
}

func parseQuery(table map[string]any) (domain.QuerySpec, error) {
	var spec domain.QuerySpec
	q := domain.Options(table)

	if s, ok, err := q.String("selector"); err != nil {
		return spec, err
	} else if ok {
		spec.Selector = &s
	}

	// field is either a string or false
	if raw, ok := table["field"]; ok {
		switch f := raw.(type) {
		case string:
			spec.Field = &f
		case bool:
			if f {
				return spec, fmt.Errorf("%w: `field` must be `false` or a string", domain.ErrInvalidInput)
			}
			none := ""
			spec.Field = &none
		default:
			return spec, fmt.Errorf("%w: `field` must be `false` or a string, got %T", domain.ErrInvalidInput, raw)
		}
	}

	if b, ok, err := q.Bool("one"); err != nil {
		return spec, err
	} else if ok {
		spec.One = &b
	}

	if raw, ok := table["inputs"]; ok {
		inputs, ok := raw.(map[string]any)
		if !ok {
			return spec, fmt.Errorf("%w: `inputs` must be a table of strings", domain.ErrInvalidInput)
		}
		spec.Inputs = make(map[string]string, len(inputs))
		for k, v := range inputs {
			s, ok := v.(string)
			if !ok {
				return spec, fmt.Errorf("%w: input `%s` must be a string, got %T", domain.ErrInvalidInput, k, v)
			}
			spec.Inputs[k] = s
		}
	}
	return spec, nil
}
