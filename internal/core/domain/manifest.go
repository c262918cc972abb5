package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Manifest is the [tool.prequery] section of a typst.toml file.
type Manifest struct {
	// Path is the typst.toml file the manifest was read from.
	Path string
	Jobs []Job
}

// Dir returns the directory containing typst.toml; index paths are relative to it.
func (m Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// Job is a single [[tool.prequery.jobs]] entry.
type Job struct {
	// Name is for human consumption, e.g. in logs.
	Name string
	// Kind selects the job factory, e.g. "web-resource" or "shell".
	Kind string
	// Query holds the optional query overrides.
	Query QuerySpec
	// Options are all remaining keys of the job table.
	Options Options
}

// QuerySpec configures the `typst query` invocation; unset fields use job defaults.
type QuerySpec struct {
	Selector *string
	// Field is nil when unset; a non-nil empty string means `field = false`.
	Field  *string
	One    *bool
	Inputs map[string]string
}

// TypstQuery is a fully specified `typst query` invocation.
type TypstQuery struct {
	Selector string
	// Field is empty when the whole element is queried.
	Field  string
	One    bool
	Inputs map[string]string
}

// QueryDefaults supplies fallback values for a QuerySpec.
type QueryDefaults struct {
	Selector string
	Field    string
	One      bool
}

// Build merges a spec with defaults into a complete query.
func (s QuerySpec) Build(d QueryDefaults) (TypstQuery, error) {
	q := TypstQuery{Selector: d.Selector, Field: d.Field, One: d.One, Inputs: s.Inputs}
	if s.Selector != nil {
		q.Selector = *s.Selector
	}
	if s.Field != nil {
		q.Field = *s.Field
	}
	if s.One != nil {
		q.One = *s.One
	}
	if q.Selector == "" {
		return TypstQuery{}, fmt.Errorf("%w: `selector` was not specified but is required", ErrInvalidInput)
	}
	return q, nil
}

// CachePolicy decides whether a previous resolution may be reused.
type CachePolicy string

const (
	// CacheReuse reuses a previous success whose output still exists.
	CacheReuse CachePolicy = "reuse"
	// CacheVerify reuses a previous success only if the output hash still matches.
	CacheVerify CachePolicy = "verify"
	// CacheRefresh always resolves again.
	CacheRefresh CachePolicy = "refresh"
)

// ParseCachePolicy validates a cache policy name.
func ParseCachePolicy(s string) (CachePolicy, error) {
	switch p := CachePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CacheReuse, CacheVerify, CacheRefresh:
		return p, nil
	case "":
		return CacheReuse, nil
	default:
		return "", fmt.Errorf("%w: unknown cache policy %q (want reuse, verify or refresh)", ErrInvalidInput, s)
	}
}

// Default run settings.
const (
	DefaultConcurrency = 8
	DefaultRetries     = 3
	DefaultTimeout     = 30 * time.Second
)

// RunOptions tune how a job resolves its queries.
type RunOptions struct {
	// Concurrency bounds the number of queries resolved at once.
	Concurrency int
	// Retries is the maximum number of attempts per query, at least 1.
	Retries int
	// Timeout bounds a single attempt; zero disables it.
	Timeout time.Duration
	// Cache selects the reuse policy for previous resolutions.
	Cache CachePolicy
	// MaxAge expires previous resolutions; zero keeps them forever.
	MaxAge time.Duration
	// Evict removes stale store entries and their output files.
	Evict bool
}

// DefaultRunOptions returns the options used when nothing is configured.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Concurrency: DefaultConcurrency,
		Retries:     DefaultRetries,
		Timeout:     DefaultTimeout,
		Cache:       CacheReuse,
	}
}

// Normalise clamps options to usable values.
func (o RunOptions) Normalise() RunOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.Cache == "" {
		o.Cache = CacheReuse
	}
	return o
}

// Project describes the document being preprocessed.
type Project struct {
	// Typst is the typst executable.
	Typst string
	// Input is the main .typ file.
	Input string
	// Root is the project root explicitly given, or empty.
	Root string
}

// ResolveRoot returns the explicit root, or the directory of the input file.
func (p Project) ResolveRoot() string {
	if p.Root != "" {
		return p.Root
	}
	if dir := filepath.Dir(p.Input); dir != "" {
		return dir
	}
	return "."
}
