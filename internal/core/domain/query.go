package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Built-in query kinds.
const (
	// KindFetch downloads a web resource to a path in the project root.
	KindFetch = "fetch"

	// KindShell pipes JSON data through a command and saves its output.
	KindShell = "shell"
)

// Well-known query parameters.
const (
	ParamKind = "kind"
	ParamURL  = "url"
	ParamPath = "path"
	ParamData = "data"
)

// Query is one declarative request extracted from a document.
// Queries are values; two queries with the same ID are the same unit of work.
type Query struct {
	// ID is derived from Kind and Params, see Identity.
	ID string

	// Kind selects the handler. Unknown kinds are kept as declared.
	Kind string

	// Params are the record's remaining fields, as decoded from JSON.
	Params map[string]any
}

// NewQuery creates a query and computes its identity.
func NewQuery(kind string, params map[string]any) (Query, error) {
	if params == nil {
		params = map[string]any{}
	}
	id, err := Identity(kind, params)
	if err != nil {
		return Query{}, err
	}
	return Query{ID: id, Kind: kind, Params: params}, nil
}

// Identity is the hex SHA-256 of the canonical JSON encoding of kind and params.
// encoding/json sorts map keys, which makes the encoding canonical for decoded JSON.
func Identity(kind string, params map[string]any) (string, error) {
	canonical, err := json.Marshal(struct {
		Kind   string         `json:"kind"`
		Params map[string]any `json:"params"`
	}{kind, params})
	if err != nil {
		return "", fmt.Errorf("encoding query parameters: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// String returns a string parameter, or "" if missing or not a string.
func (q Query) String(key string) string {
	s, _ := q.Params[key].(string)
	return s
}

// Has reports whether a parameter was declared.
func (q Query) Has(key string) bool {
	_, ok := q.Params[key]
	return ok
}

// URL returns the declared url parameter.
func (q Query) URL() string { return q.String(ParamURL) }

// Path returns the declared output path parameter.
func (q Query) Path() string { return q.String(ParamPath) }

// CanonicalParams returns the params encoded as canonical JSON.
func (q Query) CanonicalParams() string {
	if len(q.Params) == 0 {
		return ""
	}
	b, err := json.Marshal(q.Params)
	if err != nil {
		return ""
	}
	return string(b)
}

// ShortID returns an abbreviated identity for log output.
func (q Query) ShortID() string {
	if len(q.ID) > 12 {
		return q.ID[:12]
	}
	return q.ID
}

// Describe returns a human-readable label for the query.
func (q Query) Describe() string {
	switch {
	case q.URL() != "" && q.Path() != "":
		return fmt.Sprintf("%s -> %s", q.URL(), q.Path())
	case q.URL() != "":
		return q.URL()
	case q.Path() != "":
		return q.Path()
	default:
		return q.Kind + ":" + q.ShortID()
	}
}
