package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome class of a resolution.
type Status string

const (
	// StatusOK means the query was resolved and its payload is available.
	StatusOK Status = "ok"

	// StatusFailed means every allowed attempt failed.
	StatusFailed Status = "failed"

	// StatusCancelled means the run ended before the query was resolved.
	StatusCancelled Status = "cancelled"
)

// FailureKind classifies why a query could not be resolved.
type FailureKind string

const (
	FailureTransport   FailureKind = "transport"
	FailureUnsupported FailureKind = "unsupported"
	FailureInvalid     FailureKind = "invalid"
	FailureIO          FailureKind = "io"
	FailureCancelled   FailureKind = "cancelled"
)

// Failure is the typed failure payload of a resolution.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Resolution is the recorded outcome of resolving one query.
// It is immutable once created.
type Resolution struct {
	QueryID string
	Kind    string
	Status  Status

	// Declared parameters, kept so consumers can find entries without hashing.
	URL    string
	Path   string
	Params string

	// Success payload.
	Hash        string
	Size        int64
	ContentType string
	ResolvedAt  time.Time

	// Failure payload.
	Failure *Failure

	// Attempts is the number of resolution attempts made in the run that produced this.
	Attempts int
}

// Payload is what a handler produces for a successful resolution.
type Payload struct {
	Path        string
	Hash        string
	Size        int64
	ContentType string
}

// Succeeded creates a successful resolution for the query.
func Succeeded(q Query, p Payload, attempts int, at time.Time) Resolution {
	r := declared(q)
	r.Status = StatusOK
	if p.Path != "" {
		r.Path = p.Path
	}
	r.Hash = p.Hash
	r.Size = p.Size
	r.ContentType = p.ContentType
	r.ResolvedAt = at.UTC().Truncate(time.Second)
	r.Attempts = attempts
	return r
}

// Failed creates a failed resolution for the query.
func Failed(q Query, err error, attempts int) Resolution {
	r := declared(q)
	r.Failure = FailureFor(err)
	r.Status = StatusFailed
	if r.Failure.Kind == FailureCancelled {
		r.Status = StatusCancelled
	}
	r.Attempts = attempts
	return r
}

// Cancelled creates a cancelled resolution for a query that never completed.
func Cancelled(q Query, attempts int) Resolution {
	return Failed(q, ErrCancelled, attempts)
}

func declared(q Query) Resolution {
	return Resolution{
		QueryID: q.ID,
		Kind:    q.Kind,
		URL:     q.URL(),
		Path:    q.Path(),
		Params:  q.CanonicalParams(),
	}
}

// OK reports whether the resolution carries a success payload.
func (r Resolution) OK() bool {
	return r.Status == StatusOK
}

// Query reconstructs the query this resolution was made for.
func (r Resolution) Query() (Query, error) {
	params := map[string]any{}
	if r.Params != "" {
		if err := json.Unmarshal([]byte(r.Params), &params); err != nil {
			return Query{}, fmt.Errorf("decoding params of %s: %w", r.QueryID, err)
		}
	}
	return Query{ID: r.QueryID, Kind: r.Kind, Params: params}, nil
}
