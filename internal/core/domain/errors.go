package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors represent preprocessing failures.
// Per-query errors end up in the ResultSet; run-level errors abort the pipeline.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrParse indicates the query source produced structurally invalid data.
	ErrParse = errors.New("invalid query data")

	// ErrUnsupportedQueryKind indicates no handler is registered for a query kind.
	ErrUnsupportedQueryKind = errors.New("unsupported query kind")

	// ErrInvalidQuery indicates a query of a known kind with unusable parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrTransport indicates a network or process failure while resolving a query.
	ErrTransport = errors.New("transport error")

	// ErrIO indicates a filesystem failure.
	ErrIO = errors.New("i/o error")

	// ErrCancelled indicates the run was cancelled before a query was resolved.
	ErrCancelled = errors.New("cancelled")

	// Configuration Errors.

	// ErrManifestMissing indicates typst.toml has no [tool.prequery] section.
	ErrManifestMissing = errors.New("typst.toml does not contain `tool.prequery` section")

	// ErrUnknownJobKind indicates a job kind without a registered factory.
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// ParseError describes structurally invalid query source data.
type ParseError struct {
	// Index is the offending record's position, or -1 if the whole input is invalid.
	Index int
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Index >= 0 {
		msg = fmt.Sprintf("record %d: %s", e.Index, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrParse, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrParse, msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// TransportError is a failed network request or external process invocation.
type TransportError struct {
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	// Retryable reports whether another attempt may succeed.
	Retryable bool
	// RetryAfter is a server-requested delay before the next attempt.
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// IOError is a filesystem failure on a specific path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// InvalidQueryError reports why a query cannot be resolved by its handler.
func InvalidQueryError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// IsRetryable checks if another attempt at the failed operation may succeed.
func IsRetryable(err error) bool {
	if err == nil || IsCancelled(err) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// IsCancelled checks if the error stems from run-level cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsParseError checks if the error indicates invalid query source data.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}

// FailureFor classifies an error into the failure recorded in a Resolution.
func FailureFor(err error) *Failure {
	if err == nil {
		return nil
	}
	kind := FailureTransport
	switch {
	case IsCancelled(err):
		kind = FailureCancelled
	case errors.Is(err, ErrUnsupportedQueryKind):
		kind = FailureUnsupported
	case errors.Is(err, ErrInvalidQuery):
		kind = FailureInvalid
	case errors.Is(err, ErrIO):
		kind = FailureIO
	}
	return &Failure{Kind: kind, Message: err.Error()}
}
