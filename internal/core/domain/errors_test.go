package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrParse", ErrParse},
		{"ErrUnsupportedQueryKind", ErrUnsupportedQueryKind},
		{"ErrInvalidQuery", ErrInvalidQuery},
		{"ErrTransport", ErrTransport},
		{"ErrIO", ErrIO},
		{"ErrCancelled", ErrCancelled},
		{"ErrManifestMissing", ErrManifestMissing},
		{"ErrUnknownJobKind", ErrUnknownJobKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestParseError_Is(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := fmt.Errorf("reading queries: %w", &ParseError{Index: -1, Msg: "not a JSON array", Err: cause})

	assert.True(t, IsParseError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "not a JSON array")
	assert.NotContains(t, err.Error(), "record")
}

func TestParseError_RecordIndex(t *testing.T) {
	err := &ParseError{Index: 3, Msg: "expected an object"}

	assert.Equal(t, "invalid query data: record 3: expected an object", err.Error())
}

func TestTransportError(t *testing.T) {
	err := &TransportError{StatusCode: 503, Retryable: true, Err: errors.New("Service Unavailable")}

	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "status 503")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"retryable transport", &TransportError{Retryable: true, Err: errors.New("reset")}, true},
		{"permanent transport", &TransportError{StatusCode: 404, Err: errors.New("Not Found")}, false},
		{"wrapped retryable", fmt.Errorf("attempt: %w", &TransportError{Retryable: true, Err: errors.New("eof")}), true},
		{"cancelled", &TransportError{Retryable: true, Err: context.Canceled}, false},
		{"invalid query", InvalidQueryError("missing url"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestFailureFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"transport", &TransportError{Err: errors.New("refused")}, FailureTransport},
		{"unsupported", fmt.Errorf("%w: ftp", ErrUnsupportedQueryKind), FailureUnsupported},
		{"invalid", InvalidQueryError("missing url"), FailureInvalid},
		{"io", &IOError{Op: "write", Path: "a.txt", Err: errors.New("disk full")}, FailureIO},
		{"cancelled", context.Canceled, FailureCancelled},
		{"cancelled sentinel", ErrCancelled, FailureCancelled},
		{"unknown", errors.New("boom"), FailureTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FailureFor(tt.err)
			if assert.NotNil(t, f) {
				assert.Equal(t, tt.want, f.Kind)
				assert.Equal(t, tt.err.Error(), f.Message)
			}
		})
	}

	assert.Nil(t, FailureFor(nil))
}
