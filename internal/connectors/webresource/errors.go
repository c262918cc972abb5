package webresource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prequery/prequery-preprocess/internal/core/domain"
)

// statusError builds the transport error for an unsuccessful HTTP response.
// Server errors, 408 and 429 may succeed on a later attempt.
func statusError(url string, status int, retryAfter time.Duration) error {
	retryable := status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
	return &domain.TransportError{
		StatusCode: status,
		Retryable:  retryable,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("GET %s: %s", url, http.StatusText(status)),
	}
}

// requestError wraps a failed request. Every network failure is retryable.
func requestError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return &domain.TransportError{
		Retryable: true,
		Err:       fmt.Errorf("GET %s: %w", url, err),
	}
}

// IsNotFound checks if the error indicates a missing resource.
func IsNotFound(err error) bool {
	var te *domain.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var te *domain.TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests
}
