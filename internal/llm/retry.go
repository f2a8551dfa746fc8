package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for transient transport errors.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns sensible defaults for rate-limit retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryProvider wraps a provider with automatic retry on transient
// failures. Once any content from an attempt has reached the consumer
// the attempt is no longer retryable: replaying it would duplicate
// already-delivered chunks.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WrapWithRetry wraps a provider with retry logic.
func WrapWithRetry(p Provider, config RetryConfig) Provider {
	return &RetryProvider{inner: p, config: config}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error

		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			delivered := false
			stream, err := r.inner.Stream(ctx, req)
			if err == nil {
				err, delivered = r.forwardEvents(ctx, stream, events)
				if err == nil {
					return nil
				}
			}
			if delivered || !isRetryable(err) {
				return err
			}
			lastErr = err

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.config.MaxAttempts {
				break
			}

			wait := r.calculateBackoff(attempt, lastErr)
			events <- Event{Type: EventRetry, Attempt: attempt, Wait: wait}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		return lastErr
	}), nil
}

// forwardEvents drains the inner stream into events. The delivered flag
// reports whether any event reached the consumer before a failure.
func (r *RetryProvider) forwardEvents(ctx context.Context, stream Stream, events chan<- Event) (err error, delivered bool) {
	defer stream.Close()

	for {
		event, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			return nil, delivered
		}
		if recvErr != nil {
			return recvErr, delivered
		}

		// A 429 mid-stream arrives as an error event on some
		// transports; convert it back into a retryable failure.
		if event.Type == EventError && event.Err != "" {
			return errors.New(event.Err), delivered
		}

		select {
		case events <- event:
			delivered = true
		case <-ctx.Done():
			return ctx.Err(), delivered
		}
	}
}

// isRetryable reports whether the error is a transient failure worth
// re-issuing the request for.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	// HTTP status codes and rate-limit messages
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "overloaded") {
		return true
	}

	// Connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "no such host") {
		return true
	}

	return false
}

// retryAfterRegex matches Retry-After values embedded in error messages.
var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// calculateBackoff computes the wait before the next attempt: an
// explicit Retry-After when the server sent one, otherwise exponential
// backoff with jitter.
func (r *RetryProvider) calculateBackoff(attempt int, err error) time.Duration {
	if err != nil {
		if matches := retryAfterRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
			if secs, parseErr := strconv.Atoi(matches[1]); parseErr == nil && secs > 0 {
				wait := time.Duration(secs) * time.Second
				if wait > r.config.MaxBackoff {
					wait = r.config.MaxBackoff
				}
				return wait
			}
		}
	}

	// base * 2^(attempt-1), +/- 25% jitter
	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))
	backoff += (rand.Float64() - 0.5) * 0.5 * backoff
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
