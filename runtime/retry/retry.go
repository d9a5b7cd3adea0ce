// Package retry implements the bounded exponential backoff used by the
// executor when an idempotent action fails transiently. Hosts supply the
// transient classification; the executor is the orchestrator, individual
// actions never retry themselves.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

type (
	// Config configures retry behavior.
	Config struct {
		// MaxAttempts is the maximum number of attempts including the
		// initial one. Zero or one means no retries.
		MaxAttempts int
		// InitialBackoff is the delay before the first retry.
		InitialBackoff time.Duration
		// MaxBackoff caps the delay between retries.
		MaxBackoff time.Duration
		// BackoffMultiplier is the growth factor applied after each retry.
		// 2.0 yields exponential backoff.
		BackoffMultiplier float64
		// Jitter adds randomness to each delay to avoid thundering herds.
		// 0.1 adds up to ±10%. Values <= 0 are replaced with DefaultJitter:
		// retried invocations always jitter.
		Jitter float64
		// Classify reports whether an error is transient and therefore
		// worth retrying. Nil defaults to DefaultClassifier.
		Classify Classifier
	}

	// Classifier reports whether an error is transient.
	Classifier func(error) bool

	// ExhaustedError is returned when every attempt failed with a transient
	// error.
	ExhaustedError struct {
		// Attempts is the number of attempts made.
		Attempts int
		// TotalDuration is the total time spent across attempts and waits.
		TotalDuration time.Duration
		// LastError is the error from the final attempt.
		LastError error
	}

	// HTTPStatusError carries an HTTP status for transient classification.
	HTTPStatusError struct {
		StatusCode int
		Message    string
	}

	transientError struct {
		err error
	}
)

// DefaultJitter is applied when a Config leaves Jitter unset.
const DefaultJitter = 0.1

// DefaultConfig returns the retry configuration used by the executor when the
// host does not override it.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            DefaultJitter,
	}
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

// Unwrap returns the error from the final attempt.
func (e *ExhaustedError) Unwrap() error {
	return e.LastError
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// MarkTransient wraps err so DefaultClassifier reports it transient. Hosts
// use it to flag recoverable failures (connection resets, lock contention)
// without registering a custom classifier.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// DefaultClassifier reports whether an error is transient:
//   - errors wrapped by MarkTransient
//   - context.DeadlineExceeded (but never context.Canceled)
//   - net.Error timeouts and temporary DNS failures
//   - HTTP 429, 502, 503 and 504 carried by HTTPStatusError
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}

	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// Do executes op with retry semantics. The attempt number passed to op is
// 1-based so callers can emit per-attempt telemetry. Non-transient errors
// return immediately; transient errors retry after a jittered exponential
// backoff until attempts are exhausted, which returns an ExhaustedError
// wrapping the last error. Context cancellation during a backoff wait
// returns the context error.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	classify := cfg.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffFor(cfg, attempt)):
		}
	}

	return &ExhaustedError{
		Attempts:      cfg.MaxAttempts,
		TotalDuration: time.Since(start),
		LastError:     lastErr,
	}
}

// backoffFor computes the jittered delay applied after the given attempt.
func backoffFor(cfg Config, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	jitter := cfg.Jitter
	if jitter <= 0 {
		jitter = DefaultJitter
	}
	backoff += backoff * jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter needs no crypto rand
	return time.Duration(backoff)
}
