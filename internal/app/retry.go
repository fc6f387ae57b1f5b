/**
 * @description
 * Retry executor shared by every sweep entry point. Transient failures
 * (network blips, provider 5xx, pool exhaustion) are retried with exponential
 * backoff; anything else propagates immediately so data bugs never spin.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"time"

	"github.com/ebardia/band-it-sub000/internal/metrics"
)

// RetryPolicy defines retry behavior for a sweep run.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Reset, when set, runs before each backoff sleep. It exists so callers
	// can drop poisoned resources (stale pool connections) between attempts.
	Reset func(ctx context.Context)
}

// DefaultRetryPolicy provides sensible defaults for sweep execution.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 5 * time.Second,
	MaxDelay:     60 * time.Second,
	Multiplier:   2.0,
}

// transientMarkers are error substrings treated as retryable when the error
// carries no richer classification.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no route to host",
	"network is unreachable",
	"i/o timeout",
	"too many requests",
	"too many connections",
	"connection pool",
}

// IsTransient reports whether an error is worth retrying. It prefers typed
// classification (net.Error timeouts, anything exposing Transient()) and
// falls back to message matching for drivers that only return plain errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var classified interface{ Transient() bool }
	if errors.As(err, &classified) {
		return classified.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retrier executes operations under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	logger *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retry executor with the given policy.
func NewRetrier(policy RetryPolicy, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = DefaultRetryPolicy.Multiplier
	}
	return &Retrier{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute runs fn until it succeeds, fails fatally, or attempts run out.
// The returned error is the last one fn produced.
func (r *Retrier) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Warn("transient failure, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay.String(),
			"error", err,
		)
		metrics.RetryAttempts.WithLabelValues(operation).Inc()

		if r.policy.Reset != nil {
			r.policy.Reset(ctx)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) backoff(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
