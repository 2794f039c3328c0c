package persistence

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	supabase "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"resumeforge-backend/internal/config"
	apperrors "resumeforge-backend/pkg/errors"
)

// Operation is one backend call executed against a pooled client.
type Operation func(*supabase.Client) error

// RetryOptions configures the executor's retry behavior.
type RetryOptions struct {
	MaxAttempts   int           // Maximum number of attempts
	BaseDelay     time.Duration // Delay before the first retry
	MaxDelay      time.Duration // Cap on the backoff delay
	BackoffFactor float64       // Exponential backoff multiplier
	JitterFactor  float64       // Random jitter to spread synchronized retries
}

// DefaultRetryOptions returns the standard retry tuning.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryOptionsFromConfig maps config values onto RetryOptions, filling
// gaps from the defaults.
func RetryOptionsFromConfig(rc config.RetryConfig) RetryOptions {
	opts := DefaultRetryOptions()
	if rc.MaxAttempts > 0 {
		opts.MaxAttempts = rc.MaxAttempts
	}
	if rc.BaseDelay > 0 {
		opts.BaseDelay = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		opts.MaxDelay = rc.MaxDelay
	}
	if rc.BackoffFactor > 0 {
		opts.BackoffFactor = rc.BackoffFactor
	}
	if rc.JitterFactor > 0 {
		opts.JitterFactor = rc.JitterFactor
	}
	return opts
}

// Executor runs backend operations with pooled clients, bounded retry
// with exponential backoff, and a circuit breaker. Failure policy is
// two-tier: errors retries cannot fix (auth, validation, not-found)
// fail fast, everything else gets backoff up to MaxAttempts.
type Executor struct {
	pool    *ClientPool
	opts    RetryOptions
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewExecutor creates an executor over pool. The circuit breaker only
// counts transient failures; client-side errors pass through without
// tripping it.
func NewExecutor(pool *ClientPool, opts RetryOptions, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "supabase",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsNonRetryable(err)
		},
	})

	return &Executor{
		pool:    pool,
		opts:    opts,
		breaker: breaker,
		logger:  logger.Named("executor"),
	}
}

// ExecuteWithRetry runs op with acquire/release from the pool and
// bounded retry. The operation name is used only for logging and error
// context.
func (e *Executor) ExecuteWithRetry(ctx context.Context, operation string, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := e.attempt(op)
		if err == nil {
			return nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// Retrying against an open breaker only burns the backoff
			// budget; surface the outage immediately.
			return apperrors.NewUnavailable("backend circuit open", err)
		}
		if IsNonRetryable(err) {
			return err
		}

		if attempt == e.opts.MaxAttempts {
			break
		}

		delay := e.calculateDelay(attempt)
		e.logger.Debug("Retrying backend operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, e.opts.MaxAttempts, lastErr)
}

// attempt performs one acquire/run/release cycle. Release is deferred
// so a panicking operation cannot leak an in-use handle.
func (e *Executor) attempt(op Operation) error {
	handle, err := e.pool.Acquire()
	if err != nil {
		// A degraded pool looks like a transient outage to callers.
		return fmt.Errorf("no backend client available: %w", err)
	}
	defer e.pool.Release(handle)

	_, err = e.breaker.Execute(func() (any, error) {
		return nil, op(handle.Client())
	})
	return err
}

// calculateDelay computes the backoff delay for the given attempt.
func (e *Executor) calculateDelay(attempt int) time.Duration {
	backoff := float64(e.opts.BaseDelay) * math.Pow(e.opts.BackoffFactor, float64(attempt-1))

	jitter := backoff * e.opts.JitterFactor * (rand.Float64() - 0.5) * 2
	delay := time.Duration(backoff + jitter)

	if delay > e.opts.MaxDelay {
		delay = e.opts.MaxDelay
	}
	return delay
}

// nonRetryableMarkers are message fragments PostgREST and GoTrue attach
// to failures that retrying cannot fix.
var nonRetryableMarkers = []string{
	"invalid",
	"not found",
	"unauthorized",
	"401",
	"403",
	"404",
	"422",
}

// IsNonRetryable classifies err as unfixable by retrying: auth,
// validation and not-found errors fail fast, everything else is treated
// as transient.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}

	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) || apperrors.IsUnauthorized(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
