package retry

import (
	"context"
	"math"
	"time"

	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // Total attempts, including the first
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on backoff delay; 0 means uncapped
	Multiplier   float64       // Multiplier for exponential backoff

	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep SleepFunc
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultRetryConfig returns the default retry configuration
// Pattern: 1s, 2s between three attempts
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, fails with a
// non-retriable error, or runs out of attempts. A retry-after hint on the
// error replaces the computed backoff delay.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, operation string, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx).WithField("operation", operation)
	startTime := time.Now()

	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	result := &RetryResult{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(startTime)

			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}

		result.LastError = err

		if apperrors.IsNonRetriable(err) {
			logger.WithFields(map[string]interface{}{
				"status": apperrors.StatusCode(err),
			}).WithError(err).Error("Request failed with non-retriable status")
			break
		}

		if attempt >= maxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts":      attempt,
				"totalDuration": time.Since(startTime).String(),
			}).WithError(err).Error("All retries failed")
			break
		}

		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Retry cancelled due to context cancellation")
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		if hint, ok := apperrors.RetryAfter(err); ok {
			delay = hint
		}

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": maxAttempts,
			"delay":       delay.String(),
			"status":      apperrors.StatusCode(err),
		}).WithError(err).Warn("Operation failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			logger.WithError(err).Warn("Retry cancelled during backoff")
			result.LastError = err
			break
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

// Do runs fn under config and returns nil on success. A non-retriable or
// context error is returned as is; exhausting every attempt yields a
// RetriesExhaustedError naming the operation.
func Do(ctx context.Context, config *RetryConfig, operation string, fn func(ctx context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	result := WithExponentialBackoff(ctx, config, operation, func(ctx context.Context, _ int) error {
		return fn(ctx)
	})
	if result.Success {
		return nil
	}

	if apperrors.IsNonRetriable(result.LastError) || ctx.Err() != nil {
		return result.LastError
	}

	return &apperrors.RetriesExhaustedError{
		Operation: operation,
		Attempts:  result.Attempts,
		LastErr:   result.LastError,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
