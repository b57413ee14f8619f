package retry

import (
	"context"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Default retry constants. These match the publisher defaults: three
// total attempts with a half-second base delay doubling each attempt.
const (
	DefaultMaxRetries    = 2
	DefaultDelaySeconds  = 0.5
	DefaultBackoffFactor = 2.0
)

// DefaultPolicy provides sensible defaults if no policy is specified.
var DefaultPolicy = models.RetryPolicy{
	MaxRetries:    intPtr(DefaultMaxRetries),
	Delay:         float64Ptr(DefaultDelaySeconds),
	BackoffFactor: float64Ptr(DefaultBackoffFactor),
}

// Operation is a function that performs an action and returns an error if it fails.
type Operation func(ctx context.Context) error

// Do executes the provided operation, retrying according to the policy if
// it fails. Missing policy fields fall back to the defaults.
func Do(ctx context.Context, operationName string, policy *models.RetryPolicy, op Operation) error {
	if err := ctx.Err(); err != nil {
		logger.L().Warn("Operation cancelled before first attempt", "operation", operationName, "error", err)
		return err
	}

	effective := MergePolicies(policy, &DefaultPolicy)
	l := logger.L().With("operation", operationName)

	maxRetries := *effective.MaxRetries
	currentDelay := time.Duration(*effective.Delay * float64(time.Second))
	backoffFactor := *effective.BackoffFactor

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 0 {
				l.Info("Operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		l.Warn("Operation failed", "attempt", attempt+1, "max_attempts", maxRetries+1, "error", lastErr)

		if attempt == maxRetries {
			l.Error("Operation failed after exhausting all retries", "error", lastErr)
			break
		}

		// Wait for the backoff delay, respecting context cancellation.
		select {
		case <-time.After(currentDelay):
			currentDelay = time.Duration(float64(currentDelay) * backoffFactor)
		case <-ctx.Done():
			l.Warn("Retry cancelled due to context cancellation", "error", ctx.Err())
			return ctx.Err()
		}
	}

	return lastErr
}

// MergePolicies combines a specific policy with a default policy.
// Specific values override defaults. Pointers are used to detect unset fields.
func MergePolicies(specific, defaultP *models.RetryPolicy) *models.RetryPolicy {
	if defaultP == nil {
		dpCopy := DefaultPolicy
		defaultP = &dpCopy
	}
	if specific == nil {
		specific = &models.RetryPolicy{}
	}

	merged := &models.RetryPolicy{
		MaxRetries:    specific.MaxRetries,
		Delay:         specific.Delay,
		BackoffFactor: specific.BackoffFactor,
	}
	if merged.MaxRetries == nil {
		merged.MaxRetries = defaultP.MaxRetries
	}
	if merged.Delay == nil {
		merged.Delay = defaultP.Delay
	}
	if merged.BackoffFactor == nil {
		merged.BackoffFactor = defaultP.BackoffFactor
	}

	// Final fallback to constants in case the provided default was incomplete.
	if merged.MaxRetries == nil {
		merged.MaxRetries = intPtr(DefaultMaxRetries)
	}
	if merged.Delay == nil {
		merged.Delay = float64Ptr(DefaultDelaySeconds)
	}
	if merged.BackoffFactor == nil {
		merged.BackoffFactor = float64Ptr(DefaultBackoffFactor)
	}

	return merged
}

func intPtr(i int) *int             { return &i }
func float64Ptr(f float64) *float64 { return &f }
