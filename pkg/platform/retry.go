package platform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"enginectl/pkg/apierrors"
	"enginectl/pkg/logx"
)

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultRetryConfig derives from the transient error class defaults. MaxRetries
// counts retries, so the initial attempt is added on top.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   apierrors.DefaultRetryConfigs[apierrors.ErrorTypeTransient].MaxRetries + 1,
	InitialDelay:  apierrors.DefaultRetryConfigs[apierrors.ErrorTypeTransient].InitialDelay,
	MaxDelay:      apierrors.DefaultRetryConfigs[apierrors.ErrorTypeTransient].MaxDelay,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// RetryPolicy combines configuration and classification.
type RetryPolicy struct {
	Config     RetryConfig
	Classifier Classifier
}

// NewRetryPolicy creates a policy; a nil classifier uses apierrors.IsRetryable.
func NewRetryPolicy(config RetryConfig, classifier Classifier) *RetryPolicy {
	if classifier == nil {
		classifier = apierrors.IsRetryable
	}
	return &RetryPolicy{Config: config, Classifier: classifier}
}

// CalculateDelay computes the delay before the given attempt number.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		// Uniform in [-10%, +10%].
		delay += time.Duration((rand.Float64()*2 - 1) * 0.1 * float64(delay))
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}
	return delay
}

// attemptsFor returns how many attempts err's class allows, capped by the
// policy. Errors without a class get the policy's full budget.
func (p *RetryPolicy) attemptsFor(err error) int {
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		return p.Config.MaxAttempts
	}
	return min(apiErr.GetRetryConfig().MaxRetries+1, p.Config.MaxAttempts)
}

// ShouldRetry reports whether err is worth another attempt.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// WithRetry retries idempotent calls that fail with a retryable error.
func WithRetry(policy *RetryPolicy) Option {
	return WithInterceptor(RetryInterceptor(policy))
}

// RetryInterceptor implements WithRetry.
func RetryInterceptor(policy *RetryPolicy) Interceptor {
	logger := logx.NewLogger("retry")

	return func(ctx context.Context, call Call, next Handler) error {
		if !call.Idempotent || policy.Config.MaxAttempts <= 1 {
			return next(ctx)
		}

		attempt := 1
		for {
			err := next(ctx)
			if err == nil {
				return nil
			}
			if !policy.ShouldRetry(err) {
				return err
			}

			limit := policy.attemptsFor(err)
			if attempt >= limit {
				if apierrors.Is(err, apierrors.ErrorTypeTransient) {
					return apierrors.NewServiceUnavailableError(call.Op, err, attempt)
				}
				return err
			}

			attempt++
			delay := policy.CalculateDelay(attempt)
			logger.Warn("%s failed (%v), retrying in %s (attempt %d/%d)", call.Op, err, delay, attempt, limit)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
				}
			}
		}
	}
}
