package llm

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryConfig bounds the retry loop. Delay before retry n is
// min(BaseDelay*2^n, MaxDelay) plus jitter.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// withRetry runs fn until it succeeds, returns a non-retryable error or the
// attempts run out. It reports how many attempts were made and the last error.
func withRetry[T any](ctx context.Context, rc RetryConfig, fn func(ctx context.Context) (T, error)) (T, int, error) {
	attempts := rc.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := rc.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := rc.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}

	policy := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return err != nil && IsRetryable(err) && ctx.Err() == nil
		}).
		WithBackoff(base, maxDelay).
		WithJitterFactor(0.1).
		WithMaxRetries(attempts - 1).
		Build()

	var (
		made    int
		lastErr error
	)
	result, err := failsafe.With(policy).WithContext(ctx).Get(func() (T, error) {
		made++
		r, err := fn(ctx)
		lastErr = err
		return r, err
	})
	if err != nil {
		var zero T
		if lastErr == nil {
			lastErr = err
		}
		return zero, made, lastErr
	}
	return result, made, nil
}
