// Package resilience provides the retry, rate limiting and timeout building
// blocks used by the broker.
//
// # Patterns
//
//   - Retry: retries failed operations with exponential, linear or constant
//     backoff (github.com/cenkalti/backoff/v5). RetryIf separates transient
//     from permanent failures; permanent ones stop the loop immediately.
//
//   - Rate Limiter: a lazily refilled token bucket (golang.org/x/time/rate).
//     KeyedRateLimiter keeps one independent bucket per caller identity.
//
//   - Timeout: a per-call deadline. Expiry is reported as ErrTimeout so the
//     retry policy can treat it as transient.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 500 * time.Millisecond,
//	    RetryIf:      isTransient,
//	})
//
//	limiter := resilience.NewKeyedRateLimiter(resilience.RateLimiterConfig{
//	    Rate:  5,
//	    Burst: 10,
//	})
//	if err := limiter.Admit(identity); err != nil {
//	    return err // errors.Is(err, resilience.ErrRateLimitExceeded)
//	}
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    return resilience.ExecuteWithTimeout(ctx, 20*time.Second, call)
//	})
package resilience
