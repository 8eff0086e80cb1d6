package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// MaxWait is the maximum time Wait blocks for a token.
	// Default: 1 second
	MaxWait time.Duration

	// Now supplies the admission clock.
	// Default: time.Now
	Now func() time.Time
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.Rate <= 0 {
		c.Rate = 100
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// RateLimiter is a token bucket: it starts full at Burst tokens and refills
// lazily at Rate tokens per second, never above Burst.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	config = config.withDefaults()
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow checks if a request is allowed under the rate limit.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if n requests are allowed, consuming n tokens if so.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.limiter.AllowN(rl.config.Now(), n)
}

// Wait blocks until a token is available, MaxWait elapses, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rl.Allow() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, rl.config.MaxWait)
	defer cancel()

	err := rl.limiter.Wait(waitCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		// rate reports a wait longer than the deadline as a plain error.
		return ErrRateLimitExceeded
	}
}

// Execute runs the operation if a token is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.TokensAt(rl.config.Now())
}

// Config returns the rate limiter configuration.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

// KeyedRateLimiter holds one independent bucket per key. Buckets are created
// on first use and live as long as the limiter.
//
// Contract:
// - Concurrency: safe for concurrent use; keys never contend with each other.
// - Errors: Admit returns ErrRateLimitExceeded (wrapped in *RateLimitError).
type KeyedRateLimiter struct {
	config  RateLimiterConfig
	buckets sync.Map // string -> *RateLimiter
}

// NewKeyedRateLimiter creates a per-key limiter sharing one configuration.
func NewKeyedRateLimiter(config RateLimiterConfig) *KeyedRateLimiter {
	return &KeyedRateLimiter{config: config.withDefaults()}
}

// Limiter returns the bucket for key, creating it if needed.
func (k *KeyedRateLimiter) Limiter(key string) *RateLimiter {
	if rl, ok := k.buckets.Load(key); ok {
		return rl.(*RateLimiter)
	}
	rl, _ := k.buckets.LoadOrStore(key, NewRateLimiter(k.config))
	return rl.(*RateLimiter)
}

// Admit consumes one token from key's bucket.
func (k *KeyedRateLimiter) Admit(key string) error {
	rl := k.Limiter(key)
	if rl.Allow() {
		return nil
	}
	return &RateLimitError{Key: key, Rate: k.config.Rate, Burst: k.config.Burst}
}

// Len returns the number of buckets created so far.
func (k *KeyedRateLimiter) Len() int {
	n := 0
	k.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// RateLimitError reports which key was denied.
type RateLimitError struct {
	Key   string
	Rate  float64
	Burst int
}

func (e *RateLimitError) Error() string {
	return ErrRateLimitExceeded.Error()
}

// Is reports whether the target matches ErrRateLimitExceeded.
func (e *RateLimitError) Is(target error) bool {
	return errors.Is(target, ErrRateLimitExceeded)
}
