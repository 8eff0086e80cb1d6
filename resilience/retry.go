package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// Jitter randomizes each delay by up to 25% to spread retries out.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry implements retry with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic. When attempts are exhausted
// the last error is returned unchanged.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !r.config.RetryIf(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if r.config.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			r.config.OnRetry(attempt, err, delay)
		}))
	}

	return backoff.Retry(ctx, operation, opts...)
}

func (r *Retry) newBackOff() backoff.BackOff {
	var b backoff.BackOff
	switch r.config.Strategy {
	case BackoffConstant:
		b = backoff.NewConstantBackOff(r.config.InitialDelay)
	case BackoffLinear:
		b = &linearBackOff{step: r.config.InitialDelay}
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = r.config.InitialDelay
		exp.Multiplier = r.config.Multiplier
		exp.MaxInterval = r.config.MaxDelay
		exp.RandomizationFactor = 0
		exp.Reset()
		b = exp
	}
	return &boundedBackOff{next: b, max: r.config.MaxDelay, jitter: r.config.Jitter}
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	b := r.newBackOff()
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

type linearBackOff struct {
	step time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return l.step * time.Duration(l.n)
}

func (l *linearBackOff) Reset() { l.n = 0 }

// boundedBackOff caps every strategy at MaxDelay and applies jitter on top.
type boundedBackOff struct {
	next   backoff.BackOff
	max    time.Duration
	jitter bool
}

func (b *boundedBackOff) NextBackOff() time.Duration {
	d := b.next.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if d > b.max {
		d = b.max
	}
	if b.jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

func (b *boundedBackOff) Reset() { b.next.Reset() }
