package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds operations with a per-call deadline.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{config: config}
}

// Execute runs op under a derived deadline. The operation must honor ctx.
// When the deadline (and not the caller's context) ends the operation, the
// returned error matches ErrTimeout and still wraps the operation's error.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	err := op(callCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, t.config.Timeout, err)
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
