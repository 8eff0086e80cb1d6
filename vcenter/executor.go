package vcenter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonwraymond/vspherebroker/observe"
	"github.com/jonwraymond/vspherebroker/resilience"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Timeout bounds each attempt. Expiry is a transient failure.
	// Default: 20s
	Timeout time.Duration

	// Retry is the backoff policy for transient failures. RetryIf is
	// always replaced by IsTransient.
	// Default: 3 attempts, 500ms initial delay, doubling, capped at 30s
	Retry resilience.RetryConfig

	Logger observe.Logger
}

// Executor runs requests against pooled sessions with retry, per-attempt
// timeouts and one-shot session renewal.
//
// Contract:
//   - Transport failures, timeouts, 429 and 5xx are retried with backoff;
//     when attempts run out the last error is returned.
//   - A 401 renews the session once and repeats the request once. A second
//     401 is returned as *AuthError and not retried.
//   - Any other non-allow-listed status is returned as *APIError immediately.
type Executor struct {
	pool    *Pool
	retry   *resilience.Retry
	timeout *resilience.Timeout
	logger  observe.Logger
}

// NewExecutor creates an executor over pool.
func NewExecutor(pool *Pool, cfg ExecutorConfig) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 500 * time.Millisecond
	}
	logger := cfg.Logger
	cfg.Retry.RetryIf = IsTransient
	onRetry := cfg.Retry.OnRetry
	cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn(context.Background(), "vcenter call failed, retrying",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			observe.Field{Key: "error", Value: err.Error()})
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	return &Executor{
		pool:    pool,
		retry:   resilience.NewRetry(cfg.Retry),
		timeout: resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.Timeout}),
		logger:  logger,
	}
}

// Run executes req against host and returns the successful response.
func (e *Executor) Run(ctx context.Context, host string, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	return resilience.Do(ctx, e.retry, func(ctx context.Context) (*Response, error) {
		return e.attempt(ctx, host, req)
	})
}

func (e *Executor) attempt(ctx context.Context, host string, req Request) (*Response, error) {
	s, err := e.pool.Acquire(ctx, host)
	if err != nil {
		return nil, err
	}

	resp, err := e.send(ctx, s, req)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		e.logger.Info(ctx, "vcenter session rejected, renewing", observe.Field{Key: "host", Value: host})
		if err := s.Renew(ctx, resp.token); err != nil {
			if errors.Is(err, ErrAuthFailed) {
				e.pool.markFailed(ctx, host, err)
			}
			return nil, err
		}
		if resp, err = e.send(ctx, s, req); err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			return nil, &AuthError{
				Host:   host,
				Status: resp.Status,
				Err:    Classify(req.Method, s.resolvePath(req.Path), resp.Status, resp.Body, req.Expect),
			}
		}
	}

	if err := Classify(req.Method, s.resolvePath(req.Path), resp.Status, resp.Body, req.Expect); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Executor) send(ctx context.Context, s *Session, req Request) (*Response, error) {
	var resp *Response
	err := e.timeout.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.Do(ctx, req)
		return err
	})
	return resp, err
}

// For returns a Caller bound to host.
func (e *Executor) For(host string) Caller {
	return &hostCaller{exec: e, host: host}
}

// IsTransient reports whether err may succeed on retry: transport
// failures, timeouts, 429 and 5xx responses. Caller cancellation and
// rejected credentials are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAuthFailed) {
		return false
	}
	if errors.Is(err, resilience.ErrTimeout) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var te *TransportError
	return errors.As(err, &te)
}

// Caller issues requests to one vCenter host.
type Caller interface {
	// Host returns the target host.
	Host() string

	// Call runs one request and returns the successful response, or a
	// normalized error.
	Call(ctx context.Context, req Request) (*Response, error)
}

type hostCaller struct {
	exec *Executor
	host string
}

func (c *hostCaller) Host() string { return c.host }

func (c *hostCaller) Call(ctx context.Context, req Request) (*Response, error) {
	return c.exec.Run(ctx, c.host, req)
}

var _ Caller = (*hostCaller)(nil)
