package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/vspherebroker/audit"
	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/health"
	"github.com/jonwraymond/vspherebroker/observe"
	"github.com/jonwraymond/vspherebroker/resilience"
	"github.com/jonwraymond/vspherebroker/tools"
	"github.com/jonwraymond/vspherebroker/vcenter"
)

// RateLimitConfig configures the per-identity token bucket.
type RateLimitConfig struct {
	Enabled bool

	// RPS is the refill rate in tokens per second.
	RPS float64

	// Burst is the bucket capacity.
	Burst int

	// Now supplies the limiter clock.
	// Default: time.Now
	Now func() time.Time
}

// Config is everything a Broker needs. It is read once by New.
type Config struct {
	// DefaultHost is used when a call names no host. Required.
	DefaultHost string

	// AllowedHosts restricts target hosts.
	// Default: {DefaultHost}
	AllowedHosts []string

	// Credentials resolves the vCenter login per host. Required.
	Credentials vcenter.CredentialFunc

	// Mode selects the vCenter API surface.
	// Default: vcenter.ModeAPI
	Mode vcenter.APIMode

	// TLS configures certificate verification. Ignored when Client is set.
	TLS vcenter.TLSConfig

	// Client overrides the HTTP client built from TLS.
	Client *http.Client

	// Timeout bounds each vCenter exchange: every attempt, login and logout.
	// Default: 20s
	Timeout time.Duration

	// Retries is the number of retries after the first attempt. Zero
	// disables retry.
	Retries int

	// Backoff is the base delay; the nth retry waits Backoff * 2^n.
	// Default: 500ms
	Backoff time.Duration

	RateLimit RateLimitConfig

	// Auth is the identity table, role table and destructive set.
	Auth auth.GateConfig

	// Catalog is the set of callable tools.
	// Default: tools.Default()
	Catalog *tools.Catalog

	// Audit receives one record per Invoke.
	// Default: audit.Discard
	Audit audit.Sink

	// Instrumenter traces and measures each Invoke.
	// Default: observe.NoopInstrumenter()
	Instrumenter *observe.Instrumenter

	Logger observe.Logger
}

// Call is one inbound tool invocation.
type Call struct {
	// Token is the caller's opaque token or JWT.
	Token string

	Tool string

	// Host is the target vCenter. Empty selects the default host.
	Host string

	Args tools.Args

	// Confirm acknowledges a destructive tool.
	Confirm bool
}

// Broker is the single entry point for tool calls: authorize, rate limit,
// check the host, then run the tool through the session pool.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: Invoke returns *Error; exactly one audit record is written
//     per Invoke, success or failure.
//   - Ownership: Shutdown logs out every pooled session and is idempotent.
type Broker struct {
	gate        *auth.Gate
	limiter     *resilience.KeyedRateLimiter
	catalog     *tools.Catalog
	pool        *vcenter.Pool
	exec        *vcenter.Executor
	audit       audit.Sink
	inst        *observe.Instrumenter
	logger      observe.Logger
	defaultHost string
	allowed     map[string]struct{}
	closed      atomic.Bool
}

// New validates cfg and builds a Broker. No vCenter connection is made
// until the first call.
func New(cfg Config) (*Broker, error) {
	cfg.DefaultHost = normalizeHost(cfg.DefaultHost)
	if cfg.DefaultHost == "" {
		return nil, errors.New("broker: default host is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("broker: credentials are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Instrumenter == nil {
		cfg.Instrumenter = observe.NoopInstrumenter()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Discard
	}
	if cfg.Catalog == nil {
		cfg.Catalog = tools.Default()
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("broker: retries must not be negative, got %d", cfg.Retries)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedHosts)+1)
	for _, h := range cfg.AllowedHosts {
		if h = normalizeHost(h); h != "" {
			allowed[h] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		allowed[cfg.DefaultHost] = struct{}{}
	}
	if _, ok := allowed[cfg.DefaultHost]; !ok {
		return nil, fmt.Errorf("broker: default host %q is not in the allowed hosts", cfg.DefaultHost)
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return nil, fmt.Errorf("broker: rate limit needs positive rps and burst, got %v/%d",
			cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	gate, err := auth.NewGate(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client, err = vcenter.NewHTTPClient(vcenter.ClientConfig{TLS: cfg.TLS})
		if err != nil {
			return nil, fmt.Errorf("broker: %w", err)
		}
	}

	metrics := cfg.Instrumenter.Metrics()
	pool, err := vcenter.NewPool(vcenter.PoolConfig{
		Credentials:  cfg.Credentials,
		Client:       client,
		Mode:         cfg.Mode,
		Logger:       cfg.Logger,
		LoginTimeout: cfg.Timeout,
		OnLogin:      metrics.RecordLogin,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	exec := vcenter.NewExecutor(pool, vcenter.ExecutorConfig{
		Timeout: cfg.Timeout,
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Retries + 1,
			InitialDelay: cfg.Backoff,
			Multiplier:   2,
		},
		Logger: cfg.Logger,
	})

	b := &Broker{
		gate:        gate,
		catalog:     cfg.Catalog,
		pool:        pool,
		exec:        exec,
		audit:       cfg.Audit,
		inst:        cfg.Instrumenter,
		logger:      cfg.Logger,
		defaultHost: cfg.DefaultHost,
		allowed:     allowed,
	}
	if cfg.RateLimit.Enabled {
		b.limiter = resilience.NewKeyedRateLimiter(resilience.RateLimiterConfig{
			Rate:  cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
			Now:   cfg.RateLimit.Now,
		})
	}
	return b, nil
}

// Catalog returns the tools the broker serves.
func (b *Broker) Catalog() *tools.Catalog { return b.catalog }

// Policy returns the role and destructive policy.
func (b *Broker) Policy() *auth.PolicyAuthorizer { return b.gate.Policy() }

// DefaultHost returns the host used for calls that name none.
func (b *Broker) DefaultHost() string { return b.defaultHost }

// state is what Invoke learned before it finished, for audit.
type state struct {
	id   *auth.Identity
	host string
}

// Invoke authorizes and runs one tool call.
func (b *Broker) Invoke(ctx context.Context, call Call) (tools.Result, error) {
	ctx, scope := b.inst.Start(ctx, observe.CallMeta{
		Tool:        call.Tool,
		Destructive: b.gate.Policy().IsDestructive(call.Tool),
	})

	st := &state{}
	res, err := b.invoke(ctx, call, st)
	if err != nil {
		err = &Error{Kind: KindOf(err), Tool: call.Tool, Host: st.host, Err: err}
		res = nil
	}

	var role, principal string
	if st.id != nil {
		role, principal = st.id.Role, st.id.Principal
	}
	scope.Annotate(role, st.host)
	dur := scope.End(err)

	b.record(ctx, audit.Record{
		Tool:       call.Tool,
		DurationMS: float64(dur.Microseconds()) / 1000,
		Principal:  principal,
		Role:       role,
		Host:       st.host,
		Args:       call.Args.Redacted(),
	}, err)
	return res, err
}

// record completes rec from err and writes it. A failed write is logged,
// never returned.
func (b *Broker) record(ctx context.Context, rec audit.Record, err error) {
	rec.OK = err == nil
	if err != nil {
		rec.Error = err.(*Error).Err.Error()
		rec.ErrorKind = Label(err)
	}
	if aerr := b.audit.Write(ctx, rec); aerr != nil {
		b.logger.Error(ctx, "audit write failed",
			observe.Field{Key: "tool", Value: rec.Tool},
			observe.Field{Key: "error", Value: aerr.Error()})
	}
}

func (b *Broker) invoke(ctx context.Context, call Call, st *state) (tools.Result, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	id, err := b.gate.Check(ctx, call.Token, call.Tool, call.Confirm)
	st.id = id
	if err != nil {
		return nil, err
	}
	ctx = auth.WithIdentity(ctx, id)

	if b.limiter != nil {
		if err := b.limiter.Admit(limiterKey(id, call.Token)); err != nil {
			b.inst.Metrics().RecordDenied(ctx, call.Tool)
			return nil, err
		}
	}

	tool, err := b.catalog.Get(call.Tool)
	if err != nil {
		return nil, err
	}

	host := normalizeHost(call.Host)
	if host == "" {
		host = b.defaultHost
	}
	st.host = host
	if _, ok := b.allowed[host]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}

	return tool.Run(ctx, b.exec.For(host), call.Args)
}

// limiterKey picks the bucket for a caller: the resolved principal, a
// fingerprint of an unresolved token, or "anonymous".
func limiterKey(id *auth.Identity, token string) string {
	if !id.IsAnonymous() {
		return id.Principal
	}
	if token != "" {
		return auth.Fingerprint(token)
	}
	return auth.AnonymousPrincipal
}

// ResetHostOperation is the policy name a role must grant to call ResetHost.
const ResetHostOperation = "reset_host"

// ResetHost re-enables a host whose credentials were rejected and drops
// its session. The caller's token must resolve to a role granting
// ResetHostOperation; an empty host means the default host. Every attempt
// is audited like a tool call.
func (b *Broker) ResetHost(ctx context.Context, token, host string) error {
	ctx, scope := b.inst.Start(ctx, observe.CallMeta{Tool: ResetHostOperation})

	st := &state{}
	err := b.resetHost(ctx, token, host, st)
	if err != nil {
		err = &Error{Kind: KindOf(err), Tool: ResetHostOperation, Host: st.host, Err: err}
	}

	var role, principal string
	if st.id != nil {
		role, principal = st.id.Role, st.id.Principal
	}
	scope.Annotate(role, st.host)
	dur := scope.End(err)

	b.record(ctx, audit.Record{
		Tool:       ResetHostOperation,
		DurationMS: float64(dur.Microseconds()) / 1000,
		Principal:  principal,
		Role:       role,
		Host:       st.host,
	}, err)
	if err == nil {
		b.logger.Info(ctx, "host reset",
			observe.Field{Key: "host", Value: st.host},
			observe.Field{Key: "principal", Value: principal})
	}
	return err
}

func (b *Broker) resetHost(ctx context.Context, token, host string, st *state) error {
	if b.closed.Load() {
		return ErrClosed
	}
	id, err := b.gate.Check(ctx, token, ResetHostOperation, true)
	st.id = id
	if err != nil {
		return err
	}

	host = normalizeHost(host)
	if host == "" {
		host = b.defaultHost
	}
	st.host = host
	if _, ok := b.allowed[host]; !ok {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	b.pool.Reset(ctx, host)
	return nil
}

// Shutdown logs out every pooled session. Later calls fail with
// KindUnavailable; repeated Shutdown calls are no-ops.
func (b *Broker) Shutdown(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pool.Shutdown(ctx)
}

// HealthChecker reports on the session pool.
func (b *Broker) HealthChecker() health.Checker {
	return health.NewPoolChecker(b.pool)
}

func normalizeHost(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
