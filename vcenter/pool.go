package vcenter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/vspherebroker/observe"
)

// CredentialFunc returns the credential for a host.
type CredentialFunc func(host string) (Credential, error)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Credentials resolves the login for each host. Required.
	Credentials CredentialFunc

	// Client is shared by every session.
	// Default: http.DefaultClient
	Client *http.Client

	// Mode selects the API surface for every session.
	// Default: ModeAPI
	Mode APIMode

	Logger observe.Logger

	// LoginTimeout bounds each session's login and logout exchanges.
	// Default: 20s
	LoginTimeout time.Duration

	// OnLogin is called after every initial login attempt.
	OnLogin func(ctx context.Context, host string, err error)
}

// Pool holds at most one Session per host. Sessions are created on first
// use and shared by concurrent callers; they are never checked out.
//
// Contract:
// - Concurrency: safe for concurrent use. Creation is serialized per host,
// so concurrent first use of a host performs exactly one login.
// - Errors: Acquire returns *PoolError. A host whose credentials are
// rejected (401/403) stays failed (ErrHostPoisoned) until Reset; transient
// login failures are returned without disabling the host.
// - Ownership: Shutdown logs out every session; it is idempotent.
type Pool struct {
	cfg    PoolConfig
	logger observe.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	failed   map[string]error
	closed   bool

	creating sync.Map // host -> *sync.Mutex
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("vcenter: pool requires a credential source")
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAPI
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Pool{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		failed:   make(map[string]error),
	}, nil
}

// Acquire returns the authenticated session for host, logging in on first use.
func (p *Pool) Acquire(ctx context.Context, host string) (*Session, error) {
	if s, ok, err := p.lookup(host); ok {
		return s, err
	}

	lock := p.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	if s, ok, err := p.lookup(host); ok {
		return s, err
	}

	cred, err := p.cfg.Credentials(host)
	if err != nil {
		return nil, &PoolError{Host: host, Err: err}
	}

	s := NewSession(cred, p.cfg.Client, SessionOptions{
		Mode:         p.cfg.Mode,
		Logger:       p.logger,
		LoginTimeout: p.cfg.LoginTimeout,
	})
	err = s.Authenticate(ctx)
	if p.cfg.OnLogin != nil {
		p.cfg.OnLogin(ctx, host, err)
	}
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			p.markFailed(ctx, host, err)
		}
		return nil, &PoolError{Host: host, Err: err}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.Close(ctx)
		return nil, &PoolError{Host: host, Err: ErrPoolClosed}
	}
	p.sessions[host] = s
	p.mu.Unlock()

	return s, nil
}

// lookup reports a cached outcome for host: an existing session, a
// poisoned host, or a closed pool.
func (p *Pool) lookup(host string) (*Session, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, true, &PoolError{Host: host, Err: ErrPoolClosed}
	}
	if cause, ok := p.failed[host]; ok {
		return nil, true, &PoolError{Host: host, Err: fmt.Errorf("%w: %w", ErrHostPoisoned, cause)}
	}
	if s, ok := p.sessions[host]; ok {
		return s, true, nil
	}
	return nil, false, nil
}

func (p *Pool) hostLock(host string) *sync.Mutex {
	lock, _ := p.creating.LoadOrStore(host, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// markFailed disables host after its credentials were rejected and drops
// its session, if any.
func (p *Pool) markFailed(ctx context.Context, host string, cause error) {
	p.mu.Lock()
	p.failed[host] = cause
	delete(p.sessions, host)
	p.mu.Unlock()

	p.logger.Error(ctx, "vcenter credentials rejected, host disabled until reset",
		observe.Field{Key: "host", Value: host},
		observe.Field{Key: "error", Value: cause.Error()})
}

// Reset clears a failed host and discards its session so the next Acquire
// logs in again.
func (p *Pool) Reset(ctx context.Context, host string) {
	lock := p.hostLock(host)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	delete(p.failed, host)
	s := p.sessions[host]
	delete(p.sessions, host)
	p.mu.Unlock()

	if s != nil {
		s.Close(ctx)
	}
	p.logger.Info(ctx, "vcenter host reset", observe.Field{Key: "host", Value: host})
}

// Shutdown closes every pooled session in parallel, so a renewal still in
// flight cannot leave a live login behind. Calls after the first return nil
// without contacting vCenter.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		g.Go(func() error {
			s.Close(ctx)
			return nil
		})
	}
	err := g.Wait()

	p.logger.Info(ctx, "vcenter session pool closed", observe.Field{Key: "sessions", Value: len(sessions)})
	return err
}

// PoolStats is a snapshot of pool state.
type PoolStats struct {
	Closed   bool
	Hosts    []string
	Failed   map[string]string
	Sessions int
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PoolStats{
		Closed:   p.closed,
		Sessions: len(p.sessions),
		Hosts:    make([]string, 0, len(p.sessions)),
		Failed:   make(map[string]string, len(p.failed)),
	}
	for h := range p.sessions {
		st.Hosts = append(st.Hosts, h)
	}
	sort.Strings(st.Hosts)
	for h, err := range p.failed {
		st.Failed[h] = err.Error()
	}
	return st
}
