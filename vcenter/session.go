package vcenter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/vspherebroker/observe"
	"github.com/jonwraymond/vspherebroker/resilience"
)

// SessionHeader carries the vCenter session id on authenticated requests.
const SessionHeader = "vmware-api-session-id"

const (
	apiSessionPath  = "/api/session"
	restSessionPath = "/rest/com/vmware/cis/session"

	// maxResponseBody bounds how much of a response is read into memory.
	maxResponseBody = 32 << 20

	defaultLoginTimeout = 20 * time.Second
)

// APIMode selects the vCenter API surface.
type APIMode string

const (
	// ModeAPI uses the /api surface (vSphere 7.0 U2 and later).
	ModeAPI APIMode = "api"
	// ModeREST uses the legacy /rest surface with {"value": ...} envelopes.
	ModeREST APIMode = "rest"
)

// ParseAPIMode parses "api" or "rest". Empty selects ModeAPI.
func ParseAPIMode(s string) (APIMode, error) {
	switch APIMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAPI:
		return ModeAPI, nil
	case ModeREST:
		return ModeREST, nil
	default:
		return "", fmt.Errorf("vcenter: unknown api mode %q (want api or rest)", s)
	}
}

// Credential is the login for one vCenter host. It is never mutated after
// construction.
type Credential struct {
	Host     string
	Username string
	Password string
}

// String omits the password.
func (c Credential) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Host)
}

// Request describes one vCenter call relative to the API root, e.g.
// {GET /vcenter/vm}.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is JSON-encoded. In ModeREST it is wrapped as {"spec": Body}.
	Body any

	// Expect lists the statuses that mean success.
	// Default: DefaultExpect (200)
	Expect []int
}

// Response is a raw vCenter response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Value is Body with a ModeREST {"value": ...} envelope removed.
	Value json.RawMessage

	// token is the session id the request was sent with.
	token string
}

// Decode unmarshals the response value into v. An empty body leaves v unchanged.
func (r *Response) Decode(v any) error {
	data := r.Value
	if len(data) == 0 {
		data = r.Body
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Mode selects the API surface.
	// Default: ModeAPI
	Mode APIMode

	Logger observe.Logger

	// LoginTimeout bounds each login and logout exchange. Expiry matches
	// resilience.ErrTimeout.
	// Default: 20s
	LoginTimeout time.Duration

	// Now supplies timestamps.
	// Default: time.Now
	Now func() time.Time
}

// Session is an authenticated context for one vCenter host. It is either
// authenticated (non-empty token) or reset (empty token).
//
// Contract:
// - Concurrency: safe for concurrent use; renewal is serialized per session.
// - Context: all network operations honor ctx.
// - Errors: Authenticate returns *AuthError only when vCenter rejects the
// credentials (401/403). Other login statuses are *APIError, unreachable
// hosts are *TransportError and slow logins match resilience.ErrTimeout.
// - Ownership: after Close, a login that completes is logged out at once.
type Session struct {
	cred         Credential
	base         string
	client       *http.Client
	mode         APIMode
	logger       observe.Logger
	now          func() time.Time
	loginTimeout *resilience.Timeout

	mu         sync.RWMutex
	token      string
	logoutPath string
	createdAt  time.Time
	lastUsed   time.Time
	closed     bool

	renewals singleflight.Group
	logins   atomic.Int64
}

// NewSession creates an unauthenticated session for cred.Host.
func NewSession(cred Credential, client *http.Client, opts SessionOptions) *Session {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Mode == "" {
		opts.Mode = ModeAPI
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = defaultLoginTimeout
	}
	return &Session{
		cred:         cred,
		base:         "https://" + cred.Host,
		client:       client,
		mode:         opts.Mode,
		logger:       opts.Logger.With(observe.Field{Key: "host", Value: cred.Host}),
		now:          opts.Now,
		loginTimeout: resilience.NewTimeout(resilience.TimeoutConfig{Timeout: opts.LoginTimeout}),
	}
}

// Host returns the vCenter host this session belongs to.
func (s *Session) Host() string { return s.cred.Host }

// Mode returns the API surface the session calls.
func (s *Session) Mode() APIMode { return s.mode }

// Authenticated reports whether the session holds a token.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// CreatedAt returns when the current token was obtained.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// LastUsed returns when the session last sent a request.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// Logins returns the number of successful login exchanges.
func (s *Session) Logins() int64 { return s.logins.Load() }

// Authenticate logs in and stores the new token. It fails with
// ErrSessionClosed once the session is closed.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	var token, logoutPath string
	err := s.loginTimeout.Execute(ctx, func(ctx context.Context) error {
		var err error
		token, logoutPath, err = s.login(ctx)
		return err
	})
	if err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.endSession(ctx, token, logoutPath)
		return ErrSessionClosed
	}
	s.token = token
	s.logoutPath = logoutPath
	s.createdAt = now
	s.lastUsed = now
	s.mu.Unlock()

	s.logins.Add(1)
	s.logger.Info(ctx, "vcenter session established", observe.Field{Key: "user", Value: s.cred.Username})
	return nil
}

func (s *Session) login(ctx context.Context) (token, logoutPath string, err error) {
	if s.mode == ModeAPI {
		status, body, header, err := s.postLogin(ctx, apiSessionPath)
		if err != nil {
			return "", "", err
		}
		if !apiLoginMissing(status) {
			return s.loginResult(apiSessionPath, status, body, header)
		}
		s.logger.Debug(ctx, "api session endpoint unavailable, trying rest",
			observe.Field{Key: "status", Value: status})
	}

	status, body, header, err := s.postLogin(ctx, restSessionPath)
	if err != nil {
		return "", "", err
	}
	return s.loginResult(restSessionPath, status, body, header)
}

// apiLoginMissing reports a status meaning the host predates /api/session.
func apiLoginMissing(status int) bool {
	switch status {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

// loginResult maps a login response to a token. Only 401 and 403 mean the
// credentials were rejected; any other failure is classified like an API
// response, so 429 and 5xx stay retryable.
func (s *Session) loginResult(path string, status int, body []byte, header http.Header) (string, string, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", "", &AuthError{Host: s.cred.Host, Status: status, Err: Classify(http.MethodPost, path, status, body, nil)}
	case status < 200 || status >= 300:
		return "", "", Classify(http.MethodPost, path, status, body, nil)
	}
	token := parseLoginToken(body, header)
	if token == "" {
		return "", "", &AuthError{Host: s.cred.Host, Err: ErrNoToken}
	}
	return token, path, nil
}

func (s *Session) postLogin(ctx context.Context, path string) (int, []byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+path, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.SetBasicAuth(s.cred.Username, s.cred.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, nil, &TransportError{Method: http.MethodPost, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, nil, &TransportError{Method: http.MethodPost, Path: path, Err: err}
	}

	header := resp.Header.Clone()
	for _, c := range resp.Cookies() {
		if c.Name == SessionHeader && header.Get(SessionHeader) == "" {
			header.Set(SessionHeader, c.Value)
		}
	}
	return resp.StatusCode, body, header, nil
}

// parseLoginToken accepts a JSON string, a {"value": "..."} envelope, a bare
// text body, or the session header/cookie.
func parseLoginToken(body []byte, header http.Header) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 {
		var str string
		if err := json.Unmarshal(trimmed, &str); err == nil && str != "" {
			return str
		}
		var env struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Value != "" {
			return env.Value
		}
		if !json.Valid(trimmed) {
			return string(trimmed)
		}
	}
	return header.Get(SessionHeader)
}

// Renew replaces the token that produced a 401. Concurrent callers share a
// single login; a caller whose stale token was already replaced returns
// without logging in again.
func (s *Session) Renew(ctx context.Context, stale string) error {
	_, err, _ := s.renewals.Do("renew", func() (any, error) {
		s.mu.Lock()
		if s.token != "" && s.token != stale {
			s.mu.Unlock()
			return nil, nil
		}
		s.token = ""
		s.mu.Unlock()

		s.logger.Info(ctx, "renewing expired vcenter session")
		return nil, s.Authenticate(ctx)
	})
	return err
}

// Logout ends the vCenter session and clears the token. Failures are
// logged, never returned. Logging out a reset session does nothing.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	token, path := s.token, s.logoutPath
	s.token = ""
	s.mu.Unlock()

	s.endSession(ctx, token, path)
}

// Close logs out and prevents further logins, including a renewal already
// in flight.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Logout(ctx)
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// endSession deletes token on vCenter within the login timeout.
func (s *Session) endSession(ctx context.Context, token, path string) {
	if token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.loginTimeout.Config().Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.base+path, nil)
	if err != nil {
		s.logger.Warn(ctx, "vcenter logout failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}
	req.Header.Set(SessionHeader, token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn(ctx, "vcenter logout failed", observe.Field{Key: "error", Value: err.Error()})
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		s.logger.Warn(ctx, "vcenter logout rejected", observe.Field{Key: "status", Value: resp.StatusCode})
		return
	}
	s.logger.Debug(ctx, "vcenter session closed")
}

// Do sends one request with the current token and returns the raw response.
// Only a failure to exchange the request is an error; HTTP error statuses
// are returned as responses for the caller to classify.
func (s *Session) Do(ctx context.Context, r Request) (*Response, error) {
	path := s.resolvePath(r.Path)

	var body io.Reader
	if r.Body != nil {
		payload := r.Body
		if s.mode == ModeREST {
			payload = map[string]any{"spec": r.Body}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("vcenter: encode %s %s: %w", r.Method, path, err)
		}
		body = bytes.NewReader(data)
	}

	target := s.base + path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("vcenter: build %s %s: %w", r.Method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	s.mu.Lock()
	token := s.token
	s.lastUsed = s.now()
	s.mu.Unlock()
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: r.Method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{Method: r.Method, Path: path, Err: err}
	}

	out := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		token:  token,
	}
	if s.mode == ModeREST && resp.StatusCode < 300 {
		var env struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &env); err == nil && env.Value != nil {
			out.Value = env.Value
		}
	}
	return out, nil
}

// resolvePath prefixes a relative path with the mode's API root. Paths that
// already name a root are used as given.
func (s *Session) resolvePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/rest/") {
		return p
	}
	if s.mode == ModeREST {
		return "/rest" + p
	}
	return "/api" + p
}
