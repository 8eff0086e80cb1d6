package vcenter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/vspherebroker/resilience"
)

func newTestExecutor(t *testing.T, f *fakeVCenter) (*Executor, *Pool) {
	t.Helper()
	p := newTestPool(t, f)
	e := NewExecutor(p, ExecutorConfig{
		Timeout: 2 * time.Second,
		Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	return e, p
}

func TestExecutor_Success(t *testing.T) {
	f := newFakeVCenter(t)
	e, _ := newTestExecutor(t, f)

	resp, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestExecutor_RenewsOnceOn401(t *testing.T) {
	f := newFakeVCenter(t)
	e, p := newTestExecutor(t, f)

	_, err := p.Acquire(context.Background(), f.host())
	require.NoError(t, err)
	f.expireAll()

	resp, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(2), f.logins.Load(), "one initial login plus one renewal")
	assert.Equal(t, int32(2), f.requests.Load(), "original request plus one retry")
}

func TestExecutor_SecondUnauthorizedIsAuthError(t *testing.T) {
	f := newFakeVCenter(t)
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error_type": "UNAUTHENTICATED"})
	}
	e, _ := newTestExecutor(t, f)

	_, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, int32(2), f.requests.Load(), "no third attempt")
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestExecutor_RetriesServerErrors(t *testing.T) {
	f := newFakeVCenter(t)
	var calls atomic.Int32
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error_type": "SERVICE_UNAVAILABLE"})
			return
		}
		writeJSON(w, http.StatusOK, []string{})
	}
	e, _ := newTestExecutor(t, f)

	_, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/host"})

	require.NoError(t, err)
	assert.Equal(t, int32(3), f.requests.Load())
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestExecutor_ExhaustedReturnsLastError(t *testing.T) {
	f := newFakeVCenter(t)
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error_type": "ERROR"})
	}
	e, _ := newTestExecutor(t, f)

	_, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/host"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, KindUnknown, apiErr.Kind)
	assert.Equal(t, int32(3), f.requests.Load())
}

func TestExecutor_ClientErrorsNotRetried(t *testing.T) {
	f := newFakeVCenter(t)
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error_type": "NOT_FOUND"})
	}
	e, _ := newTestExecutor(t, f)

	_, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm/vm-404"})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), f.requests.Load())
}

func TestExecutor_AllowListedNoContent(t *testing.T) {
	f := newFakeVCenter(t)
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
	e, _ := newTestExecutor(t, f)

	_, err := e.Run(context.Background(), f.host(), Request{
		Method: http.MethodDelete,
		Path:   "/vcenter/vm/vm-1",
		Expect: []int{http.StatusOK, http.StatusNoContent},
	})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), f.host(), Request{Method: http.MethodDelete, Path: "/vcenter/vm/vm-1"})
	assert.Equal(t, KindUnknown, KindOf(err), "204 without allow-listing is never success")
}

func TestExecutor_TimeoutIsRetried(t *testing.T) {
	f := newFakeVCenter(t)
	var calls atomic.Int32
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeJSON(w, http.StatusOK, []string{})
	}
	p := newTestPool(t, f)
	e := NewExecutor(p, ExecutorConfig{
		Timeout: 50 * time.Millisecond,
		Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})

	_, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecutor_ConcurrentRenewalSharesOneLogin(t *testing.T) {
	f := newFakeVCenter(t)
	e, p := newTestExecutor(t, f)

	_, err := p.Acquire(context.Background(), f.host())
	require.NoError(t, err)
	f.expireAll()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.For(f.host()).Call(context.Background(), Request{Path: "/vcenter/vm"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.logins.Load(), "exactly one renewal across all callers")
}

func TestExecutor_RenewalWithRejectedCredentialsPoisonsHost(t *testing.T) {
	f := newFakeVCenter(t)
	p, err := NewPool(PoolConfig{
		Client: f.srv.Client(),
		Credentials: func(host string) (Credential, error) {
			return f.credential(), nil
		},
	})
	require.NoError(t, err)
	e := NewExecutor(p, ExecutorConfig{Retry: resilience.RetryConfig{InitialDelay: time.Millisecond}})

	s, err := p.Acquire(context.Background(), f.host())
	require.NoError(t, err)
	f.expireAll()
	s.cred.Password = "rotated"

	_, err = e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = p.Acquire(context.Background(), f.host())
	assert.ErrorIs(t, err, ErrHostPoisoned)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", &TransportError{Method: "GET", Path: "/api/x", Err: errors.New("connection refused")}, true},
		{"pool wrapping transport", &PoolError{Host: "h", Err: &TransportError{Err: errors.New("dns")}}, true},
		{"timeout", resilience.ErrTimeout, true},
		{"5xx", &APIError{Status: 502}, true},
		{"429", &APIError{Status: 429}, true},
		{"404", &APIError{Status: 404, Kind: KindNotFound}, false},
		{"auth", &AuthError{Host: "h", Status: 401}, false},
		{"canceled", &TransportError{Err: context.Canceled}, false},
		{"other", errors.New("encode failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExecutor_RetriesTransientLogin(t *testing.T) {
	f := newFakeVCenter(t)
	var failures atomic.Int32
	f.login = func(w http.ResponseWriter, r *http.Request) bool {
		if failures.Add(1) > 2 {
			return false
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error_type": "SERVICE_UNAVAILABLE"})
		return true
	}
	e, p := newTestExecutor(t, f)

	resp, err := e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), f.loginAttempts.Load(), "two failed logins then one success")
	assert.Equal(t, int32(1), f.logins.Load())
	assert.Empty(t, p.Stats().Failed)
}

func TestExecutor_StalledLoginCutOffAtTimeout(t *testing.T) {
	f := newFakeVCenter(t)
	f.login = func(w http.ResponseWriter, r *http.Request) bool {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		return true
	}
	p, err := NewPool(PoolConfig{
		Credentials:  f.credentials,
		Client:       f.srv.Client(),
		LoginTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	e := NewExecutor(p, ExecutorConfig{
		Timeout: 100 * time.Millisecond,
		Retry:   resilience.RetryConfig{MaxAttempts: 1},
	})

	start := time.Now()
	_, err = e.Run(context.Background(), f.host(), Request{Path: "/vcenter/vm"})

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, resilience.ErrTimeout)
	assert.Empty(t, p.Stats().Failed)
	assert.Equal(t, int32(0), f.requests.Load())
}
