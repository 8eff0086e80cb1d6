package vcenter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	testUser     = "administrator@vsphere.local"
	testPassword = "s3cret"
)

// fakeVCenter is an in-process vCenter that issues session ids, validates
// them on every call and counts logins, logouts and API requests.
type fakeVCenter struct {
	srv *httptest.Server

	// apiLoginStatus, when set, is returned by POST /api/session.
	apiLoginStatus int

	// login, when set, sees every session POST first and reports whether
	// it answered the request.
	login func(w http.ResponseWriter, r *http.Request) bool

	// handle serves every non-session request that carries a valid token.
	handle func(w http.ResponseWriter, r *http.Request)

	loginAttempts atomic.Int32
	logins        atomic.Int32
	logouts       atomic.Int32
	requests      atomic.Int32
	seq           atomic.Int32

	mu    sync.Mutex
	valid map[string]bool
}

func newFakeVCenter(t *testing.T) *fakeVCenter {
	t.Helper()
	f := &fakeVCenter{valid: make(map[string]bool)}
	f.handle = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]string{{"vm": "vm-1", "name": "web01"}})
	}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVCenter) host() string {
	return strings.TrimPrefix(f.srv.URL, "https://")
}

func (f *fakeVCenter) credential() Credential {
	return Credential{Host: f.host(), Username: testUser, Password: testPassword}
}

func (f *fakeVCenter) credentials(host string) (Credential, error) {
	if host != f.host() {
		return Credential{}, fmt.Errorf("no credential for %s", host)
	}
	return f.credential(), nil
}

// live returns the number of session ids vCenter still accepts.
func (f *fakeVCenter) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.valid)
}

// expireAll invalidates every issued session id.
func (f *fakeVCenter) expireAll() {
	f.mu.Lock()
	clear(f.valid)
	f.mu.Unlock()
}

func (f *fakeVCenter) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == apiSessionPath || r.URL.Path == restSessionPath:
		f.serveSession(w, r)
		return
	}

	f.requests.Add(1)
	f.mu.Lock()
	ok := f.valid[r.Header.Get(SessionHeader)]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error_type": "UNAUTHENTICATED",
			"messages":   []map[string]string{{"default_message": "Authentication required."}},
		})
		return
	}
	f.handle(w, r)
}

func (f *fakeVCenter) serveSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		f.loginAttempts.Add(1)
		if f.login != nil && f.login(w, r) {
			return
		}
		if r.URL.Path == apiSessionPath && f.apiLoginStatus != 0 {
			w.WriteHeader(f.apiLoginStatus)
			return
		}
		user, pass, _ := r.BasicAuth()
		if user != testUser || pass != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error_type": "UNAUTHENTICATED"})
			return
		}
		token := fmt.Sprintf("session-%d", f.seq.Add(1))
		f.mu.Lock()
		f.valid[token] = true
		f.mu.Unlock()
		f.logins.Add(1)

		if r.URL.Path == restSessionPath {
			writeJSON(w, http.StatusOK, map[string]string{"value": token})
			return
		}
		writeJSON(w, http.StatusCreated, token)
	case http.MethodDelete:
		f.logouts.Add(1)
		f.mu.Lock()
		delete(f.valid, r.Header.Get(SessionHeader))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
