package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/vspherebroker/vcenter"
)

const (
	vcUser     = "svc-broker@vsphere.local"
	vcPassword = "vc-pass"
)

// fakeVCenter serves the slice of the vSphere REST API the broker tests
// touch. POST /api/session accepts only the current password.
type fakeVCenter struct {
	srv *httptest.Server

	logins   atomic.Int32
	logouts  atomic.Int32
	requests atomic.Int32

	mu       sync.Mutex
	password string
	tokens   map[string]bool
	vms      map[string]string
}

func newFakeVCenter(t *testing.T) *fakeVCenter {
	t.Helper()
	f := &fakeVCenter{
		password: vcPassword,
		tokens:   make(map[string]bool),
		vms:      map[string]string{"vm-1": "web01", "vm-2": "db01"},
	}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVCenter) host() string { return strings.TrimPrefix(f.srv.URL, "https://") }

func (f *fakeVCenter) credentials(host string) (vcenter.Credential, error) {
	if host != f.host() {
		return vcenter.Credential{}, fmt.Errorf("no credential for %s", host)
	}
	return vcenter.Credential{Host: host, Username: vcUser, Password: vcPassword}, nil
}

func (f *fakeVCenter) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/session" {
		f.serveSession(w, r)
		return
	}

	f.requests.Add(1)
	f.mu.Lock()
	ok := f.tokens[r.Header.Get(vcenter.SessionHeader)]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error_type": "UNAUTHENTICATED"})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/vcenter/vm":
		f.mu.Lock()
		list := make([]map[string]string, 0, len(f.vms))
		for id, name := range f.vms {
			list = append(list, map[string]string{"vm": id, "name": name})
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, list)
	case strings.HasPrefix(r.URL.Path, "/api/vcenter/vm/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/vcenter/vm/")
		f.mu.Lock()
		name, found := f.vms[id]
		if found && r.Method == http.MethodDelete {
			delete(f.vms, id)
		}
		f.mu.Unlock()
		switch {
		case !found:
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error_type": "NOT_FOUND",
				"messages":   []map[string]string{{"default_message": "vm " + id + " not found"}},
			})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"name": name})
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error_type": "NOT_FOUND"})
	}
}

func (f *fakeVCenter) serveSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		user, pass, ok := r.BasicAuth()
		f.mu.Lock()
		want := f.password
		f.mu.Unlock()
		if !ok || user != vcUser || pass != want {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error_type": "UNAUTHENTICATED"})
			return
		}
		n := f.logins.Add(1)
		token := fmt.Sprintf("session-%d", n)
		f.mu.Lock()
		f.tokens[token] = true
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, token)
	case http.MethodDelete:
		f.logouts.Add(1)
		f.mu.Lock()
		delete(f.tokens, r.Header.Get(vcenter.SessionHeader))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeVCenter) setPassword(pw string) {
	f.mu.Lock()
	f.password = pw
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
