package auth

import (
	"context"
	"errors"
	"testing"
)

func testPolicy(t *testing.T, enforce bool) *PolicyAuthorizer {
	t.Helper()
	p, err := NewPolicyAuthorizer(PolicyConfig{
		Roles: map[string][]string{
			"read":  {"list_vms"},
			"ops":   {"list_*", "power_on_vm", "delete_vm"},
			"admin": {"*"},
		},
		Destructive: []string{"delete_vm"},
		Enforce:     enforce,
	})
	if err != nil {
		t.Fatalf("NewPolicyAuthorizer() error = %v", err)
	}
	return p
}

func TestNewPolicyAuthorizer_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config PolicyConfig
	}{
		{"empty role name", PolicyConfig{Roles: map[string][]string{"": {"list_vms"}}}},
		{"empty tool", PolicyConfig{Roles: map[string][]string{"read": {""}}}},
		{"empty destructive", PolicyConfig{Destructive: []string{" "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyAuthorizer(tt.config)
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestPolicyAuthorizer_Authorize(t *testing.T) {
	p := testPolicy(t, true)
	reader := &Identity{Principal: "r", Role: "read", Method: AuthMethodToken}
	ops := &Identity{Principal: "o", Role: "ops", Method: AuthMethodToken}
	admin := &Identity{Principal: "a", Role: "admin", Method: AuthMethodToken}
	ghost := &Identity{Principal: "g", Role: "ghost", Method: AuthMethodToken}

	tests := []struct {
		name    string
		req     AuthzRequest
		wantErr error
	}{
		{"allowed", AuthzRequest{Subject: reader, Tool: "list_vms"}, nil},
		{"tool outside role", AuthzRequest{Subject: reader, Tool: "delete_vm", Confirmed: true}, ErrForbidden},
		{"nil subject", AuthzRequest{Tool: "list_vms"}, ErrUnauthorized},
		{"anonymous subject", AuthzRequest{Subject: Anonymous(), Tool: "list_vms"}, ErrUnauthorized},
		{"undefined role", AuthzRequest{Subject: ghost, Tool: "list_vms"}, ErrForbidden},
		{"prefix wildcard", AuthzRequest{Subject: ops, Tool: "list_hosts"}, nil},
		{"global wildcard", AuthzRequest{Subject: admin, Tool: "anything"}, nil},
		{"destructive without confirm", AuthzRequest{Subject: ops, Tool: "delete_vm"}, ErrConfirmationRequired},
		{"destructive with confirm", AuthzRequest{Subject: ops, Tool: "delete_vm", Confirmed: true}, nil},
		// Role is checked before confirmation.
		{"forbidden beats confirmation", AuthzRequest{Subject: reader, Tool: "delete_vm"}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Authorize(context.Background(), &tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Authorize() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authorize() error = %v, want %v", err, tt.wantErr)
			}
			var azErr *AuthzError
			if !errors.As(err, &azErr) {
				t.Fatalf("error type = %T, want *AuthzError", err)
			}
			if azErr.Tool != tt.req.Tool {
				t.Errorf("AuthzError.Tool = %q, want %q", azErr.Tool, tt.req.Tool)
			}
		})
	}
}

func TestPolicyAuthorizer_EnforcementDisabled(t *testing.T) {
	p := testPolicy(t, false)
	if p.Enforcing() {
		t.Fatal("Enforcing() = true, want false")
	}

	// Identity and role checks are skipped.
	if err := p.Authorize(context.Background(), &AuthzRequest{Tool: "list_vms"}); err != nil {
		t.Errorf("nil subject error = %v, want nil", err)
	}
	reader := &Identity{Principal: "r", Role: "read", Method: AuthMethodToken}
	if err := p.Authorize(context.Background(), &AuthzRequest{Subject: reader, Tool: "power_on_vm"}); err != nil {
		t.Errorf("tool outside role error = %v, want nil", err)
	}

	// Confirmation is still required.
	err := p.Authorize(context.Background(), &AuthzRequest{Subject: Anonymous(), Tool: "delete_vm"})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("destructive error = %v, want ErrConfirmationRequired", err)
	}
	if err := p.Authorize(context.Background(), &AuthzRequest{Tool: "delete_vm", Confirmed: true}); err != nil {
		t.Errorf("confirmed destructive error = %v, want nil", err)
	}
}

func TestPolicyAuthorizer_Lookups(t *testing.T) {
	p := testPolicy(t, true)

	if got := p.RoleNames(); len(got) != 3 || got[0] != "admin" {
		t.Errorf("RoleNames() = %v", got)
	}
	if !p.IsDestructive("delete_vm") || p.IsDestructive("list_vms") {
		t.Error("IsDestructive() mismatch")
	}
	if !p.Allows("ops", "list_datastores") || p.Allows("read", "list_hosts") {
		t.Error("Allows() mismatch")
	}
	if p.Name() != "policy" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"list_*", "list_vms", true},
		{"list_*", "get_vm_details", false},
		{"list_vms", "list_vms", true},
		{"list_vms", "list_vms_extra", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.value); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}

func TestAuthzError(t *testing.T) {
	inner := errors.New("boom")
	err := &AuthzError{Subject: "alice", Tool: "delete_vm", Reason: "nope", Cause: ErrForbidden, Err: inner}

	if !errors.Is(err, ErrForbidden) {
		t.Error("errors.Is(ErrForbidden) = false")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is(ErrUnauthorized) = true")
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is(inner) = false")
	}
	want := "auth: access denied: alice may not call delete_vm: nope"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	anon := &AuthzError{Tool: "list_vms", Cause: ErrUnauthorized}
	if anon.Error() != "auth: unauthorized: anonymous may not call list_vms" {
		t.Errorf("Error() = %q", anon.Error())
	}
}

func TestAuthorizerFunc(t *testing.T) {
	called := false
	f := AuthorizerFunc(func(_ context.Context, req *AuthzRequest) error {
		called = true
		return nil
	})
	if err := f.Authorize(context.Background(), &AuthzRequest{}); err != nil || !called {
		t.Errorf("AuthorizerFunc not invoked correctly: err=%v called=%v", err, called)
	}
	if f.Name() != "func" {
		t.Errorf("Name() = %q", f.Name())
	}
}
