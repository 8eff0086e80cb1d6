package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// PolicyConfig is the role table and destructive set.
type PolicyConfig struct {
	// Roles maps a role name to the tools it may call. Entries may use a
	// trailing "*" wildcard ("list_*") or "*" for every tool.
	Roles map[string][]string

	// Destructive lists tools that require confirmation.
	Destructive []string

	// Enforce turns identity and role checks on. Confirmation of
	// destructive tools is required either way.
	Enforce bool
}

// PolicyAuthorizer is the role → tool authorizer with destructive
// confirmation. It is immutable after construction.
type PolicyAuthorizer struct {
	roles       map[string][]string
	destructive map[string]struct{}
	enforce     bool
}

// NewPolicyAuthorizer validates config and builds the authorizer.
func NewPolicyAuthorizer(config PolicyConfig) (*PolicyAuthorizer, error) {
	a := &PolicyAuthorizer{
		roles:       make(map[string][]string, len(config.Roles)),
		destructive: make(map[string]struct{}, len(config.Destructive)),
		enforce:     config.Enforce,
	}
	for role, tools := range config.Roles {
		if strings.TrimSpace(role) == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrInvalidPolicy)
		}
		patterns := make([]string, 0, len(tools))
		for _, t := range tools {
			t = strings.TrimSpace(t)
			if t == "" {
				return nil, fmt.Errorf("%w: role %q has an empty tool entry", ErrInvalidPolicy, role)
			}
			patterns = append(patterns, t)
		}
		a.roles[role] = patterns
	}
	for _, t := range config.Destructive {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: empty destructive tool entry", ErrInvalidPolicy)
		}
		a.destructive[t] = struct{}{}
	}
	return a, nil
}

// Name returns "policy".
func (a *PolicyAuthorizer) Name() string { return "policy" }

// Enforcing reports whether identity and role checks are on.
func (a *PolicyAuthorizer) Enforcing() bool { return a.enforce }

// HasRole reports whether role is defined.
func (a *PolicyAuthorizer) HasRole(role string) bool {
	_, ok := a.roles[role]
	return ok
}

// RoleNames returns the defined roles, sorted.
func (a *PolicyAuthorizer) RoleNames() []string {
	out := make([]string, 0, len(a.roles))
	for r := range a.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Allows reports whether role may call tool.
func (a *PolicyAuthorizer) Allows(role, tool string) bool {
	for _, p := range a.roles[role] {
		if matchPattern(p, tool) {
			return true
		}
	}
	return false
}

// IsDestructive reports whether tool requires confirmation.
func (a *PolicyAuthorizer) IsDestructive(tool string) bool {
	_, ok := a.destructive[tool]
	return ok
}

// Authorize checks, in order: identity, role membership, confirmation.
func (a *PolicyAuthorizer) Authorize(_ context.Context, req *AuthzRequest) error {
	if a.enforce {
		if req.Subject.IsAnonymous() || req.Subject.Role == "" {
			return denied(ErrUnauthorized, req.Subject, req.Tool, "unknown identity")
		}
		if !a.HasRole(req.Subject.Role) {
			return denied(ErrForbidden, req.Subject, req.Tool, fmt.Sprintf("role %q is not defined", req.Subject.Role))
		}
		if !a.Allows(req.Subject.Role, req.Tool) {
			return denied(ErrForbidden, req.Subject, req.Tool, fmt.Sprintf("tool not in role %q", req.Subject.Role))
		}
	}
	if a.IsDestructive(req.Tool) && !req.Confirmed {
		return denied(ErrConfirmationRequired, req.Subject, req.Tool, "destructive tool requires confirm=true")
	}
	return nil
}

func matchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

var _ Authorizer = (*PolicyAuthorizer)(nil)
