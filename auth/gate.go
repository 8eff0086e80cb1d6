package auth

import (
	"context"
	"errors"
	"fmt"
)

// GateConfig is everything the gate needs, as parsed from configuration.
type GateConfig struct {
	// Tokens maps caller tokens (and JWT subjects) to roles.
	Tokens map[string]string

	// Roles maps role names to tool names or patterns.
	Roles map[string][]string

	// Destructive lists tools that require confirmation.
	Destructive []string

	// Enforce turns identity and role checks on.
	Enforce bool

	// JWTSecret enables HS256 caller tokens when non-empty.
	JWTSecret []byte

	// JWT holds optional issuer/audience checks.
	JWT JWTConfig
}

// Gate resolves a caller token and authorizes one tool call.
type Gate struct {
	resolver   Resolver
	authorizer *PolicyAuthorizer
}

// NewGate builds the identity table, the optional JWT resolver and the
// policy. Every identity must reference a defined role.
func NewGate(config GateConfig) (*Gate, error) {
	table, err := NewIdentityTable(config.Tokens)
	if err != nil {
		return nil, err
	}
	policy, err := NewPolicyAuthorizer(PolicyConfig{
		Roles:       config.Roles,
		Destructive: config.Destructive,
		Enforce:     config.Enforce,
	})
	if err != nil {
		return nil, err
	}
	for _, role := range table.Roles() {
		if !policy.HasRole(role) {
			return nil, fmt.Errorf("%w: identity references undefined role %q", ErrInvalidPolicy, role)
		}
	}

	var jwtResolver Resolver
	if len(config.JWTSecret) > 0 {
		jwtResolver = NewJWTResolver(config.JWT, NewStaticKeyProvider(config.JWTSecret), table)
	}
	// JWT first: a compact JWS is never a configured opaque token.
	resolver := NewCompositeResolver(jwtResolver, NewTableResolver(table))

	return &Gate{resolver: resolver, authorizer: policy}, nil
}

// NewGateWith composes a gate from parts.
func NewGateWith(resolver Resolver, authorizer *PolicyAuthorizer) *Gate {
	return &Gate{resolver: resolver, authorizer: authorizer}
}

// Policy returns the gate's authorizer.
func (g *Gate) Policy() *PolicyAuthorizer { return g.authorizer }

// Identify resolves token without authorizing anything. With enforcement
// off, an unresolvable token yields the anonymous identity and no error.
func (g *Gate) Identify(ctx context.Context, token string) (*Identity, error) {
	id, err := g.resolver.Resolve(ctx, token)
	if err == nil {
		return id, nil
	}
	if !g.authorizer.Enforcing() {
		return Anonymous(), nil
	}
	return nil, err
}

// Check resolves token and authorizes tool. The returned identity is
// non-nil whenever resolution succeeded, even if authorization failed, so
// callers can record the role.
func (g *Gate) Check(ctx context.Context, token, tool string, confirm bool) (*Identity, error) {
	id, err := g.Identify(ctx, token)
	if err != nil {
		reason := "unknown identity"
		if errors.Is(err, ErrTokenExpired) {
			reason = "token expired"
		}
		e := denied(ErrUnauthorized, nil, tool, reason)
		e.Err = err
		return nil, e
	}
	if err := g.authorizer.Authorize(ctx, &AuthzRequest{Subject: id, Tool: tool, Confirmed: confirm}); err != nil {
		return id, err
	}
	return id, nil
}
