package auth

import "context"

// Resolver maps a caller token to an Identity.
//
// Resolvers are safe for concurrent use. A token the resolver does not
// recognize yields ErrInvalidCredentials (or a more specific error such as
// ErrTokenExpired); Supports lets a CompositeResolver skip resolvers that
// cannot handle a token's shape at all.
type Resolver interface {
	// Name identifies the resolver in logs.
	Name() string

	// Supports reports whether the token has a shape this resolver handles.
	Supports(token string) bool

	// Resolve returns the identity for token.
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// ResolverFunc adapts a function to a Resolver that supports every
// non-empty token.
type ResolverFunc func(ctx context.Context, token string) (*Identity, error)

// Name returns "func".
func (f ResolverFunc) Name() string { return "func" }

// Supports accepts any non-empty token.
func (f ResolverFunc) Supports(token string) bool { return token != "" }

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

var _ Resolver = ResolverFunc(nil)
