package auth

import (
	"context"
	"errors"
)

// CompositeResolver tries resolvers in order and returns the first identity.
type CompositeResolver struct {
	// Resolvers is the ordered list to try.
	Resolvers []Resolver
}

// NewCompositeResolver creates a composite resolver. Nil entries are dropped.
func NewCompositeResolver(rs ...Resolver) *CompositeResolver {
	c := &CompositeResolver{}
	for _, r := range rs {
		if r != nil {
			c.Resolvers = append(c.Resolvers, r)
		}
	}
	return c
}

// Name returns "composite".
func (c *CompositeResolver) Name() string { return "composite" }

// Supports returns true if any resolver supports the token.
func (c *CompositeResolver) Supports(token string) bool {
	for _, r := range c.Resolvers {
		if r.Supports(token) {
			return true
		}
	}
	return false
}

// Resolve tries each supporting resolver. When every one fails, the most
// specific error wins: an expired or malformed token is reported over a
// plain miss.
func (c *CompositeResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}
	var last error
	for _, r := range c.Resolvers {
		if !r.Supports(token) {
			continue
		}
		id, err := r.Resolve(ctx, token)
		if err == nil {
			return id, nil
		}
		if last == nil || errors.Is(last, ErrInvalidCredentials) {
			last = err
		}
	}
	if last == nil {
		return nil, ErrInvalidCredentials
	}
	return nil, last
}

var _ Resolver = (*CompositeResolver)(nil)
