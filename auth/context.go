package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const (
	identityKey contextKey = iota
	headersKey
)

// WithIdentity returns a new context with the given identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the identity from the context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// RoleFromContext returns the role of the identity in ctx, or "".
func RoleFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Role
	}
	return ""
}

// WithHeaders returns a new context carrying inbound HTTP headers.
func WithHeaders(ctx context.Context, headers http.Header) context.Context {
	return context.WithValue(ctx, headersKey, headers)
}

// HeadersFromContext retrieves HTTP headers from the context, or nil.
func HeadersFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headersKey).(http.Header)
	return h
}

// GetHeader returns the first value of a header in ctx, or "".
func GetHeader(ctx context.Context, key string) string {
	return HeadersFromContext(ctx).Get(key)
}

// BearerToken returns the token from an "Authorization: Bearer <token>"
// header in ctx, or "".
func BearerToken(ctx context.Context) string {
	return ParseBearer(GetHeader(ctx, "Authorization"))
}

// ParseBearer extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func ParseBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
