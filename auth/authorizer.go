package auth

import (
	"context"
	"fmt"
)

// Authorizer decides whether an identity may run a tool.
type Authorizer interface {
	// Authorize returns nil when the call is allowed, or an *AuthzError
	// matching ErrUnauthorized, ErrForbidden or ErrConfirmationRequired.
	Authorize(ctx context.Context, req *AuthzRequest) error

	// Name identifies the authorizer in logs.
	Name() string
}

// AuthzRequest is one authorization decision.
type AuthzRequest struct {
	// Subject is the resolved caller. Nil means unresolved.
	Subject *Identity

	// Tool is the operation being invoked.
	Tool string

	// Confirmed is the caller's explicit confirmation for destructive tools.
	Confirmed bool
}

// AuthzError describes a denied call. It matches its Cause sentinel with
// errors.Is and unwraps to Err, the underlying resolution failure if any.
type AuthzError struct {
	Subject string
	Role    string
	Tool    string
	Reason  string
	Cause   error
	Err     error
}

// Error implements error.
func (e *AuthzError) Error() string {
	who := e.Subject
	if who == "" {
		who = AnonymousPrincipal
	}
	msg := fmt.Sprintf("%v: %s may not call %s", e.Cause, who, e.Tool)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches the Cause sentinel.
func (e *AuthzError) Is(target error) bool {
	return e.Cause != nil && target == e.Cause
}

// Unwrap returns the underlying error.
func (e *AuthzError) Unwrap() error { return e.Err }

func denied(cause error, subject *Identity, tool, reason string) *AuthzError {
	e := &AuthzError{Tool: tool, Reason: reason, Cause: cause}
	if subject != nil {
		e.Subject = subject.Principal
		e.Role = subject.Role
	}
	return e
}

// AuthorizerFunc adapts a function to an Authorizer.
type AuthorizerFunc func(ctx context.Context, req *AuthzRequest) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *AuthzRequest) error {
	return f(ctx, req)
}

// Name returns "func".
func (f AuthorizerFunc) Name() string { return "func" }

var _ Authorizer = AuthorizerFunc(nil)
