package vcenter

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the normalized category of a failed vCenter call.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindAlreadyExists ErrorKind = "ALREADY_EXISTS"
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindForbidden     ErrorKind = "FORBIDDEN"
	KindConflict      ErrorKind = "CONFLICT"
	KindUnknown       ErrorKind = "UNKNOWN"
)

// Sentinel errors for vCenter operations.
var (
	// ErrAuthFailed indicates vCenter rejected the configured credentials.
	ErrAuthFailed = errors.New("vcenter: authentication failed")

	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("vcenter: session pool closed")

	// ErrHostPoisoned is returned by Acquire for a host whose credentials
	// were rejected, until the host is Reset.
	ErrHostPoisoned = errors.New("vcenter: host disabled after authentication failure")

	// ErrSessionClosed is returned by a login attempted or completed after
	// the session was closed.
	ErrSessionClosed = errors.New("vcenter: session closed")

	// ErrNoToken indicates a successful login response carried no session id.
	ErrNoToken = errors.New("vcenter: login returned no session token")
)

// APIError is a normalized error returned by vCenter. It is immutable once
// built by Classify.
type APIError struct {
	Status  int
	Kind    ErrorKind
	Message string
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("vcenter: %s %s: HTTP %d %s: %s", e.Method, e.Path, e.Status, e.Kind, msg)
}

// IsNotFound reports whether the error is a NOT_FOUND.
func (e *APIError) IsNotFound() bool { return e.Kind == KindNotFound }

// Transient reports whether the call may succeed if repeated.
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsNotFound reports whether err wraps a NOT_FOUND APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}

// KindOf returns the normalized kind of err, or "" if err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// TransportError is a failure to exchange a request with vCenter at all:
// connection refused, DNS failure, TLS failure or timeout.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vcenter: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials for a host.
type AuthError struct {
	Host   string
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("vcenter: authentication to %s failed: HTTP %d", e.Host, e.Status)
	}
	return fmt.Sprintf("vcenter: authentication to %s failed: %v", e.Host, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is reports whether the target matches ErrAuthFailed.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuthFailed
}

// PoolError reports that the pool could not provide a session for Host.
type PoolError struct {
	Host string
	Err  error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("vcenter: no session for %s: %v", e.Host, e.Err)
}

func (e *PoolError) Unwrap() error { return e.Err }
