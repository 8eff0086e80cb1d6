package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/resilience"
	"github.com/jonwraymond/vspherebroker/tools"
	"github.com/jonwraymond/vspherebroker/vcenter"
)

// Kind discriminates the outcome of a failed Invoke.
type Kind string

const (
	KindUnauthorized         Kind = "Unauthorized"
	KindForbidden            Kind = "Forbidden"
	KindConfirmationRequired Kind = "ConfirmationRequired"
	KindRateLimited          Kind = "RateLimitExceeded"
	KindHostNotAllowed       Kind = "HostNotAllowed"
	KindUnknownTool          Kind = "UnknownTool"
	KindInvalidArgument      Kind = "InvalidArgument"

	// KindAuthFailed means vCenter rejected the broker's own credentials.
	// The host stays disabled until reset.
	KindAuthFailed Kind = "AuthError"

	// KindRemote is a classified vCenter error; see Error.RemoteKind.
	KindRemote Kind = "Remote"

	// KindTransport covers unreachable hosts and timeouts after retries.
	KindTransport Kind = "Transport"

	KindCanceled    Kind = "Canceled"
	KindUnavailable Kind = "Unavailable"
	KindInternal    Kind = "Internal"
)

// Sentinel errors raised by the broker itself.
var (
	ErrHostNotAllowed = errors.New("broker: host not allowed")
	ErrClosed         = errors.New("broker: closed")
)

// Error is the single error type returned by Invoke.
type Error struct {
	Kind Kind
	Tool string
	Host string
	Err  error
}

func (e *Error) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s %s@%s: %v", e.Kind, e.Tool, e.Host, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Tool, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RemoteKind returns the normalized vCenter kind for KindRemote errors.
func (e *Error) RemoteKind() vcenter.ErrorKind { return vcenter.KindOf(e.Err) }

// Status returns the vCenter HTTP status, or 0 when no response was classified.
func (e *Error) Status() int {
	var apiErr *vcenter.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Label is the low-cardinality string recorded in audit and metrics:
// the vCenter kind for remote errors, the broker kind otherwise.
func (e *Error) Label() string {
	if e.Kind == KindRemote {
		if k := e.RemoteKind(); k != "" {
			return string(k)
		}
	}
	return string(e.Kind)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return classify(err)
}

// Label returns the label of err, or "" for nil.
func Label(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Label()
	}
	return (&Error{Kind: classify(err), Err: err}).Label()
}

func classify(err error) Kind {
	var (
		apiErr *vcenter.APIError
		te     *vcenter.TransportError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return KindForbidden
	case errors.Is(err, auth.ErrConfirmationRequired):
		return KindConfirmationRequired
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return KindRateLimited
	case errors.Is(err, ErrHostNotAllowed):
		return KindHostNotAllowed
	case errors.Is(err, tools.ErrUnknownTool):
		return KindUnknownTool
	case errors.Is(err, tools.ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, vcenter.ErrAuthFailed), errors.Is(err, vcenter.ErrHostPoisoned):
		return KindAuthFailed
	case errors.Is(err, ErrClosed), errors.Is(err, vcenter.ErrPoolClosed), errors.Is(err, vcenter.ErrSessionClosed):
		return KindUnavailable
	case errors.As(err, &apiErr):
		return KindRemote
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &te), errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	default:
		return KindInternal
	}
}
