package auth

import "errors"

// Sentinel errors for caller resolution and authorization.
var (
	// Resolution errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrKeyNotFound        = errors.New("auth: signing key not found")

	// Authorization errors
	ErrUnauthorized         = errors.New("auth: unauthorized")
	ErrForbidden            = errors.New("auth: access denied")
	ErrConfirmationRequired = errors.New("auth: confirmation required")

	// ErrInvalidPolicy is returned when a role table or identity table
	// cannot be built.
	ErrInvalidPolicy = errors.New("auth: invalid policy")
)
