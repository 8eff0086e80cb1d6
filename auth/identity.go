package auth

import "time"

// AuthMethod records how a caller was identified.
type AuthMethod string

const (
	// AuthMethodNone is used for callers that presented nothing usable.
	AuthMethodNone AuthMethod = ""

	// AuthMethodToken is an opaque token found in the identity table.
	AuthMethodToken AuthMethod = "token"

	// AuthMethodJWT is a signed token whose subject is in the identity table.
	AuthMethodJWT AuthMethod = "jwt"

	// AuthMethodAnonymous is used when enforcement is off and the caller
	// could not be resolved.
	AuthMethodAnonymous AuthMethod = "anonymous"
)

// AnonymousPrincipal is the principal of unresolved callers.
const AnonymousPrincipal = "anonymous"

// Identity is a resolved caller. Every resolved identity has exactly one role.
type Identity struct {
	// Principal names the caller without revealing its token.
	Principal string

	// Role is the single role the caller maps to.
	Role string

	// Method is how the caller was resolved.
	Method AuthMethod

	// Claims holds the JWT claims for AuthMethodJWT.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Anonymous returns the identity used for unresolved callers.
func Anonymous() *Identity {
	return &Identity{Principal: AnonymousPrincipal, Method: AuthMethodAnonymous}
}

// IsAnonymous reports whether the identity was never resolved.
func (id *Identity) IsAnonymous() bool {
	return id == nil || id.Method == AuthMethodAnonymous || id.Method == AuthMethodNone
}

// IsExpired reports whether ExpiresAt has passed. A zero ExpiresAt never expires.
func (id *Identity) IsExpired() bool {
	if id == nil || id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(id.ExpiresAt)
}
