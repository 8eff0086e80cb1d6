// Package auth resolves broker callers and authorizes their tool calls.
//
// A caller presents a token. The token is either an opaque string listed in
// the identity table or, when a signing secret is configured, an HS256 JWT
// whose sub claim is listed there. Each identity maps to exactly one role;
// each role is a set of tool names.
//
// The Gate combines resolution with the PolicyAuthorizer:
//
//	gate, err := auth.NewGate(auth.GateConfig{
//		Tokens:      map[string]string{"tok1": "read"},
//		Roles:       map[string][]string{"read": {"list_vms"}},
//		Destructive: []string{"delete_vm"},
//		Enforce:     true,
//	})
//	id, err := gate.Check(ctx, "tok1", "list_vms", false)
//
// Denials are *AuthzError values that match ErrUnauthorized, ErrForbidden or
// ErrConfirmationRequired. With enforcement off, identity and role checks are
// skipped but destructive tools still need confirmation.
package auth
