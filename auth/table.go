package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// HashToken returns the SHA-256 hash of a token as hex.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, non-reversible label for a token that is safe
// to log and use as a map key.
func Fingerprint(token string) string {
	return "tok-" + HashToken(token)[:12]
}

// IdentityTable is the fixed, read-only mapping from caller keys to roles.
// Keys are opaque tokens or JWT subjects; only their hashes are kept.
type IdentityTable struct {
	roles map[string]string
}

// NewIdentityTable builds a table from key → role pairs. Empty keys or
// roles are rejected.
func NewIdentityTable(keys map[string]string) (*IdentityTable, error) {
	t := &IdentityTable{roles: make(map[string]string, len(keys))}
	for key, role := range keys {
		key = strings.TrimSpace(key)
		role = strings.TrimSpace(role)
		if key == "" {
			return nil, fmt.Errorf("%w: empty identity", ErrInvalidPolicy)
		}
		if role == "" {
			return nil, fmt.Errorf("%w: identity %s has no role", ErrInvalidPolicy, Fingerprint(key))
		}
		t.roles[HashToken(key)] = role
	}
	return t, nil
}

// Lookup returns the role for key.
func (t *IdentityTable) Lookup(key string) (string, bool) {
	if t == nil || key == "" {
		return "", false
	}
	role, ok := t.roles[HashToken(key)]
	return role, ok
}

// Roles returns the sorted set of roles referenced by the table.
func (t *IdentityTable) Roles() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of identities.
func (t *IdentityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.roles)
}

// TableResolver resolves opaque tokens through an IdentityTable.
type TableResolver struct {
	table *IdentityTable
}

// NewTableResolver creates a resolver over table.
func NewTableResolver(table *IdentityTable) *TableResolver {
	return &TableResolver{table: table}
}

// Name returns "token".
func (r *TableResolver) Name() string { return "token" }

// Supports accepts any non-empty token.
func (r *TableResolver) Supports(token string) bool { return token != "" }

// Resolve maps token to its identity.
func (r *TableResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}
	role, ok := r.table.Lookup(token)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Principal: Fingerprint(token),
		Role:      role,
		Method:    AuthMethodToken,
	}, nil
}

var _ Resolver = (*TableResolver)(nil)
