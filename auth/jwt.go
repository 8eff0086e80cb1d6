package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT resolver.
type JWTConfig struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides one shared HMAC secret.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key, ignoring keyID.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if len(p.key) == 0 {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// JWTResolver validates HS256 tokens and looks their sub claim up in the
// identity table. A valid signature on an unknown subject is still rejected.
type JWTResolver struct {
	config JWTConfig
	keys   KeyProvider
	table  *IdentityTable
	parser *jwt.Parser
}

// NewJWTResolver creates a JWT resolver.
func NewJWTResolver(config JWTConfig, keys KeyProvider, table *IdentityTable) *JWTResolver {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}
	return &JWTResolver{
		config: config,
		keys:   keys,
		table:  table,
		parser: jwt.NewParser(opts...),
	}
}

// Name returns "jwt".
func (r *JWTResolver) Name() string { return "jwt" }

// Supports reports whether token looks like a compact JWS.
func (r *JWTResolver) Supports(token string) bool {
	return strings.Count(token, ".") == 2 && !strings.ContainsAny(token, " \t")
}

// Resolve validates token and maps its subject to a role.
func (r *JWTResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	claims := jwt.MapClaims{}
	parsed, err := r.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return r.keys.GetKey(ctx, kid)
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, ErrKeyNotFound):
		return nil, ErrKeyNotFound
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case !parsed.Valid:
		return nil, ErrInvalidCredentials
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrTokenMalformed)
	}
	role, ok := r.table.Lookup(sub)
	if !ok {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{
		Principal: sub,
		Role:      role,
		Method:    AuthMethodJWT,
		Claims:    map[string]any(claims),
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		id.ExpiresAt = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		id.IssuedAt = iat.Time
	}
	return id, nil
}

var _ Resolver = (*JWTResolver)(nil)
