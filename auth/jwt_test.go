package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, key []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func newTestJWTResolver(t *testing.T, config JWTConfig) *JWTResolver {
	t.Helper()
	table, err := NewIdentityTable(map[string]string{"alice": "ops"})
	if err != nil {
		t.Fatal(err)
	}
	return NewJWTResolver(config, NewStaticKeyProvider(testSecret), table)
}

func TestJWTResolver_Supports(t *testing.T) {
	r := newTestJWTResolver(t, JWTConfig{})

	tests := []struct {
		token string
		want  bool
	}{
		{"", false},
		{"tok1", false},
		{"a.b", false},
		{"a.b.c", true},
		{"a.b c.d", false},
	}
	for _, tt := range tests {
		if got := r.Supports(tt.token); got != tt.want {
			t.Errorf("Supports(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestJWTResolver_Resolve(t *testing.T) {
	r := newTestJWTResolver(t, JWTConfig{})
	now := time.Now()
	token := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})

	id, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id.Principal != "alice" {
		t.Errorf("Principal = %q, want alice", id.Principal)
	}
	if id.Role != "ops" {
		t.Errorf("Role = %q, want ops", id.Role)
	}
	if id.Method != AuthMethodJWT {
		t.Errorf("Method = %q, want jwt", id.Method)
	}
	if id.ExpiresAt.IsZero() || id.IssuedAt.IsZero() {
		t.Error("ExpiresAt/IssuedAt should be set from claims")
	}
	if id.IsExpired() {
		t.Error("IsExpired() = true, want false")
	}
}

func TestJWTResolver_Errors(t *testing.T) {
	r := newTestJWTResolver(t, JWTConfig{})
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:    "empty",
			token:   "",
			wantErr: ErrMissingCredentials,
		},
		{
			name: "expired",
			token: signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "alice",
				"exp": now.Add(-time.Hour).Unix(),
			}),
			wantErr: ErrTokenExpired,
		},
		{
			name: "wrong secret",
			token: signToken(t, []byte("other"), jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "alice",
			}),
			wantErr: ErrTokenMalformed,
		},
		{
			name: "wrong algorithm",
			token: signToken(t, testSecret, jwt.SigningMethodHS512, jwt.MapClaims{
				"sub": "alice",
			}),
			wantErr: ErrTokenMalformed,
		},
		{
			name:    "garbage",
			token:   "not.a.jwt",
			wantErr: ErrTokenMalformed,
		},
		{
			name:    "missing sub",
			token:   signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"x": 1}),
			wantErr: ErrTokenMalformed,
		},
		{
			name: "unknown subject",
			token: signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "mallory",
			}),
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTResolver_IssuerAudience(t *testing.T) {
	r := newTestJWTResolver(t, JWTConfig{Issuer: "broker", Audience: "vcenter"})

	good := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "iss": "broker", "aud": "vcenter",
	})
	if _, err := r.Resolve(context.Background(), good); err != nil {
		t.Errorf("Resolve(good) error = %v", err)
	}

	badIss := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "iss": "elsewhere", "aud": "vcenter",
	})
	if _, err := r.Resolve(context.Background(), badIss); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Resolve(bad iss) error = %v, want ErrInvalidCredentials", err)
	}

	badAud := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "iss": "broker", "aud": "other",
	})
	if _, err := r.Resolve(context.Background(), badAud); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Resolve(bad aud) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestStaticKeyProvider_Empty(t *testing.T) {
	p := NewStaticKeyProvider(nil)
	if _, err := p.GetKey(context.Background(), ""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetKey() error = %v, want ErrKeyNotFound", err)
	}
}
