package jwks

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.fetches.Add(1)
		n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
		e := base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x00, 0x01})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{"kty": "RSA", "kid": "test-key-1", "n": n, "e": e}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) validator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(auth.Config{
		JwksURL:   f.server.URL,
		Issuer:    "test-issuer",
		Audience:  "synth-api",
		ClockSkew: time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func validClaims() map[string]any {
	now := time.Now().Unix()
	return map[string]any{
		"iss":   "test-issuer",
		"aud":   "synth-api",
		"sub":   "user-42",
		"exp":   now + 3600,
		"iat":   now,
		"email": "test@example.com",
		"scope": "read write",
	}
}

func TestJWKSValidator(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.validator(t)

	claims, err := v.Validate(signToken(t, f.key, "test-key-1", validClaims()))
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Subject != "user-42" || claims.Email != "test@example.com" || claims.Issuer != "test-issuer" {
		t.Errorf("unexpected identity %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "synth-api" {
		t.Errorf("expected audience [synth-api], got %v", claims.Audience)
	}
	if len(claims.Scopes) != 2 || claims.Scopes[1] != "write" {
		t.Errorf("expected scopes [read write], got %v", claims.Scopes)
	}
	if claims.Role != auth.RoleUser || claims.IsAdmin() {
		t.Errorf("tokens without a role claim are plain users, got %q", claims.Role)
	}
	if claims.ExpiresAt.IsZero() || claims.IssuedAt.IsZero() {
		t.Errorf("expected exp and iat to be parsed")
	}

	// A second token is validated from the key cache.
	admin := validClaims()
	admin["role"] = "Admin"
	claims, err = v.Validate(signToken(t, f.key, "test-key-1", admin))
	if err != nil || !claims.IsAdmin() {
		t.Fatalf("expected admin claims, got %+v %v", claims, err)
	}
	if f.fetches.Load() != 1 {
		t.Errorf("expected one JWKS fetch, got %d", f.fetches.Load())
	}
}

func TestJWKSValidatorRejects(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.validator(t)
	now := time.Now().Unix()

	cases := []struct {
		name   string
		kid    string
		mutate func(c map[string]any)
	}{
		{"wrong issuer", "test-key-1", func(c map[string]any) { c["iss"] = "other" }},
		{"wrong audience", "test-key-1", func(c map[string]any) { c["aud"] = "other-api" }},
		{"expired", "test-key-1", func(c map[string]any) { c["exp"] = now - 3600 }},
		{"missing exp", "test-key-1", func(c map[string]any) { delete(c, "exp") }},
		{"unknown kid", "rotated-key", func(c map[string]any) {}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validClaims()
			tc.mutate(c)
			if _, err := v.Validate(signToken(t, f.key, tc.kid, c)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if _, err := v.Validate("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestJWKSRegisteredProvider(t *testing.T) {
	f := newJWKSFixture(t)
	raw, _ := json.Marshal(map[string]any{
		"jwksUrl":          f.server.URL,
		"issuer":           "test-issuer",
		"audience":         "synth-api",
		"clockSkewSeconds": 30,
	})
	v, err := auth.NewValidator(auth.ProviderConfig{Type: "jwks", Config: raw})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if _, err := v.Validate(signToken(t, f.key, "test-key-1", validClaims())); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, err := auth.NewValidator(auth.ProviderConfig{Type: "jwks", Config: json.RawMessage(`{"issuer":"x"}`)}); err == nil {
		t.Fatal("expected error without jwksUrl")
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()
	header := map[string]any{"alg": "RS256", "typ": "JWT", "kid": kid}
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signingInput := enc(header) + "." + enc(claims)
	hashed := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}
