package auth

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type mockValidator struct{}

func (m *mockValidator) Validate(token string) (*Claims, error) {
	if token == "valid" {
		return &Claims{Subject: "test-user"}, nil
	}
	return nil, errors.New("invalid token")
}

func TestRegistry(t *testing.T) {
	RegisterProvider("mock", func(config json.RawMessage) (Validator, error) {
		return &mockValidator{}, nil
	})

	found := false
	for _, p := range ListProviders() {
		if p == "mock" {
			found = true
		}
	}
	if !found {
		t.Error("mock provider not found in registry")
	}

	validator, err := NewValidator(ProviderConfig{Type: "mock", Config: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	claims, err := validator.Validate("valid")
	if err != nil {
		t.Fatalf("expected valid token: %v", err)
	}
	if claims.UserID() != "test-user" {
		t.Errorf("expected user 'test-user', got '%s'", claims.UserID())
	}
	if _, err := validator.Validate("invalid"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestRegistryFactoryError(t *testing.T) {
	RegisterProvider("broken", func(config json.RawMessage) (Validator, error) {
		return nil, errors.New("missing key")
	})
	_, err := NewValidator(ProviderConfig{Type: "broken"})
	if err == nil || !strings.Contains(err.Error(), "init broken auth") {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
}

func TestRegistryRejectsAnonymousClaims(t *testing.T) {
	RegisterProvider("Anonymous", func(config json.RawMessage) (Validator, error) {
		return validatorFunc(func(string) (*Claims, error) { return &Claims{Role: RoleUser}, nil }), nil
	})
	v, err := NewValidator(ProviderConfig{Type: "anonymous"})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if _, err := v.Validate("anything"); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("expected ErrNoSubject, got %v", err)
	}
	if _, err := NewValidator(ProviderConfig{}); err == nil {
		t.Fatal("expected error for empty provider type")
	}
}

type validatorFunc func(string) (*Claims, error)

func (f validatorFunc) Validate(token string) (*Claims, error) { return f(token) }

func TestRegistryUnknownProvider(t *testing.T) {
	if _, err := NewValidator(ProviderConfig{Type: "unknown", Config: json.RawMessage(`{}`)}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestClaimsRoles(t *testing.T) {
	cases := []struct {
		name   string
		claims *Claims
		admin  bool
		user   string
	}{
		{"nil", nil, false, ""},
		{"plain user", &Claims{Subject: "u1", Role: RoleUser}, false, "u1"},
		{"admin role", &Claims{Subject: "ops", Role: "ADMIN"}, true, "ops"},
		{"admin scope", &Claims{Subject: "svc", Scopes: []string{"read", AdminScope}}, true, "svc"},
		{"email fallback", &Claims{Email: "a@b.c"}, false, "a@b.c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.claims.IsAdmin(); got != tc.admin {
				t.Fatalf("IsAdmin = %v, want %v", got, tc.admin)
			}
			if got := tc.claims.UserID(); got != tc.user {
				t.Fatalf("UserID = %q, want %q", got, tc.user)
			}
		})
	}
}
