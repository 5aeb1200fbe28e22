package static

import (
	"encoding/json"
	"testing"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth"
)

func TestStaticValidator(t *testing.T) {
	raw := json.RawMessage(`{"token":"t-1","subject":"s-1","email":"e@local","role":"ADMIN","scopes":["synth:read"]}`)
	v, err := NewValidatorFromJSON(raw)
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}

	claims, err := v.Validate("t-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "s-1" || claims.Email != "e@local" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.IsAdmin() || !claims.HasScope("synth:read") {
		t.Fatalf("expected admin with scope, got %+v", claims)
	}
	if _, err := v.Validate("wrong"); err == nil {
		t.Fatalf("expected validation error for wrong token")
	}
}

func TestStaticValidator_StringConfig(t *testing.T) {
	v, err := NewValidatorFromJSON(json.RawMessage(`"t-2"`))
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}
	claims, err := v.Validate(" t-2 ")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "static" || claims.Role != auth.RoleUser {
		t.Fatalf("expected default identity, got %+v", claims)
	}
}

func TestStaticValidator_TokenList(t *testing.T) {
	raw := json.RawMessage(`{"tokens":[{"token":"alice-token","subject":"alice"},{"token":"bob-token","subject":"bob"}]}`)
	v, err := NewValidatorFromJSON(raw)
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}
	for token, want := range map[string]string{"alice-token": "alice", "bob-token": "bob"} {
		claims, err := v.Validate(token)
		if err != nil || claims.UserID() != want {
			t.Fatalf("token %s: expected %s, got %+v %v", token, want, claims, err)
		}
	}
}

func TestStaticValidator_RejectsBadConfig(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"tokens":[{"token":" "}]}`, `{"tokens":[{"token":"a"},{"token":"a"}]}`, `{"token":`} {
		if _, err := NewValidatorFromJSON(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for config %q", raw)
		}
	}
}
