package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth"
)

// identity is one accepted bearer token and the user it stands for.
type identity struct {
	Token   string         `json:"token"`
	Subject string         `json:"subject,omitempty"`
	Email   string         `json:"email,omitempty"`
	Role    string         `json:"role,omitempty"`
	Scopes  []string       `json:"scopes,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
}

type validatorConfig struct {
	identity
	Tokens []identity `json:"tokens,omitempty"`
}

type validator struct {
	identities []identity
}

// NewValidatorFromJSON accepts a JSON string (one token), an object with a
// single token, or an object with a "tokens" list for several dev users.
func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg validatorConfig
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Token); err != nil {
			return nil, fmt.Errorf("static auth: invalid config: %w", err)
		}
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("static auth: invalid config: %w", err)
	}

	all := cfg.Tokens
	if strings.TrimSpace(cfg.Token) != "" {
		all = append([]identity{cfg.identity}, all...)
	}
	if len(all) == 0 {
		return nil, errors.New("static auth: token is required")
	}

	seen := make(map[string]bool, len(all))
	for i := range all {
		id := &all[i]
		id.Token = strings.TrimSpace(id.Token)
		if id.Token == "" {
			return nil, fmt.Errorf("static auth: token %d is empty", i)
		}
		if seen[id.Token] {
			return nil, fmt.Errorf("static auth: duplicate token for %q", id.Subject)
		}
		seen[id.Token] = true
		id.Subject = strings.TrimSpace(id.Subject)
		if id.Subject == "" {
			id.Subject = "static"
		}
		id.Role = strings.ToLower(strings.TrimSpace(id.Role))
		if id.Role == "" {
			id.Role = auth.RoleUser
		}
		if id.Raw == nil {
			id.Raw = map[string]any{}
		}
	}
	return &validator{identities: all}, nil
}

func (v *validator) Validate(token string) (*auth.Claims, error) {
	token = strings.TrimSpace(token)
	for _, id := range v.identities {
		if subtle.ConstantTimeCompare([]byte(token), []byte(id.Token)) == 1 {
			return &auth.Claims{
				Subject: id.Subject,
				Email:   id.Email,
				Role:    id.Role,
				Scopes:  id.Scopes,
				Raw:     id.Raw,
			}, nil
		}
	}
	return nil, errors.New("invalid token")
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}
