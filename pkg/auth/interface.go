package auth

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	// AdminScope grants admin access to tokens without a role claim.
	AdminScope = "synth:admin"
)

// Claims represents authentication token claims
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Scopes    []string
	Role      string
	Raw       map[string]interface{}
}

// HasScope checks if the claims contain a specific scope
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the caller may act on every user's requests.
func (c *Claims) IsAdmin() bool {
	if c == nil {
		return false
	}
	return strings.EqualFold(c.Role, RoleAdmin) || c.HasScope(AdminScope)
}

// UserID is the identity requests are owned by.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	if s := strings.TrimSpace(c.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(c.Email)
}

// Validator validates authentication tokens
type Validator interface {
	Validate(token string) (*Claims, error)
}

// Config contains JWKS validator configuration
type Config struct {
	JwksURL     string
	Issuer      string
	Audience    string
	ClockSkew   time.Duration
	HTTPTimeout time.Duration
	// CacheTTL bounds how long fetched keys are trusted.
	CacheTTL time.Duration
}
