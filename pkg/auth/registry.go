package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderConfig selects a registered provider and carries its raw settings.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// ValidatorFactory builds a validator from a provider's raw settings.
type ValidatorFactory func(config json.RawMessage) (Validator, error)

// ErrNoSubject is returned for tokens that validate but name no user.
var ErrNoSubject = errors.New("token has no subject")

var (
	registry = make(map[string]ValidatorFactory)
	mu       sync.RWMutex
)

// RegisterProvider makes a provider available under name. Providers call it
// from init.
func RegisterProvider(name string, factory ValidatorFactory) {
	if factory == nil {
		panic("auth: nil factory for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(strings.TrimSpace(name))] = factory
}

// NewValidator builds the configured provider. Every generation, dataset and
// notification is owned by the token's user, so the returned validator
// refuses tokens that carry neither a subject nor an email.
func NewValidator(providerConfig ProviderConfig) (Validator, error) {
	name := strings.ToLower(strings.TrimSpace(providerConfig.Type))
	if name == "" {
		return nil, errors.New("auth provider type is required")
	}
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown auth provider %q (registered: %s)", name, strings.Join(ListProviders(), ", "))
	}
	v, err := factory(providerConfig.Config)
	if err != nil {
		return nil, fmt.Errorf("init %s auth: %w", name, err)
	}
	return ownerValidator{v}, nil
}

type ownerValidator struct{ Validator }

func (o ownerValidator) Validate(token string) (*Claims, error) {
	claims, err := o.Validator.Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrNoSubject
	}
	return claims, nil
}

// ListProviders returns registered provider names, sorted.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
