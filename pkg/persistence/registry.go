package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProviderConfig selects a registered backend and carries its raw settings.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// PluginConfig is what a factory receives.
type PluginConfig struct {
	Config json.RawMessage

	// Logger receives plugin diagnostics; slog.Default() when nil
	Logger *slog.Logger

	// StartupTimeout bounds the health check run right after the plugin is
	// built. Zero means five seconds.
	StartupTimeout time.Duration
}

// PluginFactory builds a backend from its raw settings.
type PluginFactory func(config PluginConfig) (PluginPersistence, error)

var (
	registry = make(map[string]PluginFactory)
	mu       sync.RWMutex
)

// RegisterProvider makes a backend available under name. Plugins call it
// from init; a later registration under the same name replaces the earlier
// one.
func RegisterProvider(name string, factory PluginFactory) {
	if factory == nil {
		panic("persistence: nil factory for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(name)] = factory
}

// NewPersistence builds the configured backend and checks that it answers
// before handing it out. A backend that fails the check is closed.
func NewPersistence(providerConfig ProviderConfig, pluginConfig PluginConfig) (PluginPersistence, error) {
	name := normalize(providerConfig.Type)
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown persistence provider %q (registered: %s)", providerConfig.Type, strings.Join(ListProviders(), ", "))
	}

	pluginConfig.Config = providerConfig.Config
	if len(pluginConfig.Config) == 0 {
		pluginConfig.Config = json.RawMessage("{}")
	}
	if pluginConfig.Logger == nil {
		pluginConfig.Logger = slog.Default()
	}
	timeout := pluginConfig.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	p, err := factory(pluginConfig)
	if err != nil {
		return nil, fmt.Errorf("init %s persistence: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Health(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%s persistence unhealthy: %w", name, err)
	}
	pluginConfig.Logger.Info("persistence ready", "provider", name)
	return p, nil
}

// ListProviders returns registered backend names, sorted.
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

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
