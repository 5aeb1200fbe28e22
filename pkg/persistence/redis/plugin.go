package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/repository"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client           *redis.Client
	requestRepo      repository.RequestRepository
	trialRepo        repository.TrialRepository
	notificationRepo repository.NotificationRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis persistence: addr is required")
	}

	client := providers.NewRedisProvider(providers.RedisOptions{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewPluginWithClient(client), nil
}

// NewPluginWithClient wraps an existing client, sharing it with other
// redis-backed components.
func NewPluginWithClient(client *redis.Client) *Plugin {
	return &Plugin{
		client:           client,
		requestRepo:      repository.NewRequestRepository(client),
		trialRepo:        repository.NewTrialRepository(client),
		notificationRepo: repository.NewNotificationRepository(client),
	}
}

// Client exposes the underlying connection for collectors.
func (p *Plugin) Client() *redis.Client {
	return p.client
}

// RequestStorage returns the request storage implementation
func (p *Plugin) RequestStorage() persistence.RequestStorage {
	return &requestStorageAdapter{repo: p.requestRepo}
}

// TrialStorage returns the trial storage implementation
func (p *Plugin) TrialStorage() persistence.TrialStorage {
	return &trialStorageAdapter{repo: p.trialRepo}
}

// NotificationStorage returns the notification storage implementation
func (p *Plugin) NotificationStorage() persistence.NotificationStorage {
	return &notificationStorageAdapter{repo: p.notificationRepo}
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return providers.PingRedis(ctx, p.client)
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
