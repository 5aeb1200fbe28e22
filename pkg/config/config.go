package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/backoff"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth"
)

const devToken = "dev-token"

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	// Submit limits POST /generations per bearer token.
	Submit RateLimitBucketConfig `yaml:"submit"`
	// Webhook limits deliveries per destination URL.
	Webhook RateLimitBucketConfig `yaml:"webhook"`
}

type Config struct {
	Port          int    `yaml:"port"`
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	PublicBaseURL string `yaml:"publicBaseUrl"`

	PersistenceProvider string `yaml:"persistenceProvider"`
	RedisAddr           string `yaml:"redisAddr"`
	RedisPassword       string `yaml:"redisPassword"`
	RedisDB             int    `yaml:"redisDb"`
	SQLitePath          string `yaml:"sqlitePath"`

	LocalArtifactsDir     string `yaml:"localArtifactsDir"`
	ArtifactURLSecret     string `yaml:"artifactUrlSecret"`
	DownloadURLTTLSeconds int    `yaml:"downloadUrlTtlSeconds"`
	MaxUploadBytes        int64  `yaml:"maxUploadBytes"`

	TrainerProvider       string `yaml:"trainerProvider"`
	TrainerURL            string `yaml:"trainerUrl"`
	TrainerTimeoutSeconds int    `yaml:"trainerTimeoutSeconds"`
	TrainerSeed           int64  `yaml:"trainerSeed"`

	Workers                    int `yaml:"workers"`
	QueueSize                  int `yaml:"queueSize"`
	MinSampleSize              int `yaml:"minSampleSize"`
	MaxSampleSize              int `yaml:"maxSampleSize"`
	MaxTrials                  int `yaml:"maxTrials"`
	MaxParallelism             int `yaml:"maxParallelism"`
	OptimizationTimeoutSeconds int `yaml:"optimizationTimeoutSeconds"`
	ShutdownTimeoutSeconds     int `yaml:"shutdownTimeoutSeconds"`

	NotifyWebhookURL          string `yaml:"notifyWebhookUrl"`
	WebhookHmacSecret         string `yaml:"webhookHmacSecret"`
	WebhookMaxAttempts        int    `yaml:"webhookMaxAttempts"`
	WebhookBackoffPolicy      string `yaml:"webhookBackoffPolicy"`
	WebhookBaseBackoffSeconds int    `yaml:"webhookBaseBackoffSeconds"`
	WebhookMaxBackoffSeconds  int    `yaml:"webhookMaxBackoffSeconds"`

	// AuthProvider selects a pkg/auth validator. When empty, jwks is used if
	// IdentityJwksURL is set and the static dev token otherwise.
	AuthProvider            string         `yaml:"authProvider"`
	AuthConfig              map[string]any `yaml:"authConfig"`
	IdentityJwksURL         string         `yaml:"identityJwksUrl"`
	IdentityIssuer          string         `yaml:"identityIssuer"`
	IdentityAudience        string         `yaml:"identityAudience"`
	AllowedClockSkewSeconds int            `yaml:"allowedClockSkewSeconds"`
	DevToken                string         `yaml:"devToken"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`

	TracingEnabled     bool    `yaml:"tracingEnabled"`
	OTLPEndpoint       string  `yaml:"otlpEndpoint"`
	OTLPInsecure       bool    `yaml:"otlpInsecure"`
	TracingSampleRatio float64 `yaml:"tracingSampleRatio"`
}

// LoadConfig reads filePath, applies environment overrides and defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.finish()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but falls back to environment
// and defaults when filePath is empty or missing.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) != "" {
		c, err := LoadConfig(filePath)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	c.finish()
	return &c, nil
}

func (c *Config) finish() {
	c.applyEnv()
	c.applyDefaults()
	log.Printf("Synth Config: {Port:%d Env:%s Persistence:%s Trainer:%s Workers:%d Queue:%d}\n",
		c.Port, c.Env, c.PersistenceProvider, c.TrainerProvider, c.Workers, c.QueueSize)
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envString("ENV", &c.Env)
	envString("LOG_LEVEL", &c.LogLevel)
	envString("LOG_FORMAT", &c.LogFormat)
	envString("PUBLIC_BASE_URL", &c.PublicBaseURL)

	envString("PERSISTENCE_PROVIDER", &c.PersistenceProvider)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envInt("REDIS_DB", &c.RedisDB)
	envString("SQLITE_PATH", &c.SQLitePath)

	envString("LOCAL_ARTIFACTS_DIR", &c.LocalArtifactsDir)
	envString("ARTIFACT_URL_SECRET", &c.ArtifactURLSecret)
	envInt("DOWNLOAD_URL_TTL_SECONDS", &c.DownloadURLTTLSeconds)
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}

	envString("TRAINER_PROVIDER", &c.TrainerProvider)
	envString("TRAINER_URL", &c.TrainerURL)
	envInt("TRAINER_TIMEOUT_SECONDS", &c.TrainerTimeoutSeconds)

	envInt("WORKERS", &c.Workers)
	envInt("QUEUE_SIZE", &c.QueueSize)
	envInt("MAX_TRIALS", &c.MaxTrials)
	envInt("MAX_PARALLELISM", &c.MaxParallelism)
	envInt("OPTIMIZATION_TIMEOUT_SECONDS", &c.OptimizationTimeoutSeconds)

	envString("NOTIFY_WEBHOOK_URL", &c.NotifyWebhookURL)
	envString("WEBHOOK_HMAC_SECRET", &c.WebhookHmacSecret)
	envInt("WEBHOOK_MAX_ATTEMPTS", &c.WebhookMaxAttempts)

	envString("AUTH_PROVIDER", &c.AuthProvider)
	envString("IDENTITY_JWKS_URL", &c.IdentityJwksURL)
	envString("IDENTITY_ISSUER", &c.IdentityIssuer)
	envString("IDENTITY_AUDIENCE", &c.IdentityAudience)
	envInt("ALLOWED_CLOCK_SKEW_SECONDS", &c.AllowedClockSkewSeconds)
	envString("DEV_TOKEN", &c.DevToken)

	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = v == "1" || strings.EqualFold(v, "true")
	}
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		c.OTLPInsecure = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TracingSampleRatio = f
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.PersistenceProvider == "" {
		c.PersistenceProvider = "memory"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "synth.db"
	}
	if c.LocalArtifactsDir == "" {
		c.LocalArtifactsDir = "/tmp/synth-artifacts"
	}
	if c.ArtifactURLSecret == "" && c.Env == "dev" {
		log.Println("Warning: artifactUrlSecret not set (dev only)")
		c.ArtifactURLSecret = "dev-artifact-secret"
	}
	if c.DownloadURLTTLSeconds <= 0 {
		c.DownloadURLTTLSeconds = 900
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 64 << 20
	}
	if c.TrainerProvider == "" {
		c.TrainerProvider = "local"
	}
	if c.TrainerTimeoutSeconds <= 0 {
		c.TrainerTimeoutSeconds = 1800
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.MinSampleSize <= 0 {
		c.MinSampleSize = 100
	}
	if c.MaxSampleSize <= 0 {
		c.MaxSampleSize = 100000
	}
	if c.MaxTrials <= 0 {
		c.MaxTrials = 50
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = 4
	}
	if c.OptimizationTimeoutSeconds <= 0 {
		c.OptimizationTimeoutSeconds = 3600
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		c.ShutdownTimeoutSeconds = 30
	}
	if c.WebhookMaxAttempts <= 0 {
		c.WebhookMaxAttempts = 5
	}
	if c.WebhookBackoffPolicy == "" {
		c.WebhookBackoffPolicy = "exp_full_jitter"
	}
	if c.WebhookBaseBackoffSeconds <= 0 {
		c.WebhookBaseBackoffSeconds = 2
	}
	if c.WebhookMaxBackoffSeconds <= 0 {
		c.WebhookMaxBackoffSeconds = 60
	}
	if c.IdentityAudience == "" {
		c.IdentityAudience = "synth-api"
	}
	if c.AllowedClockSkewSeconds <= 0 {
		c.AllowedClockSkewSeconds = 60
	}
	if c.TracingSampleRatio <= 0 {
		c.TracingSampleRatio = 1
	}
}

// AuthProviderConfig resolves the validator configuration for the API.
func (c *Config) AuthProviderConfig() (auth.ProviderConfig, error) {
	provider := strings.TrimSpace(c.AuthProvider)
	settings := c.AuthConfig
	if provider == "" {
		if c.IdentityJwksURL != "" {
			provider = "jwks"
		} else {
			provider = "static"
		}
	}
	if settings == nil {
		switch provider {
		case "jwks":
			settings = map[string]any{
				"jwksUrl":          c.IdentityJwksURL,
				"issuer":           c.IdentityIssuer,
				"audience":         c.IdentityAudience,
				"clockSkewSeconds": c.AllowedClockSkewSeconds,
			}
		case "static":
			token := c.DevToken
			if token == "" {
				token = devToken
			}
			settings = map[string]any{"token": token, "subject": "dev-user", "role": "admin"}
		}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return auth.ProviderConfig{}, fmt.Errorf("encode auth config: %w", err)
	}
	return auth.ProviderConfig{Type: provider, Config: raw}, nil
}

func (c *Config) Validate() error {
	var errs []string
	dev := strings.EqualFold(strings.TrimSpace(c.Env), "dev")

	switch c.PersistenceProvider {
	case "memory":
		if !dev {
			errs = append(errs, "persistenceProvider memory is only allowed in dev")
		}
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, "redisAddr is required for the redis provider")
		}
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, "sqlitePath is required for the sqlite provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown persistenceProvider %q", c.PersistenceProvider))
	}

	switch c.TrainerProvider {
	case "local":
	case "http":
		if !validHTTPURL(c.TrainerURL) {
			errs = append(errs, "trainerUrl must be a valid http(s) URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown trainerProvider %q", c.TrainerProvider))
	}

	if !validHTTPURL(c.PublicBaseURL) {
		errs = append(errs, "publicBaseUrl must be a valid http(s) URL")
	}
	if strings.TrimSpace(c.ArtifactURLSecret) == "" {
		errs = append(errs, "artifactUrlSecret is required")
	}
	if c.MinSampleSize > c.MaxSampleSize {
		errs = append(errs, "minSampleSize must not exceed maxSampleSize")
	}

	if c.NotifyWebhookURL != "" {
		if !validHTTPURL(c.NotifyWebhookURL) {
			errs = append(errs, "notifyWebhookUrl must be a valid http(s) URL")
		}
		if strings.TrimSpace(c.WebhookHmacSecret) == "" && !dev {
			errs = append(errs, "webhookHmacSecret is required when notifyWebhookUrl is set")
		}
	}
	if err := (backoff.Policy{Name: c.WebhookBackoffPolicy}).Validate(); err != nil {
		errs = append(errs, "webhookBackoffPolicy: "+err.Error())
	}

	pc, err := c.AuthProviderConfig()
	if err != nil {
		errs = append(errs, err.Error())
	} else if pc.Type == "static" && !dev && (c.DevToken == "" || c.DevToken == devToken) {
		errs = append(errs, "the default dev token is not allowed outside dev")
	}
	if pc.Type == "jwks" && c.AuthConfig == nil {
		if !validHTTPURL(c.IdentityJwksURL) {
			errs = append(errs, "identityJwksUrl must be a valid http(s) URL")
		}
		if c.IdentityIssuer == "" {
			errs = append(errs, "identityIssuer is required for jwks auth")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
