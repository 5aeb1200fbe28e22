package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/backoff"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/metrics"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/model"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/providers"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/quality"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/ratelimit"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/tracing"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/config"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence"
	_ "github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/memory"
	redispersistence "github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/redis"
	_ "github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/persistence/sqlite"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Logger          *slog.Logger
	Persistence     persistence.PluginPersistence
	Store           providers.ArtifactStore
	Trainer         model.Trainer
	Dispatcher      *services.Dispatcher
	Generations     services.GenerationService
	Notifier        services.NotificationSink
	Validator       auth.Validator
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom bearer token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithTrainer replaces the trainer selected by config
func WithTrainer(trainer model.Trainer) ApplicationOption {
	return func(app *Application) error {
		app.Trainer = trainer
		return nil
	}
}

// WithLogger replaces the stdout logger built from config
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "synth", "env", cfg.Env)
}

func persistenceConfig(cfg *config.Config) (persistence.ProviderConfig, error) {
	var body any
	switch cfg.PersistenceProvider {
	case "redis":
		body = redispersistence.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	case "sqlite":
		body = map[string]any{"path": cfg.SQLitePath}
	default:
		body = map[string]any{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return persistence.ProviderConfig{}, err
	}
	return persistence.ProviderConfig{Type: cfg.PersistenceProvider, Config: raw}, nil
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	app := &Application{Config: cfg}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Logger == nil {
		app.Logger = newLogger(cfg)
		slog.SetDefault(app.Logger)
	}
	logger := app.Logger

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  tracing.DefaultServiceName,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	app.TracingShutdown = shutdown

	pcfg, err := persistenceConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewPersistence(pcfg, persistence.PluginConfig{Logger: logger})
	if err != nil {
		return nil, err
	}
	app.Persistence = store

	// Redis-backed deployments share one token bucket across replicas.
	var rdb *redis.Client
	if rp, ok := store.(*redispersistence.Plugin); ok {
		rdb = rp.Client()
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(rdb)
		metrics.RegisterRedisCollector(rdb, logger)
	} else {
		app.RateLimiter = ratelimit.NewLocalLimiter()
	}

	if app.Validator == nil {
		pc, err := cfg.AuthProviderConfig()
		if err != nil {
			return nil, err
		}
		validator, err := auth.NewValidator(pc)
		if err != nil {
			return nil, err
		}
		app.Validator = validator
	}

	if app.Trainer == nil {
		trainer, err := model.NewTrainer(model.TrainerConfig{
			Provider:       cfg.TrainerProvider,
			URL:            cfg.TrainerURL,
			TimeoutSeconds: cfg.TrainerTimeoutSeconds,
			Seed:           cfg.TrainerSeed,
		})
		if err != nil {
			return nil, err
		}
		app.Trainer = trainer
	}

	app.Store = providers.NewLocalStore(cfg.LocalArtifactsDir, cfg.PublicBaseURL, cfg.ArtifactURLSecret)
	app.Notifier = services.NewNotifierService(store.NotificationStorage(), logger, services.NotifierConfig{
		WebhookURL:  cfg.NotifyWebhookURL,
		Secret:      cfg.WebhookHmacSecret,
		MaxAttempts: cfg.WebhookMaxAttempts,
		Backoff: backoff.Policy{
			Name:        cfg.WebhookBackoffPolicy,
			BaseSeconds: cfg.WebhookBaseBackoffSeconds,
			MaxSeconds:  cfg.WebhookMaxBackoffSeconds,
		},
		Bucket: ratelimit.Bucket(cfg.RateLimit.Webhook),
	}, app.RateLimiter)

	app.Dispatcher = services.NewDispatcher(services.DispatcherConfig{Workers: cfg.Workers, QueueSize: cfg.QueueSize}, logger)
	metrics.RegisterDispatcherCollector(app.Dispatcher)

	runner := services.NewTrialRunner(app.Trainer, quality.NewColumnShapes(), logger)
	app.Generations = services.NewGenerationService(
		store.RequestStorage(),
		store.TrialStorage(),
		app.Store,
		runner,
		services.NewOptimizerService(runner, logger),
		app.Dispatcher,
		app.Notifier,
		logger,
		services.GenerationConfig{
			MinSampleSize:  cfg.MinSampleSize,
			MaxSampleSize:  cfg.MaxSampleSize,
			MaxTrials:      cfg.MaxTrials,
			MaxParallelism: cfg.MaxParallelism,
			DefaultTimeout: time.Duration(cfg.OptimizationTimeoutSeconds) * time.Second,
			DownloadURLTTL: time.Duration(cfg.DownloadURLTTLSeconds) * time.Second,
		},
	)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.TracingMiddleware(tracing.DefaultServiceName), middleware.LoggerMiddleware(logger))
	app.Engine = engine

	return app, nil
}

// Start recovers requests left over by a previous process and starts the
// workers.
func (a *Application) Start(ctx context.Context) error {
	a.Dispatcher.Start(a.Generations.Process)
	requeued, interrupted, err := a.Generations.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	if requeued > 0 || interrupted > 0 {
		a.Logger.Info("recovered requests", "requeued", requeued, "interrupted", interrupted)
	}
	return nil
}

// Shutdown stops the workers, returning unfinished requests to pending, and
// releases the backends.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if w, ok := a.Notifier.(interface{ Wait() }); ok {
		w.Wait()
	}
	if a.TracingShutdown != nil {
		if err := a.TracingShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing: %w", err))
		}
	}
	if err := a.Persistence.Close(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}
	return errors.Join(errs...)
}
