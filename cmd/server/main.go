package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/app"
	_ "github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth/jwks"   // JWKS bearer tokens
	_ "github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/auth/static" // static tokens for dev
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/config"
)

func main() {
	if err := run(os.Getenv("SYNTH_CONFIG_PATH")); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.LoadConfigOptional(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	app.SetupMappings(application)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recovery re-enqueues pending requests, so workers start before the
	// listener accepts new submissions.
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           application.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		application.Logger.Info("listening", "addr", srv.Addr, "persistence", cfg.PersistenceProvider, "trainer", cfg.TrainerProvider)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = application.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		application.Logger.Info("shutting down", "timeoutSeconds", cfg.ShutdownTimeoutSeconds)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		application.Logger.Warn("http shutdown", "err", err)
	}
	// Generations still running go back to pending and resume on the next start.
	return application.Shutdown(shutdownCtx)
}
