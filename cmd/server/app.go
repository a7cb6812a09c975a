package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/platform/backend"
	"github.com/phrazzld/stockmeta/internal/platform/gemini"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/service/auth"
	"github.com/phrazzld/stockmeta/internal/store"
)

// application holds the shared dependencies of the server so they can be
// wired once and released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	emitter  *events.InMemoryEventEmitter
	previews *store.PreviewRegistry
	jobs     *store.JobRecordStore
	settings store.SettingsStore

	// settingsCloser releases the settings backend connection.
	settingsCloser io.Closer

	generator    generation.Generator
	batchService *service.BatchService

	// jwtService is nil when authentication is disabled.
	jwtService auth.JWTService
}

// newApplication wires every component from cfg.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	generator, err := gemini.NewGeminiGenerator(ctx, logger.With("component", "llm_generator"), cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	return newApplicationWithGenerator(ctx, cfg, logger, generator)
}

func newApplicationWithGenerator(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	generator generation.Generator,
) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		generator: generator,
	}

	if cfg.Auth.Enabled() {
		jwtService, err := auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		app.jwtService = jwtService
		logger.Info("API authentication enabled",
			"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	}

	settings, closer, err := backend.OpenSettingsStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}
	app.settings = settings
	app.settingsCloser = closer

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.previews = store.NewPreviewRegistry()
	app.jobs = store.NewJobRecordStore(app.previews, app.emitter, logger)

	app.batchService, err = service.NewBatchService(
		app.jobs,
		app.previews,
		app.settings,
		app.generator,
		app.emitter,
		service.BatchServiceConfig{JobTimeout: cfg.Batch.JobTimeout},
		logger,
	)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("failed to create batch service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx ends or a shutdown signal arrives.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops outstanding work and releases the settings backend.
func (app *application) cleanup(ctx context.Context) {
	if app.batchService != nil {
		if err := app.batchService.Close(ctx); err != nil {
			app.logger.Error("Error stopping batch service", "error", err)
		}
	}
	if app.settingsCloser != nil {
		if err := app.settingsCloser.Close(); err != nil {
			app.logger.Error("Error closing settings store", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}

func (app *application) shutdownTimeout() time.Duration {
	if s := app.config.Server.ShutdownTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return 10 * time.Second
}
