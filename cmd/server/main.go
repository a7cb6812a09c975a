// Package main implements the entry point for the stockmeta server, which
// accepts batches of stock images, generates listing metadata for them with
// Gemini and exports the results as CSV.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "stockmeta: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// loadAppConfig loads the configuration and logs a summary of it.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"settings_backend", cfg.Settings.Backend)
	if cfg.LLM.GeminiAPIKey == "" {
		slog.Warn("Gemini API key not configured; jobs will fail until it is set")
	}
	if cfg.Auth.Enabled() {
		slog.Debug("Auth configuration", "jwt_secret_present", true)
	}
	return cfg, nil
}
