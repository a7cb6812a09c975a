// Package backend opens the settings store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/platform/postgres"
	"github.com/phrazzld/stockmeta/internal/platform/redis"
	"github.com/phrazzld/stockmeta/internal/store"
)

// Settings backend names accepted in settings.backend.
const (
	Memory   = "memory"
	Postgres = "postgres"
	Redis    = "redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DefaultSettings derives the settings used before the user saves any.
func DefaultSettings(cfg *config.Config) domain.Settings {
	defaults := domain.DefaultSettings()
	if artist := strings.TrimSpace(cfg.Settings.DefaultArtist); artist != "" {
		defaults.ArtistName = artist
	}
	if model := strings.TrimSpace(cfg.LLM.ModelName); model != "" {
		defaults.Model = model
	}
	if cfg.Batch.MaxConcurrency > 0 {
		defaults.MaxConcurrency = cfg.Batch.MaxConcurrency
	}
	defaults.NegativeKeywords = strings.TrimSpace(cfg.Settings.DefaultNegativeKeywords)
	return defaults
}

// OpenSettingsStore connects the configured backend. The returned closer
// releases its connection; it is never nil on success.
func OpenSettingsStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.SettingsStore, io.Closer, error) {
	defaults := DefaultSettings(cfg)

	switch cfg.Settings.Backend {
	case "", Memory:
		logger.Info("using in-memory settings store")
		return store.NewMemorySettingsStore(defaults), nopCloser{}, nil

	case Postgres:
		db, err := postgres.Open(ctx, cfg.Settings.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("using postgres settings store")
		return postgres.NewPostgresSettingsStore(db, defaults, logger), db, nil

	case Redis:
		client, err := redis.NewClient(ctx, cfg.Settings.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis settings store", "key", redis.DefaultSettingsKey)
		return redis.NewSettingsStore(client, "", defaults, logger), client, nil

	default:
		return nil, nil, fmt.Errorf("unknown settings backend %q", cfg.Settings.Backend)
	}
}
