// Package redis provides the Redis backend for the settings store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
	"github.com/phrazzld/stockmeta/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultSettingsKey is the hash that holds the settings.
const DefaultSettingsKey = "stockmeta:settings"

// SettingsStore implements store.SettingsStore on a single Redis hash.
type SettingsStore struct {
	client   goredis.UniversalClient
	key      string
	defaults domain.Settings
	logger   *slog.Logger
}

// NewClient creates a client from a redis:// URL and checks that the
// server answers.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, mapError(err)
	}
	return client, nil
}

// NewSettingsStore creates a settings store on client. An empty key selects
// DefaultSettingsKey.
func NewSettingsStore(client goredis.UniversalClient, key string, defaults domain.Settings, logger *slog.Logger) *SettingsStore {
	if key == "" {
		key = DefaultSettingsKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		client:   client,
		key:      key,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "settings_store")),
	}
}

var _ store.SettingsStore = (*SettingsStore)(nil)

// Get implements store.SettingsStore.
func (s *SettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to read settings", "error", err)
		return domain.Settings{}, mapError(err)
	}
	return store.SettingsFromValues(values, s.defaults), nil
}

// Save implements store.SettingsStore. The hash is replaced in one
// MULTI/EXEC transaction.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	values := store.SettingsToValues(settings)
	fields := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		fields = append(fields, k, v)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	pipe.HSet(ctx, s.key, fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to save settings", "error", err)
		return mapError(err)
	}

	s.logger.DebugContext(ctx, "settings saved", slog.Int("keys", len(values)))
	return nil
}

// mapError maps connectivity failures to store.ErrUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, goredis.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return err
}
