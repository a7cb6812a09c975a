package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
	"github.com/phrazzld/stockmeta/internal/store"
)

// PostgresSettingsStore implements store.SettingsStore on the settings
// key/value table.
type PostgresSettingsStore struct {
	db       store.DBTX
	defaults domain.Settings
	logger   *slog.Logger
	now      func() time.Time
}

// NewPostgresSettingsStore creates a settings store on db, which may be a
// connection or a transaction owned by the caller.
func NewPostgresSettingsStore(db store.DBTX, defaults domain.Settings, logger *slog.Logger) *PostgresSettingsStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSettingsStore{
		db:       db,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "settings_store")),
		now:      time.Now,
	}
}

var _ store.SettingsStore = (*PostgresSettingsStore)(nil)

// Get implements store.SettingsStore.
func (s *PostgresSettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to query settings", "error", err)
		return domain.Settings{}, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Settings{}, MapError(err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return domain.Settings{}, MapError(err)
	}

	return store.SettingsFromValues(values, s.defaults), nil
}

// Save implements store.SettingsStore. All keys are written by one
// statement, so a reader never sees a partial update.
func (s *PostgresSettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	values := store.SettingsToValues(settings)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now().UTC()
	placeholders := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*3)
	for i, k := range keys {
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
		args = append(args, k, values[k], now)
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to save settings", "error", err)
		return MapError(err)
	}

	s.logger.DebugContext(ctx, "settings saved", slog.Int("keys", len(keys)))
	return nil
}
