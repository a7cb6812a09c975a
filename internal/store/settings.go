package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/phrazzld/stockmeta/internal/domain"
)

// Persisted settings keys. These are shared by every SettingsStore backend.
const (
	SettingNegativeKeywords = "negativeKeywords"
	SettingArtistName       = "artistName"
	SettingModel            = "model"
	SettingMaxConcurrency   = "maxConcurrency"
)

// SettingsStore persists user preferences.
type SettingsStore interface {
	// Get returns the stored settings. Keys that were never saved take their
	// value from the store's defaults.
	Get(ctx context.Context) (domain.Settings, error)

	// Save replaces every stored setting.
	Save(ctx context.Context, settings domain.Settings) error
}

// SettingsToValues flattens settings into the persisted key/value form.
func SettingsToValues(s domain.Settings) map[string]string {
	return map[string]string{
		SettingNegativeKeywords: s.NegativeKeywords,
		SettingArtistName:       s.ArtistName,
		SettingModel:            s.Model,
		SettingMaxConcurrency:   strconv.Itoa(s.MaxConcurrency),
	}
}

// SettingsFromValues overlays persisted values on defaults. Unknown keys are
// ignored; a malformed concurrency value leaves the default in place.
func SettingsFromValues(values map[string]string, defaults domain.Settings) domain.Settings {
	s := defaults
	if v, ok := values[SettingNegativeKeywords]; ok {
		s.NegativeKeywords = v
	}
	if v, ok := values[SettingArtistName]; ok {
		s.ArtistName = v
	}
	if v, ok := values[SettingModel]; ok {
		s.Model = v
	}
	if v, ok := values[SettingMaxConcurrency]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxConcurrency = n
		}
	}
	return s
}

// MemorySettingsStore keeps settings for the life of the process.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	values   map[string]string
	defaults domain.Settings
}

// NewMemorySettingsStore creates a store that returns defaults until Save
// is called.
func NewMemorySettingsStore(defaults domain.Settings) *MemorySettingsStore {
	return &MemorySettingsStore{
		values:   make(map[string]string),
		defaults: defaults,
	}
}

// Get implements SettingsStore.
func (s *MemorySettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsFromValues(s.values, s.defaults), nil
}

// Save implements SettingsStore.
func (s *MemorySettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = SettingsToValues(settings)
	return nil
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
