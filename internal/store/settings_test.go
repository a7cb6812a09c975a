package store

import (
	"context"
	"testing"

	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySettingsStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemorySettingsStore(domain.DefaultSettings())

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)

	want := domain.Settings{
		NegativeKeywords: "logo, watermark",
		ArtistName:       "jane",
		Model:            "gemini-3-pro-preview",
		MaxConcurrency:   3,
	}
	require.NoError(t, s.Save(ctx, want))

	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSettingsFromValues(t *testing.T) {
	t.Parallel()

	defaults := domain.DefaultSettings()

	got := SettingsFromValues(map[string]string{
		SettingArtistName:     "",
		SettingMaxConcurrency: "not-a-number",
		"unknown":             "ignored",
	}, defaults)

	assert.Equal(t, "", got.ArtistName, "a saved empty value overrides the default")
	assert.Equal(t, defaults.MaxConcurrency, got.MaxConcurrency)
	assert.Equal(t, defaults.Model, got.Model)

	roundTrip := SettingsFromValues(SettingsToValues(domain.Settings{MaxConcurrency: 7}), defaults)
	assert.Equal(t, 7, roundTrip.MaxConcurrency)
}
