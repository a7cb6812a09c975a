package domain

import "strings"

// Settings defaults
const (
	DefaultConcurrencyLimit = 5
	DefaultModel            = "gemini-2.5-flash"
	DefaultArtist           = "quoctrung"

	// MaxConcurrencyLimit bounds what a user may configure.
	MaxConcurrencyLimit = 10
)

// Settings are the user preferences that shape a batch run and the export.
type Settings struct {
	NegativeKeywords string `json:"negativeKeywords" validate:"max=4000"`
	ArtistName       string `json:"artistName" validate:"max=200"`
	Model            string `json:"model" validate:"max=100"`
	MaxConcurrency   int    `json:"maxConcurrency" validate:"gte=0,lte=10"`
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() Settings {
	return Settings{
		ArtistName:     DefaultArtist,
		Model:          DefaultModel,
		MaxConcurrency: DefaultConcurrencyLimit,
	}
}

// ConcurrencyLimit returns the configured limit, or the default when the
// stored value is absent or non-positive.
func (s Settings) ConcurrencyLimit() int {
	if s.MaxConcurrency <= 0 {
		return DefaultConcurrencyLimit
	}
	return s.MaxConcurrency
}

// ExclusionList returns the negative keywords as lowercase tokens.
func (s Settings) ExclusionList() []string {
	return ParseExclusions(s.NegativeKeywords)
}

// ModelHint returns the model to request, falling back to the default.
func (s Settings) ModelHint() string {
	if m := strings.TrimSpace(s.Model); m != "" {
		return m
	}
	return DefaultModel
}

// Attribution returns the artist name used in the export.
func (s Settings) Attribution() string {
	return strings.TrimSpace(s.ArtistName)
}
