package domain

import "testing"

func TestSettingsDefaults(t *testing.T) {
	t.Parallel()

	var s Settings
	if got := s.ConcurrencyLimit(); got != DefaultConcurrencyLimit {
		t.Errorf("Expected default limit %d, got %d", DefaultConcurrencyLimit, got)
	}
	if got := s.ModelHint(); got != DefaultModel {
		t.Errorf("Expected default model %s, got %s", DefaultModel, got)
	}

	s.MaxConcurrency = -3
	if got := s.ConcurrencyLimit(); got != DefaultConcurrencyLimit {
		t.Errorf("Expected default limit for negative value, got %d", got)
	}

	s.MaxConcurrency = 2
	if got := s.ConcurrencyLimit(); got != 2 {
		t.Errorf("Expected limit 2, got %d", got)
	}
}

func TestSettingsExclusionList(t *testing.T) {
	t.Parallel()

	s := Settings{NegativeKeywords: "Watermark, logo"}
	got := s.ExclusionList()
	if len(got) != 2 || got[0] != "watermark" || got[1] != "logo" {
		t.Errorf("Unexpected exclusion list %v", got)
	}
}
