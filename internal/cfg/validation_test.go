package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		LogLevel:       "info",
		ServerPort:     8080,
		ServerURL:      "http://localhost:8080",
		MetricsEnabled: true,
		RegistryPath:   "data",
		HTTPTimeout:    5 * time.Second,
		Tolerance:      1e-10,
		Precision:      6,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Settings)
	}{
		{"unknown log level", func(s *Settings) { s.LogLevel = "loud" }},
		{"port too low", func(s *Settings) { s.ServerPort = 80 }},
		{"port too high", func(s *Settings) { s.ServerPort = 70000 }},
		{"empty server url", func(s *Settings) { s.ServerURL = "" }},
		{"empty registry path", func(s *Settings) { s.RegistryPath = "" }},
		{"timeout too short", func(s *Settings) { s.HTTPTimeout = 10 * time.Millisecond }},
		{"timeout too long", func(s *Settings) { s.HTTPTimeout = time.Hour }},
		{"zero tolerance", func(s *Settings) { s.Tolerance = 0 }},
		{"tolerance above one", func(s *Settings) { s.Tolerance = 2 }},
		{"precision zero", func(s *Settings) { s.Precision = 0 }},
		{"precision above float64", func(s *Settings) { s.Precision = 18 }},
		{"empty pmml file", func(s *Settings) { s.PMMLFiles = []string{"a.pmml", ""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.modify(settings)
			if err := validateSettings(settings); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestValidateSettings_LogLevelCaseInsensitive(t *testing.T) {
	settings := createValidSettings()
	settings.LogLevel = "DEBUG"
	if err := validateSettings(settings); err != nil {
		t.Errorf("expected upper case level to pass, got %v", err)
	}
}
