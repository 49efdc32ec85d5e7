package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	path := writeConfig(t, "youtube:\n  api_key: test-key\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	p := cfg.Pipeline
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"TrendingLimit", p.TrendingLimit, 100},
		{"TrendingLookback", p.TrendingLookback, 24 * time.Hour},
		{"MaxChannels", p.MaxChannels, 10},
		{"UploadsPerChannel", p.UploadsPerChannel, 3},
		{"MaxCandidates", p.MaxCandidates, 50},
		{"MinVideos", p.MinVideos, 3},
		{"BatchSize", p.BatchSize, 50},
		{"SupplyWindow", p.SupplyWindow, 30 * 24 * time.Hour},
		{"ScorePeriod", p.ScorePeriod, "daily"},
		{"DatabasePath", cfg.Database.Path, "data/trends.db"},
		{"SubjectPrefix", cfg.NATS.SubjectPrefix, "trends.stage"},
		{"HealthPort", cfg.Monitoring.HealthPort, 8080},
		{"APIRateLimit", cfg.Monitoring.APIRateLimit, 120},
		{"LogLevel", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if len(p.Periods) != 1 || p.Periods[0] != "daily" {
		t.Errorf("Periods = %v, want [daily]", p.Periods)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  max_candidates: 20
  trending_lookback: 12h
  tracked_channels: [UC1, UC2]
  periods: [daily, weekly]
schedule:
  collect: "0 */30 * * * *"
  score: "0 6 * * *"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Pipeline.MaxCandidates != 20 {
		t.Errorf("MaxCandidates = %d, want 20", cfg.Pipeline.MaxCandidates)
	}
	if cfg.Pipeline.TrendingLookback != 12*time.Hour {
		t.Errorf("TrendingLookback = %v, want 12h", cfg.Pipeline.TrendingLookback)
	}
	if len(cfg.Pipeline.TrackedChannels) != 2 {
		t.Errorf("TrackedChannels = %v, want 2 entries", cfg.Pipeline.TrackedChannels)
	}
}

func TestLoadFileExplicitZeroDisables(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  trending_limit: 0
  max_channels: 0
monitoring:
  api_rate_limit: 0
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Pipeline.TrendingLimit != 0 {
		t.Errorf("TrendingLimit = %d, want 0", cfg.Pipeline.TrendingLimit)
	}
	if cfg.Pipeline.MaxChannels != 0 {
		t.Errorf("MaxChannels = %d, want 0", cfg.Pipeline.MaxChannels)
	}
	if cfg.Monitoring.APIRateLimit != 0 {
		t.Errorf("APIRateLimit = %d, want 0", cfg.Monitoring.APIRateLimit)
	}
	// Keys left out still get their defaults.
	if cfg.Pipeline.UploadsPerChannel != 3 {
		t.Errorf("UploadsPerChannel = %d, want 3", cfg.Pipeline.UploadsPerChannel)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "from-env")
	t.Setenv("DATABASE_PATH", "/tmp/env.db")
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.YouTube.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.YouTube.APIKey)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want /tmp/env.db", cfg.Database.Path)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Bad batch size", "pipeline:\n  batch_size: 51\n"},
		{"Unknown period", "pipeline:\n  periods: [hourly]\n"},
		{"Unknown score period", "pipeline:\n  score_period: yearly\n"},
		{"Bad cron", "schedule:\n  aggregate: \"not a cron\"\n"},
		{"Negative cap", "pipeline:\n  max_channels: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidateCollector(t *testing.T) {
	tests := []struct {
		name    string
		youtube YouTubeConfig
		wantErr bool
	}{
		{"API key", YouTubeConfig{APIKey: "k"}, false},
		{"OAuth pair", YouTubeConfig{ClientID: "id", ClientSecret: "secret"}, false},
		{"Missing secret", YouTubeConfig{ClientID: "id"}, true},
		{"Nothing", YouTubeConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{YouTube: tt.youtube}
			err := cfg.ValidateCollector()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCollector() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestEmailEnabled(t *testing.T) {
	if (EmailConfig{}).Enabled() {
		t.Error("empty email config should be disabled")
	}
	if !(EmailConfig{SMTPServer: "smtp.test.com", ToEmail: "to@test.com"}).Enabled() {
		t.Error("email config with server and recipient should be enabled")
	}
}
