package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("HAFIZ_TEST_KEY", "sk-from-env")

	path := filepath.Join(t.TempDir(), "hafiz.yaml")
	body := `
model:
  provider: openrouter
  api_key: ${HAFIZ_TEST_KEY}
  name: google/gemini-2.5-flash
mission:
  enabled: true
  subordinate: avyna
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Model.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want sk-from-env", cfg.Model.APIKey)
	}
	if cfg.Model.Provider != "openrouter" {
		t.Errorf("provider = %q, want openrouter", cfg.Model.Provider)
	}
	if cfg.Mission.Subordinate != "avyna" {
		t.Errorf("subordinate = %q, want avyna", cfg.Mission.Subordinate)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hafiz.yaml")
	if err := os.WriteFile(path, []byte("model:\n  api_key: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("max_iterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxHistory != 20 {
		t.Errorf("max_history = %d, want 20", cfg.Agent.MaxHistory)
	}
	if got := cfg.HistoryTTL(); got != 30*time.Minute {
		t.Errorf("HistoryTTL = %v, want 30m", got)
	}
	if got := cfg.PollInterval(); got != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", got)
	}
	if cfg.Agent.RecallK != 3 {
		t.Errorf("recall_k = %d, want 3", cfg.Agent.RecallK)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hafiz.yaml")
	if err := os.WriteFile(path, []byte("model:\n  provider: bard\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown provider, got nil")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
