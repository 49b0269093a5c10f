package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hafizlabs/hafiz-agent/internal/config"
)

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	if err := run(context.Background(), &out, &out, []string{"init", dir}); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, p := range []string{
		filepath.Join(dir, "hafiz.yaml"),
		filepath.Join(dir, "personas", "hafiz.txt"),
		filepath.Join(dir, "data"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("init did not create %s: %v", p, err)
		}
	}

	// The shipped example config must load and validate.
	cfg, err := config.Load(filepath.Join(dir, "hafiz.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.MQTT.BotName != "hafiz" {
		t.Errorf("example config bot_name = %q, want hafiz", cfg.MQTT.BotName)
	}
	if cfg.Timezone != "Europe/Istanbul" {
		t.Errorf("example config timezone = %q", cfg.Timezone)
	}
}

func TestRunInitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "hafiz.yaml")
	if err := os.WriteFile(configPath, []byte("# customized\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# customized") {
		t.Error("init overwrote an existing config file")
	}
}
