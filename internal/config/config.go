// Package config handles Hafız configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the agent core. All of these can be overridden in the
// config file, but the zero config is a working config.
const (
	DefaultMaxIterations  = 10
	DefaultMaxHistory     = 20
	DefaultHistoryTTL     = 30 * time.Minute
	DefaultRecallK        = 3
	DefaultPollInterval   = 30 * time.Second
	DefaultToolTimeout    = 30 * time.Second
	DefaultRequestTimeout = 120 * time.Second
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./hafiz.yaml, ~/.config/hafiz/hafiz.yaml, /etc/hafiz/hafiz.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hafiz.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hafiz", "hafiz.yaml"))
	}

	paths = append(paths, "/etc/hafiz/hafiz.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Hafız configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Agent     AgentConfig     `yaml:"agent"`
	Mission   MissionConfig   `yaml:"mission"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Media     MediaConfig     `yaml:"media"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	DataDir   string          `yaml:"data_dir"`
	Timezone  string          `yaml:"timezone"`
	LogLevel  string          `yaml:"log_level"`
	// LogFormat is "text" (default) or "json".
	LogFormat string `yaml:"log_format"`
}

// ModelConfig defines the LLM provider settings.
type ModelConfig struct {
	// Provider selects the chat completion backend: "anthropic" or
	// "openrouter".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Name     string `yaml:"name"`
	// RequestTimeoutSec bounds a single provider call. Zero means
	// DefaultRequestTimeout.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// AgentConfig tunes the tool-calling loop and conversation history.
type AgentConfig struct {
	// MaxIterations caps model round trips per turn (default 10).
	MaxIterations int `yaml:"max_iterations"`
	// MaxHistory caps retained messages per conversation (default 20).
	MaxHistory int `yaml:"max_history"`
	// HistoryTTLMin expires history entries after this many minutes
	// (default 30).
	HistoryTTLMin int `yaml:"history_ttl_min"`
	// RecallK is how many recalled memories augment the system prompt
	// (default 3).
	RecallK int `yaml:"recall_k"`
	// ToolTimeoutSec bounds a single tool call (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// PersonaDir optionally overrides built-in persona prompts with
	// <name>.txt files from this directory.
	PersonaDir string `yaml:"persona_dir"`
}

// MissionConfig defines the subordinate task dispatcher.
type MissionConfig struct {
	Enabled bool `yaml:"enabled"`
	// Subordinate is the identity whose pending directives this process
	// claims (e.g. "avyna").
	Subordinate string `yaml:"subordinate"`
	// PollIntervalSec is the directive poll cadence (default 30).
	PollIntervalSec int `yaml:"poll_interval_sec"`
}

// MQTTConfig defines the chat transport broker connection.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// BotName namespaces the topics: hafiz/<bot_name>/ask etc.
	BotName string `yaml:"bot_name"`
	// Principal is the single allow-listed sender id. Inbound messages
	// from anyone else are dropped.
	Principal string `yaml:"principal"`
	// RateLimitPerMin drops inbound messages beyond this rate (default 60).
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// CalendarConfig defines the read-only CalDAV collaborator.
type CalendarConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Calendar string `yaml:"calendar"` // calendar path on the server
}

// MediaConfig defines the generative content services.
type MediaConfig struct {
	ImageURL      string `yaml:"image_url"`
	ImageAPIKey   string `yaml:"image_api_key"`
	VideoURL      string `yaml:"video_url"`
	VideoAPIKey   string `yaml:"video_api_key"`
	SocialURL     string `yaml:"social_url"`
	SocialAPIKey  string `yaml:"social_api_key"`
	CaptionModel  string `yaml:"caption_model"`
	CaptionAPIKey string `yaml:"caption_api_key"`
	// SocialAccounts maps platform name to account username, e.g.
	// instagram: avyna.studio.
	SocialAccounts map[string]string `yaml:"social_accounts"`
}

// HeartbeatConfig defines the daily check-in message.
type HeartbeatConfig struct {
	Enabled bool `yaml:"enabled"`
	// At is the local wall-clock firing time, "HH:MM" (default "08:00").
	At string `yaml:"at"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file body are expanded before parsing, so secrets can stay in the
// environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all tunables at their defaults.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "anthropic",
			Name:     "claude-sonnet-4-20250514",
		},
		Agent: AgentConfig{
			MaxIterations:  DefaultMaxIterations,
			MaxHistory:     DefaultMaxHistory,
			HistoryTTLMin:  int(DefaultHistoryTTL.Minutes()),
			RecallK:        DefaultRecallK,
			ToolTimeoutSec: int(DefaultToolTimeout.Seconds()),
		},
		Mission: MissionConfig{
			Subordinate:     "avyna",
			PollIntervalSec: int(DefaultPollInterval.Seconds()),
		},
		MQTT: MQTTConfig{
			BotName:         "hafiz",
			RateLimitPerMin: 60,
		},
		Heartbeat: HeartbeatConfig{At: "08:00"},
		DataDir:   ".",
		Timezone:  "Europe/Istanbul",
	}
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "anthropic", "openrouter":
	default:
		return fmt.Errorf("unknown model provider %q (expected anthropic or openrouter)", c.Model.Provider)
	}
	if c.Mission.Enabled && c.Mission.Subordinate == "" {
		return fmt.Errorf("mission.subordinate is required when mission control is enabled")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when the MQTT transport is enabled")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text or json)", c.LogFormat)
	}
	return nil
}

// HistoryTTL returns the configured history TTL as a duration.
func (c *Config) HistoryTTL() time.Duration {
	if c.Agent.HistoryTTLMin <= 0 {
		return DefaultHistoryTTL
	}
	return time.Duration(c.Agent.HistoryTTLMin) * time.Minute
}

// ToolTimeout returns the per-tool-call timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	if c.Agent.ToolTimeoutSec <= 0 {
		return DefaultToolTimeout
	}
	return time.Duration(c.Agent.ToolTimeoutSec) * time.Second
}

// RequestTimeout returns the per-provider-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.Model.RequestTimeoutSec <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.Model.RequestTimeoutSec) * time.Second
}

// PollInterval returns the mission poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	if c.Mission.PollIntervalSec <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.Mission.PollIntervalSec) * time.Second
}

// Location resolves the configured IANA timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
