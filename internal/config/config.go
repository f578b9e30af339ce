// Package config handles prat configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for prat.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Identity is the local user as known to the server.
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Timeline settings
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`

	// Composer settings
	Composer ComposerConfig `yaml:"composer" mapstructure:"composer"`

	// Typing presence settings
	Typing TypingConfig `yaml:"typing" mapstructure:"typing"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// StatePath is where the TUI persists drafts and the last conversation.
	StatePath string `yaml:"state_path" mapstructure:"state_path"`
}

// ServerConfig locates the chat server.
type ServerConfig struct {
	// BaseURL is the HTTP API root, e.g. https://chat.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// WSURL is the push-channel websocket endpoint; derived from BaseURL
	// when empty.
	WSURL string `yaml:"ws_url" mapstructure:"ws_url"`

	// Token authenticates both the API and the push channel.
	Token string `yaml:"token" mapstructure:"token"`

	// ReconnectInterval paces websocket redial attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
}

// IdentityConfig identifies the local user.
type IdentityConfig struct {
	UserID      string `yaml:"user_id" mapstructure:"user_id"`
	Username    string `yaml:"username" mapstructure:"username"`
	DisplayName string `yaml:"display_name" mapstructure:"display_name"`
}

// TimelineConfig tunes history loading and scroll anchoring.
type TimelineConfig struct {
	// PageSize is the history fetch limit per page.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// BottomThreshold is the stick-to-bottom distance, in rendered lines.
	BottomThreshold int `yaml:"bottom_threshold" mapstructure:"bottom_threshold"`

	// TopThreshold is the backward-pagination trigger distance.
	TopThreshold int `yaml:"top_threshold" mapstructure:"top_threshold"`

	// PulseAttempts bounds the re-anchor pulse after tail mutations.
	PulseAttempts int `yaml:"pulse_attempts" mapstructure:"pulse_attempts"`

	// PulseIntervalMs spaces the pulse attempts.
	PulseIntervalMs int `yaml:"pulse_interval_ms" mapstructure:"pulse_interval_ms"`
}

// ComposerConfig bounds uploads.
type ComposerConfig struct {
	// MaxUploadMB caps attachment size.
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`

	// AllowedTypes whitelists content-type prefixes; empty allows all.
	AllowedTypes []string `yaml:"allowed_types" mapstructure:"allowed_types"`

	// ProbeAttempts bounds the derivative readiness probe.
	ProbeAttempts int `yaml:"probe_attempts" mapstructure:"probe_attempts"`

	// ProbeIntervalMs spaces probe attempts.
	ProbeIntervalMs int `yaml:"probe_interval_ms" mapstructure:"probe_interval_ms"`
}

// TypingConfig tunes the typing presence protocol.
type TypingConfig struct {
	// HeartbeatSeconds re-emits typing_start while the draft is non-empty.
	HeartbeatSeconds int `yaml:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`

	// ExpirySeconds removes remote typists that saw no refresh.
	ExpirySeconds int `yaml:"expiry_seconds" mapstructure:"expiry_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is the log file path; interactive runs must not log to the tty.
	File string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ReconnectInterval: 2 * time.Second,
		},
		Timeline: TimelineConfig{
			PageSize:        20,
			BottomThreshold: 2,
			TopThreshold:    3,
			PulseAttempts:   12,
			PulseIntervalMs: 80,
		},
		Composer: ComposerConfig{
			MaxUploadMB:     25,
			ProbeAttempts:   20,
			ProbeIntervalMs: 500,
		},
		Typing: TypingConfig{
			HeartbeatSeconds: 4,
			ExpirySeconds:    3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "~/.local/state/prat/prat.log",
		},
		StatePath: "~/.local/state/prat/state.json",
	}
}

// WSEndpoint returns the push-channel URL, derived from the base URL when
// ws_url is unset.
func (c *Config) WSEndpoint() string {
	if c.Server.WSURL != "" {
		return c.Server.WSURL
	}
	u := strings.TrimSuffix(c.Server.BaseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Identity.UserID == "" || c.Identity.Username == "" {
		return fmt.Errorf("identity.user_id and identity.username are required")
	}
	if c.Timeline.PageSize <= 0 {
		return fmt.Errorf("timeline.page_size must be positive, got %d", c.Timeline.PageSize)
	}
	if c.Typing.HeartbeatSeconds <= 0 || c.Typing.ExpirySeconds <= 0 {
		return fmt.Errorf("typing intervals must be positive")
	}
	if c.Composer.MaxUploadMB <= 0 {
		return fmt.Errorf("composer.max_upload_mb must be positive, got %d", c.Composer.MaxUploadMB)
	}
	return nil
}
