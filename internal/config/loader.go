package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.StatePath = expandTilde(cfg.StatePath)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "prat"))
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "prat"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("server.base_url", cfg.Server.BaseURL)
	v.SetDefault("server.ws_url", cfg.Server.WSURL)
	v.SetDefault("server.token", cfg.Server.Token)
	v.SetDefault("server.reconnect_interval", cfg.Server.ReconnectInterval)

	v.SetDefault("identity.user_id", cfg.Identity.UserID)
	v.SetDefault("identity.username", cfg.Identity.Username)
	v.SetDefault("identity.display_name", cfg.Identity.DisplayName)

	v.SetDefault("timeline.page_size", cfg.Timeline.PageSize)
	v.SetDefault("timeline.bottom_threshold", cfg.Timeline.BottomThreshold)
	v.SetDefault("timeline.top_threshold", cfg.Timeline.TopThreshold)
	v.SetDefault("timeline.pulse_attempts", cfg.Timeline.PulseAttempts)
	v.SetDefault("timeline.pulse_interval_ms", cfg.Timeline.PulseIntervalMs)

	v.SetDefault("composer.max_upload_mb", cfg.Composer.MaxUploadMB)
	v.SetDefault("composer.allowed_types", cfg.Composer.AllowedTypes)
	v.SetDefault("composer.probe_attempts", cfg.Composer.ProbeAttempts)
	v.SetDefault("composer.probe_interval_ms", cfg.Composer.ProbeIntervalMs)

	v.SetDefault("typing.heartbeat_seconds", cfg.Typing.HeartbeatSeconds)
	v.SetDefault("typing.expiry_seconds", cfg.Typing.ExpirySeconds)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)

	v.SetDefault("state_path", cfg.StatePath)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key (used by CLI flag overrides).
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}

// bindEnvVars binds environment variables for config keys.
// Viper's Unmarshal has issues with env vars on nested structs unless
// explicitly bound; this ensures PRAT_* env vars work correctly.
func bindEnvVars(v *viper.Viper) {
	envBindings := []string{
		"server.base_url",
		"server.ws_url",
		"server.token",
		"server.reconnect_interval",
		"identity.user_id",
		"identity.username",
		"identity.display_name",
		"timeline.page_size",
		"timeline.bottom_threshold",
		"timeline.top_threshold",
		"timeline.pulse_attempts",
		"timeline.pulse_interval_ms",
		"composer.max_upload_mb",
		"composer.allowed_types",
		"composer.probe_attempts",
		"composer.probe_interval_ms",
		"typing.heartbeat_seconds",
		"typing.expiry_seconds",
		"logging.level",
		"logging.format",
		"logging.file",
		"state_path",
	}

	for _, key := range envBindings {
		envSuffix := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, "PRAT_"+envSuffix)
	}
}
