package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"webreplay/internal/logging"
)

// Config is the full runtime configuration. Values come from
// webreplay-config.json ($HOME or cwd), WEBREPLAY_* environment
// variables and flags, in ascending precedence.
type Config struct {
	// Server
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Storage
	RecordingsDir string `mapstructure:"recordings_dir"`

	// Browser
	Headless       bool          `mapstructure:"headless"`
	CDPURL         string        `mapstructure:"cdp_url"`
	ChromePath     string        `mapstructure:"chrome_path"`
	UserDataDir    string        `mapstructure:"user_data_dir"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`

	// Concurrency
	MaxSessions  int           `mapstructure:"max_sessions"`
	QueueTimeout time.Duration `mapstructure:"queue_timeout"`

	// Replay
	StopOnFailure  bool          `mapstructure:"stop_on_failure"`
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout"`

	// Secrets re-supplied to fill steps whose recorded text was
	// redacted. Keyed by the recording's secret_key.
	Secrets map[string]string `mapstructure:"secrets"`
}

func defaults() map[string]any {
	return map[string]any{
		"host":            "0.0.0.0",
		"port":            8034,
		"recordings_dir":  "~/.webreplay/recordings",
		"headless":        true,
		"cdp_url":         "",
		"chrome_path":     "",
		"user_data_dir":   "",
		"startup_timeout": "30s",
		"max_sessions":    4,
		"queue_timeout":   "30s",
		"stop_on_failure": false,
		"resolve_timeout": "10s",
		"action_timeout":  "30s",
	}
}

// Load reads configuration. A missing config file is fine, defaults
// and environment cover everything.
func Load() (*Config, error) {
	logger := logging.NewComponentLogger("Config")

	v := viper.New()
	v.SetConfigName("webreplay-config")
	v.SetConfigType("json")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("WEBREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		logger.Info("Loaded config from %s", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would only fail later and further from
// their cause.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.RecordingsDir) == "" {
		return fmt.Errorf("recordings_dir must not be empty")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
