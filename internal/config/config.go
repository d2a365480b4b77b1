// Package config loads the console configuration from file and environment.
package config

import (
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	apperrors "github.com/agentdeck-dev/agentdeck/pkg/console/errors"
)

// Config is the console configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Console   ConsoleConfig   `mapstructure:"console"`
}

// ServerConfig locates the agent daemon.
type ServerConfig struct {
	URL string `mapstructure:"url"`
}

// ReconnectConfig tunes the channel adapter's reconnect policy.
type ReconnectConfig struct {
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	EmitBuffer     int           `mapstructure:"emit_buffer"`
}

// ConsoleConfig tunes presentation behavior.
type ConsoleConfig struct {
	// HistoryWait bounds how long plain CLI commands wait for a daemon
	// reply before giving up.
	HistoryWait time.Duration `mapstructure:"history_wait"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			URL: "ws://127.0.0.1:8573/ws",
		},
		Reconnect: ReconnectConfig{
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			EmitBuffer:     64,
		},
		Console: ConsoleConfig{
			HistoryWait: 10 * time.Second,
		},
	}
}

// Load reads configuration from the given file (optional) and AGENTDECK_*
// environment variables, folds in the defaults, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, apperrors.New(apperrors.ErrCodeConfigLoad, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, apperrors.New(apperrors.ErrCodeConfigLoad, "failed to parse config", err)
	}
	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return Config{}, apperrors.New(apperrors.ErrCodeConfigLoad, "failed to apply defaults", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration, reporting every problem at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		result = multierror.Append(result, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"server.url must be a ws:// or wss:// URL", nil))
	}
	if c.Reconnect.InitialBackoff <= 0 {
		result = multierror.Append(result, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"reconnect.initial_backoff must be positive", nil))
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		result = multierror.Append(result, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"reconnect.max_backoff must not be below reconnect.initial_backoff", nil))
	}
	if c.Reconnect.EmitBuffer <= 0 {
		result = multierror.Append(result, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"reconnect.emit_buffer must be positive", nil))
	}
	if c.Console.HistoryWait <= 0 {
		result = multierror.Append(result, apperrors.New(apperrors.ErrCodeConfigInvalid,
			"console.history_wait must be positive", nil))
	}
	return result.ErrorOrNil()
}
