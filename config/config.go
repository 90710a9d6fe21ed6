// Package config loads the settings for an FTP mount: where the server is,
// how to log in, how large the session pool is and how it logs.
//
// Sources, highest precedence first:
//  1. Environment variables (FTPFS_*, e.g. FTPFS_SERVER_PASSWORD)
//  2. Configuration file (YAML or TOML)
//  3. Defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete mount configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Pool    PoolConfig    `mapstructure:"pool"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR, in any case.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig says where to connect and how to log in.
type ServerConfig struct {
	// Address is host:port of the FTP control connection.
	Address string `mapstructure:"address" validate:"required,hostname_port"`

	User string `mapstructure:"user" validate:"required"`

	// Password may be empty for servers that accept USER alone.
	Password string `mapstructure:"password"`
}

// PoolConfig sizes and tunes the session pool.
type PoolConfig struct {
	MaxSessions int `mapstructure:"max_sessions" validate:"gte=1,lte=64"`

	// Timeout bounds every socket operation. Zero selects DefaultTimeout;
	// configuration cannot disable it.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// IdleTimeout is how long a session may sit unused before a NOOP
	// keeps it alive. Zero disables keep-alives.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`

	// BandwidthLimit caps data transfer in bytes per second across the
	// pool. Zero means unlimited.
	BandwidthLimit int64 `mapstructure:"bandwidth_limit" validate:"gte=0"`

	// Location is the IANA time zone listing timestamps are read in.
	// Empty means the local zone.
	Location string `mapstructure:"location"`
}

// Load reads configuration from configPath (or the default location when
// empty), applies environment overrides and defaults, and validates the
// result. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FTPFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about, so
	// register every key for env-only setups.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.address", "server.user", "server.password",
		"pool.max_sessions", "pool.timeout", "pool.idle_timeout", "pool.bandwidth_limit",
		"pool.location",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// ConfigDir returns $XDG_CONFIG_HOME/ftpfs, falling back to ~/.config/ftpfs
// and then the current directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ftpfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ftpfs")
}
