package config

import (
	"strings"
	"time"
)

// Defaults for values left unset.
const (
	DefaultAddress     = "localhost:21"
	DefaultMaxSessions = 4
	DefaultTimeout     = 30 * time.Second
)

// ApplyDefaults fills zero-valued fields. Explicit values are kept, and the
// log level is normalized to upper case.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyPoolDefaults(&cfg.Pool)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
}
