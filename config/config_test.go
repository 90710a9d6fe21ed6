package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  format: json
server:
  address: "ftp.example.com:2121"
  user: alice
  password: s3cret
pool:
  max_sessions: 8
  timeout: 10s
  idle_timeout: 2m
  bandwidth_limit: 1048576
  location: UTC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "ftp.example.com:2121", cfg.Server.Address)
	assert.Equal(t, "alice", cfg.Server.User)
	assert.Equal(t, "s3cret", cfg.Server.Password)
	assert.Equal(t, 8, cfg.Pool.MaxSessions)
	assert.Equal(t, 10*time.Second, cfg.Pool.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Pool.IdleTimeout)
	assert.Equal(t, int64(1<<20), cfg.Pool.BandwidthLimit)
	assert.Equal(t, "UTC", cfg.Pool.Location)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
address = "10.0.0.5:21"
user = "bob"

[pool]
max_sessions = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:21", cfg.Server.Address)
	assert.Equal(t, "bob", cfg.Server.User)
	assert.Equal(t, 2, cfg.Pool.MaxSessions)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
	assert.Equal(t, "anonymous", cfg.Server.User)
	assert.Equal(t, DefaultMaxSessions, cfg.Pool.MaxSessions)
	assert.Equal(t, DefaultTimeout, cfg.Pool.Timeout)
	assert.Zero(t, cfg.Pool.IdleTimeout)
	assert.Zero(t, cfg.Pool.BandwidthLimit)
}

func TestLoad_ZeroTimeoutUsesDefault(t *testing.T) {
	path := writeConfig(t, "config.yaml", "pool:\n  timeout: 0s\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Pool.Timeout)
}

func TestLoad_DefaultConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := ConfigDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server:\n  user: carol\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "carol", cfg.Server.User)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  address: "file.example.com:21"
  password: from-file
`)
	t.Setenv("FTPFS_SERVER_PASSWORD", "from-env")
	t.Setenv("FTPFS_POOL_MAX_SESSIONS", "12")
	t.Setenv("FTPFS_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file.example.com:21", cfg.Server.Address)
	assert.Equal(t, "from-env", cfg.Server.Password)
	assert.Equal(t, 12, cfg.Pool.MaxSessions)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("FTPFS_SERVER_ADDRESS", "env.example.com:21")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env.example.com:21", cfg.Server.Address)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "server: [unterminated\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  address: "no-port"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Address")
	assert.Contains(t, err.Error(), "hostname_port")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantTag string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "TRACE" }, "oneof"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"empty user", func(c *Config) { c.Server.User = "" }, "required"},
		{"too many sessions", func(c *Config) { c.Pool.MaxSessions = 100 }, "lte"},
		{"negative sessions", func(c *Config) { c.Pool.MaxSessions = -1 }, "gte"},
		{"negative bandwidth", func(c *Config) { c.Pool.BandwidthLimit = -5 }, "gte"},
		{"negative timeout", func(c *Config) { c.Pool.Timeout = -time.Second }, "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantTag)
		})
	}
}

func TestValidate_DoesNotLeakPassword(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Password = "hunter2"
	cfg.Server.Address = "hunter2"

	err := Validate(cfg)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "error", Format: "json", Output: "stdout"},
		Pool:    PoolConfig{MaxSessions: 3, Timeout: time.Second},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 3, cfg.Pool.MaxSessions)
	assert.Equal(t, time.Second, cfg.Pool.Timeout)
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftpfs.log")

	logger, closer, err := NewLogger(LoggingConfig{Level: "WARN", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "slot", 1)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"shown"`)
	assert.Contains(t, string(data), `"slot":1`)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
}

func TestNewLogger_Errors(t *testing.T) {
	_, _, err := NewLogger(LoggingConfig{Level: "LOUD", Format: "text", Output: "stderr"})
	assert.Error(t, err)

	_, _, err = NewLogger(LoggingConfig{Level: "INFO", Format: "yaml", Output: "stderr"})
	assert.Error(t, err)

	_, _, err = NewLogger(LoggingConfig{Level: "INFO", Format: "text",
		Output: filepath.Join(t.TempDir(), "missing", "dir", "log")})
	assert.Error(t, err)
}

func TestPoolOptions(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	opts, err := cfg.PoolOptions(nil)
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	cfg.Pool.Location = "Europe/Madrid"
	logger, _, err := NewLogger(cfg.Logging)
	require.NoError(t, err)
	opts, err = cfg.PoolOptions(logger)
	require.NoError(t, err)
	assert.Len(t, opts, 5)

	cfg.Pool.Location = "Not/AZone"
	_, err = cfg.PoolOptions(nil)
	assert.Error(t, err)
}

func TestNewPool(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	pool, err := cfg.NewPool(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSessions, pool.Stats().Size)
	require.NoError(t, pool.Close())
}
