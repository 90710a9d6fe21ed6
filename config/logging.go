package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gonzalop/ftpfs"
)

// NewLogger builds the logger described by cfg. The returned closer
// releases a log file and is a no-op for stdout and stderr.
func NewLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging.output: %w", err)
		}
		out, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// PoolOptions converts the pool settings into ftpfs options. A nil logger
// leaves the pool silent.
func (c *Config) PoolOptions(logger *slog.Logger) ([]ftpfs.Option, error) {
	opts := []ftpfs.Option{
		ftpfs.WithTimeout(c.Pool.Timeout),
		ftpfs.WithIdleTimeout(c.Pool.IdleTimeout),
		ftpfs.WithBandwidthLimit(c.Pool.BandwidthLimit),
	}
	if c.Pool.Location != "" {
		loc, err := time.LoadLocation(c.Pool.Location)
		if err != nil {
			return nil, fmt.Errorf("pool.location: %w", err)
		}
		opts = append(opts, ftpfs.WithLocation(loc))
	}
	if logger != nil {
		opts = append(opts, ftpfs.WithLogger(logger))
	}
	return opts, nil
}

// NewPool opens a session pool for the configured server. Sessions are
// dialed lazily, so this does not touch the network.
func (c *Config) NewPool(logger *slog.Logger) (*ftpfs.Pool, error) {
	opts, err := c.PoolOptions(logger)
	if err != nil {
		return nil, err
	}
	return ftpfs.New(c.Server.Address, c.Server.User, c.Server.Password,
		c.Pool.MaxSessions, opts...)
}
