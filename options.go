package ftpfs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gonzalop/ftpfs/internal/ratelimit"
)

// Option is a functional option for configuring a Pool.
type Option func(*Pool) error

// WithTimeout sets the timeout for dialing and for every individual read or
// write on control and data connections. Zero disables timeouts, letting a
// stuck server block the calling goroutine indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Pool) error {
		if timeout < 0 {
			return fmt.Errorf("negative timeout %v", timeout)
		}
		p.timeout = timeout
		return nil
	}
}

// WithIdleTimeout sets the maximum idle time before an idle session is sent
// a NOOP keep-alive. Set to 0 (the default) to disable keep-alives.
//
// Example:
//
//	pool, _ := ftpfs.New("ftp.example.com:21", "user", "secret", 4,
//	    ftpfs.WithIdleTimeout(5*time.Minute),
//	)
func WithIdleTimeout(timeout time.Duration) Option {
	return func(p *Pool) error {
		p.idleTimeout = timeout
		return nil
	}
}

// WithLogger enables debug logging using the provided logger.
// All FTP commands and responses will be logged at debug level.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	pool, _ := ftpfs.New("ftp.example.com:21", "user", "secret", 4, ftpfs.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		p.logger = logger
		return nil
	}
}

// WithDialer sets a custom Dialer for control and data connections.
// The pool's timeout still applies to I/O on the connections it returns.
func WithDialer(dialer Dialer) Option {
	return func(p *Pool) error {
		p.dialer = dialer
		return nil
	}
}

// WithBandwidthLimit caps the combined data-channel throughput of all
// sessions, in bytes per second. Zero or a negative value means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(p *Pool) error {
		p.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithLocation sets the time zone directory listing timestamps are
// interpreted in. The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *Pool) error {
		if loc == nil {
			return fmt.Errorf("nil location")
		}
		p.location = loc
		return nil
	}
}
