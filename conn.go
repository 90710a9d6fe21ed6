package ftpfs

import (
	"context"
	"net"
	"time"
)

// Dialer opens the byte streams underneath control and data connections.
// *net.Dialer satisfies it; tests and proxies can supply their own.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// deadlineConn pushes the read or write deadline forward before every
// operation, so a stalled peer fails the call after timeout instead of
// blocking the owning goroutine forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// dial connects to addr and applies the pool's I/O timeout, if any.
func (p *Pool) dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if p.timeout > 0 {
		return &deadlineConn{Conn: conn, timeout: p.timeout}, nil
	}
	return conn, nil
}
