package ftpfs

import (
	"bufio"
	"context"
	"net"
	"time"
)

// session is one slot of the pool: a control connection, at most one data
// connection, and the transfer that data connection was opened for.
//
// The transfer fields and inUse are guarded by Pool.mu while the session is
// idle. Between acquire and release the session belongs to exactly one
// goroutine, which may use the sockets without holding the mutex.
type session struct {
	pool  *Pool
	index int

	inUse    bool
	lastUsed time.Time

	ctrl   net.Conn
	reader *bufio.Reader

	data   net.Conn
	cmd    string // exact command that opened data, e.g. "RETR ./a/b"
	verb   string // RETR, STOR or LIST
	path   string // normalized path the transfer targets
	offset int64  // byte position the next chunk on data continues from
}

func (s *session) connected() bool {
	return s.ctrl != nil
}

// connect opens the control connection and logs in: 220 greeting, USER
// answered by 230 or 331, PASS answered by 230, then TYPE I answered by 200.
// Any deviation closes the partial connection. There is no retry here.
func (s *session) connect(ctx context.Context) error {
	p := s.pool
	p.logger.Debug("connecting to ftp server", "session", s.index, "addr", p.addr)

	conn, err := p.dial(ctx, p.addr)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	s.ctrl = conn
	s.reader = bufio.NewReader(conn)

	if err := s.login(); err != nil {
		s.teardown(err)
		return err
	}

	p.logger.Debug("ftp session ready", "session", s.index)
	return nil
}

func (s *session) login() error {
	greeting, err := s.receive("CONNECT")
	if err != nil {
		return err
	}
	if greeting.Code != 220 {
		return protocolError("CONNECT", greeting)
	}

	resp, err := s.expect("USER "+s.pool.user, 230, 331)
	if err != nil {
		return err
	}
	if resp.Code == 331 {
		if _, err := s.expect("PASS "+s.pool.pass, 230); err != nil {
			return err
		}
	}

	_, err = s.expect("TYPE I", 200)
	return err
}

// teardown closes both connections and forgets all session state. It is
// safe to call on a session that is already down.
func (s *session) teardown(cause error) {
	if s.ctrl == nil && s.data == nil {
		return
	}
	if cause != nil {
		s.pool.logger.Warn("ftp session torn down", "session", s.index, "error", cause)
	}
	s.dropData()
	if s.ctrl != nil {
		_ = s.ctrl.Close()
	}
	s.ctrl = nil
	s.reader = nil
}

// quit ends a healthy session politely. Errors are ignored, the sockets
// are closed regardless.
func (s *session) quit() {
	if s.ctrl != nil {
		if err := s.send("QUIT"); err == nil {
			_, _ = s.receive("QUIT")
		}
	}
	s.teardown(nil)
}
