package ftpfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/gonzalop/ftpfs/internal/ratelimit"
	"github.com/hashicorp/go-multierror"
)

// Pool is a fixed-size set of FTP sessions against one server. Every file
// operation borrows a session, runs a short command sequence and hands it
// back; control connections stay open between operations and a data
// connection left idle after a chunked read or write is resumed by the next
// request for the same command and offset.
//
// At most maxSessions sessions are in use at any time. Callers beyond that
// block until a session is released or their context ends. Waiters are not
// served in FIFO order.
type Pool struct {
	addr string
	host string
	user string
	pass string

	timeout     time.Duration
	idleTimeout time.Duration
	dialer      Dialer
	logger      *slog.Logger
	limiter     *ratelimit.Limiter
	location    *time.Location

	// tokens is the counting limit: a session may only be marked in use
	// by a goroutine that has put a token into the channel.
	tokens chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	// mu guards the session table and the idle sessions' fields. It is
	// never held across network I/O.
	mu       sync.Mutex
	sessions []*session
	closed   bool
}

// Stats is a snapshot of the session table.
type Stats struct {
	// Size is the fixed number of session slots
	Size int

	// InUse is the number of sessions currently borrowed by an operation
	InUse int

	// IdleConnected counts idle sessions holding a control connection
	IdleConnected int

	// IdleTransfers counts idle sessions holding an open data connection
	IdleTransfers int
}

// New creates a pool of maxSessions sessions for the FTP server at addr
// ("host:port"). No connection is made until the first operation needs one.
//
// Example:
//
//	pool, err := ftpfs.New("ftp.example.com:21", "user", "secret", 4,
//	    ftpfs.WithTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func New(addr, user, pass string, maxSessions int, options ...Option) (*Pool, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if maxSessions <= 0 {
		return nil, fmt.Errorf("invalid session count %d: must be positive", maxSessions)
	}

	p := &Pool{
		addr:     addr,
		host:     host,
		user:     user,
		pass:     pass,
		timeout:  30 * time.Second,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		location: time.Local,
		tokens:   make(chan struct{}, maxSessions),
		done:     make(chan struct{}),
		sessions: make([]*session, maxSessions),
	}

	for _, opt := range options {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if p.dialer == nil {
		p.dialer = &net.Dialer{Timeout: p.timeout}
	}

	for i := range p.sessions {
		p.sessions[i] = &session{pool: p, index: i}
	}

	p.startKeepAlive()

	return p, nil
}

// Close tears down every idle session, finishing their pending transfers
// first. Sessions still borrowed are torn down when they are released.
// Waiting and future operations fail with ErrPoolClosed. Close is
// idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)

	var idle []*session
	for _, s := range p.sessions {
		if !s.inUse {
			idle = append(idle, s)
		}
	}
	p.mu.Unlock()

	p.wg.Wait()

	var result *multierror.Error
	for _, s := range idle {
		if err := s.closeData(); err != nil {
			result = multierror.Append(result, err)
		}
		s.quit()
	}
	return result.ErrorOrNil()
}

// Stats returns a snapshot of the session table.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{Size: len(p.sessions)}
	for _, s := range p.sessions {
		switch {
		case s.inUse:
			st.InUse++
		case s.data != nil:
			st.IdleConnected++
			st.IdleTransfers++
		case s.ctrl != nil:
			st.IdleConnected++
		}
	}
	return st
}

func (p *Pool) acquireToken(ctx context.Context) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

func (p *Pool) tryAcquireToken() bool {
	select {
	case p.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *Pool) releaseToken() {
	<-p.tokens
}

// pickIdleLocked returns the first idle session without a data connection,
// or failing that the first idle session. The caller holds a token, so at
// least one idle session exists.
func (p *Pool) pickIdleLocked() *session {
	var fallback *session
	for _, s := range p.sessions {
		if s.inUse {
			continue
		}
		if s.data == nil {
			return s
		}
		if fallback == nil {
			fallback = s
		}
	}
	return fallback
}

// acquirePlain borrows a session for control-channel-only commands. A data
// connection left on the chosen session is closed first.
func (p *Pool) acquirePlain(ctx context.Context) (*session, error) {
	if err := p.acquireToken(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.releaseToken()
		return nil, ErrPoolClosed
	}
	s := p.pickIdleLocked()
	s.inUse = true
	p.mu.Unlock()

	if err := s.closeData(); err != nil {
		p.logger.Debug("reclaimed data connection failed to close", "session", s.index, "error", err)
	}

	if !s.connected() {
		if err := s.connect(ctx); err != nil {
			p.release(s)
			return nil, err
		}
	}
	return s, nil
}

// conflicts reports whether an idle data connection on s has to be closed
// before a verb transfer of name can start: a transfer in the other
// direction on the same file, or a second write to it.
func conflicts(s *session, verb, name string) bool {
	if s.data == nil || s.path != name || s.verb == "LIST" || verb == "LIST" {
		return false
	}
	return s.verb != verb || verb == "STOR"
}

// pickTransferLocked marks the session a verb transfer of name will run on
// as in use, together with every idle session whose data connection
// conflicts with it and for which a spare token is free. The caller holds
// one token and closes the stale sessions.
//
// Resolution is best-effort: when other goroutines hold the remaining tokens
// but have not claimed a session yet, only one conflicting session can be
// taken, on the caller's own token. The rest stay open until an acquirer
// that holds a token for them runs its own conflict check.
func (p *Pool) pickTransferLocked(verb, name string) (*session, []*session) {
	s := p.pickIdleLocked()
	var stale []*session
	for _, c := range p.sessions {
		if c == s || c.inUse || !conflicts(c, verb, name) {
			continue
		}
		if p.tryAcquireToken() {
			c.inUse = true
			stale = append(stale, c)
			continue
		}
		if !conflicts(s, verb, name) {
			s = c
		}
	}
	s.inUse = true
	return s, stale
}

// acquireTransfer borrows a session whose data connection is positioned for
// verb on name at offset. An idle session already positioned there is
// handed out as is. Otherwise idle data connections conflicting with the
// request are closed, and a fresh PASV connection is negotiated, followed by
// REST when offset is non-zero and the transfer command itself.
func (p *Pool) acquireTransfer(ctx context.Context, verb, name string, offset int64) (*session, error) {
	name = cleanPath(name)
	cmd := transferCommand(verb, name)

	if err := p.acquireToken(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.releaseToken()
		return nil, ErrPoolClosed
	}

	for _, s := range p.sessions {
		if !s.inUse && s.data != nil && s.cmd == cmd && s.offset == offset {
			s.inUse = true
			p.mu.Unlock()
			p.logger.Debug("reusing data connection", "session", s.index, "cmd", cmd, "offset", offset)
			return s, nil
		}
	}

	s, stale := p.pickTransferLocked(verb, name)
	p.mu.Unlock()

	for _, c := range stale {
		p.logger.Debug("closing conflicting data connection", "session", c.index, "cmd", c.cmd, "for", cmd)
		if err := c.closeData(); err != nil {
			p.logger.Debug("conflicting data connection failed to close", "session", c.index, "error", err)
		}
		p.release(c)
	}

	if err := s.closeData(); err != nil {
		p.logger.Debug("reclaimed data connection failed to close", "session", s.index, "error", err)
	}

	if !s.connected() {
		if err := s.connect(ctx); err != nil {
			p.release(s)
			return nil, err
		}
	}

	if err := s.startTransfer(ctx, cmd, offset); err != nil {
		p.release(s)
		return nil, err
	}

	s.cmd = cmd
	s.verb = verb
	s.path = name
	s.offset = offset
	return s, nil
}

// startTransfer opens the data connection and issues REST (for a non-zero
// offset) and the transfer command. Any failure after PASV drops the data
// connection again.
func (s *session) startTransfer(ctx context.Context, cmd string, offset int64) error {
	if err := s.openPASV(ctx); err != nil {
		return err
	}

	if offset != 0 {
		if _, err := s.expect("REST "+strconv.FormatInt(offset, 10), 350); err != nil {
			s.dropData()
			return err
		}
	}

	if _, err := s.expect(cmd, 150, 125); err != nil {
		s.dropData()
		return err
	}
	return nil
}

// release hands a session back. Its data connection stays open for a
// following request that continues the same transfer.
func (p *Pool) release(s *session) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err := s.closeData(); err != nil {
			p.logger.Debug("data connection failed to close on shutdown", "session", s.index, "error", err)
		}
		s.quit()
		p.mu.Lock()
	}
	s.inUse = false
	s.lastUsed = time.Now()
	p.mu.Unlock()

	p.releaseToken()
}

func cleanPath(name string) string {
	cleaned := path.Clean("/" + name)
	return cleaned[1:]
}

func transferCommand(verb, name string) string {
	if verb == "LIST" {
		return "LIST -al ./" + name
	}
	return verb + " ./" + name
}
