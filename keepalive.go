package ftpfs

import (
	"time"
)

// startKeepAlive starts a goroutine that sends NOOP on sessions that have
// sat idle for the configured idleTimeout, so the server does not drop
// control connections the pool intends to reuse.
func (p *Pool) startKeepAlive() {
	if p.idleTimeout <= 0 {
		return
	}

	// We use a ticker that runs at half the idle timeout to be safe
	ticker := time.NewTicker(p.idleTimeout / 2)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.keepAlive()
			case <-p.done:
				return
			}
		}
	}()
}

// keepAlive pings every stale idle session once. It only takes tokens that
// are free right now, so it never makes an operation wait.
func (p *Pool) keepAlive() {
	for {
		s := p.claimStale()
		if s == nil {
			return
		}

		p.logger.Debug("sending keep-alive NOOP", "session", s.index)
		if _, err := s.expect("NOOP", 200); err != nil {
			p.logger.Debug("keep-alive failed", "session", s.index, "error", err)
		}
		p.release(s)
	}
}

// claimStale borrows an idle, connected session without a data connection
// whose last use is older than the idle timeout.
func (p *Pool) claimStale() *session {
	if !p.tryAcquireToken() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		for _, s := range p.sessions {
			if !s.inUse && s.ctrl != nil && s.data == nil && time.Since(s.lastUsed) >= p.idleTimeout {
				s.inUse = true
				return s
			}
		}
	}

	p.releaseToken()
	return nil
}
