package ftpfs

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gonzalop/ftpfs/internal/ratelimit"
	"github.com/hashicorp/go-multierror"
)

// ReadFile reads up to len(buf) bytes of name starting at offset. A
// sequential reader that asks for the next offset is served from the same
// data connection without a new PASV round trip.
//
// Fewer bytes than len(buf) are returned only at end of file; a read at or
// past the end returns 0 and a nil error. On failure no byte count is
// reported.
func (p *Pool) ReadFile(ctx context.Context, name string, offset int64, buf []byte) (int, error) {
	s, err := p.acquireTransfer(ctx, "RETR", name, offset)
	if err != nil {
		return 0, err
	}
	defer p.release(s)

	n, err := io.ReadFull(ratelimit.NewReader(ctx, s.data, p.limiter), buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, s.abandonTransfer(ctx, "data read", err)
	}

	s.offset += int64(n)
	return n, nil
}

// WriteFile writes buf to name at offset. The upload stays open after the
// call so the next sequential chunk continues it; the server sees the file
// complete once CloseFile runs or the session is reclaimed.
func (p *Pool) WriteFile(ctx context.Context, name string, offset int64, buf []byte) (int, error) {
	s, err := p.acquireTransfer(ctx, "STOR", name, offset)
	if err != nil {
		return 0, err
	}
	defer p.release(s)

	n, err := ratelimit.NewWriter(ctx, s.data, p.limiter).Write(buf)
	if err != nil {
		return 0, s.abandonTransfer(ctx, "data write", err)
	}

	s.offset += int64(n)
	return n, nil
}

// abandonTransfer closes a data connection that failed mid-transfer. A
// cancelled context is reported as such; anything else as a TransportError.
func (s *session) abandonTransfer(ctx context.Context, op string, cause error) error {
	if err := s.closeData(); err != nil {
		s.pool.logger.Debug("failed transfer did not close cleanly", "session", s.index, "error", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(cause, ctxErr) {
		return ctxErr
	}
	return &TransportError{Op: op, Err: cause}
}

// CloseFile ends every idle transfer on name, in either direction, so the
// server finishes an upload or drops a download now rather than when the
// session is next recycled. Transfers currently borrowed by another
// operation are not touched.
func (p *Pool) CloseFile(ctx context.Context, name string) error {
	name = cleanPath(name)

	var result *multierror.Error
	for {
		s, err := p.claimTransfer(ctx, name)
		if err != nil {
			if result == nil {
				return err
			}
			return multierror.Append(result, err)
		}
		if s == nil {
			return result.ErrorOrNil()
		}

		p.logger.Debug("closing file transfer", "session", s.index, "cmd", s.cmd)
		if err := s.closeData(); err != nil {
			result = multierror.Append(result, err)
		}
		p.release(s)
	}
}

// claimTransfer borrows an idle session holding a data connection for name,
// or returns nil when there is none. It only waits for a token when such a
// session exists; with every session borrowed there is nothing to close.
func (p *Pool) claimTransfer(ctx context.Context, name string) (*session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	s := p.idleTransferLocked(name)
	if s == nil {
		p.mu.Unlock()
		return nil, nil
	}
	if p.tryAcquireToken() {
		s.inUse = true
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	// The token for s is held by an acquirer that has not claimed a
	// session yet.
	if err := p.acquireToken(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.releaseToken()
		return nil, ErrPoolClosed
	}
	if s := p.idleTransferLocked(name); s != nil {
		s.inUse = true
		return s, nil
	}
	p.releaseToken()
	return nil, nil
}

func (p *Pool) idleTransferLocked(name string) *session {
	for _, s := range p.sessions {
		if !s.inUse && s.data != nil && s.path == name {
			return s
		}
	}
	return nil
}

// ListDir returns the entries of directory name as reported by "LIST -al",
// including "." and ".." when the server lists them. A single line that
// cannot be parsed fails the whole listing. Uploads left open on other idle
// sessions are not finished first, so their sizes may lag; call CloseFile on
// such files before listing when the size matters.
func (p *Pool) ListDir(ctx context.Context, name string) ([]*FileEntry, error) {
	year := time.Now().In(p.location).Year()

	s, err := p.acquireTransfer(ctx, "LIST", name, 0)
	if err != nil {
		return nil, err
	}
	defer p.release(s)

	lines, err := readLines(ratelimit.NewReader(ctx, s.data, p.limiter))
	if err != nil {
		return nil, s.abandonTransfer(ctx, "data read", err)
	}

	if err := s.finishData(); err != nil {
		return nil, err
	}

	return parseListing(lines, year, p.location)
}

// Rename renames from to to. Pending transfers on from are closed first.
func (p *Pool) Rename(ctx context.Context, from, to string) error {
	from, to = cleanPath(from), cleanPath(to)
	if err := p.CloseFile(ctx, from); err != nil {
		return err
	}

	s, err := p.acquirePlain(ctx)
	if err != nil {
		return err
	}
	defer p.release(s)

	if _, err := s.expect("RNFR ./"+from, 350); err != nil {
		return err
	}
	_, err = s.expect("RNTO ./"+to, 250)
	return err
}

// CreateFile creates name as an empty file, truncating it if it exists.
func (p *Pool) CreateFile(ctx context.Context, name string) error {
	s, err := p.acquireTransfer(ctx, "STOR", name, 0)
	if err != nil {
		return err
	}
	defer p.release(s)

	return s.finishData()
}

// RemoveFile deletes name. Pending transfers on it are closed first.
func (p *Pool) RemoveFile(ctx context.Context, name string) error {
	name = cleanPath(name)
	if err := p.CloseFile(ctx, name); err != nil {
		return err
	}
	return p.simple(ctx, "DELE ./"+name, 250)
}

// CreateDir creates directory name.
func (p *Pool) CreateDir(ctx context.Context, name string) error {
	return p.simple(ctx, "MKD ./"+cleanPath(name), 257)
}

// RemoveDir removes the empty directory name.
func (p *Pool) RemoveDir(ctx context.Context, name string) error {
	return p.simple(ctx, "RMD ./"+cleanPath(name), 250)
}

func (p *Pool) simple(ctx context.Context, command string, code int) error {
	s, err := p.acquirePlain(ctx)
	if err != nil {
		return err
	}
	defer p.release(s)

	_, err = s.expect(command, code)
	return err
}
