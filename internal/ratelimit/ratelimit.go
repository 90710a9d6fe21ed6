// Package ratelimit throttles data-channel throughput with a token bucket
// shared by every session of a pool. One token is one byte.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// chunkSize bounds a single wait so that a large buffer is released in
// steps instead of after one long sleep.
const chunkSize = 32 * 1024

// Limiter caps throughput in bytes per second. A nil *Limiter means
// unlimited; every method and wrapper accepts it.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a limiter for bytesPerSecond with a burst of one second worth
// of data, capped at chunkSize. Zero or a negative rate returns nil.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(min(bytesPerSecond, chunkSize))
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// Limit returns the configured rate in bytes per second, or 0 when l is nil.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return int64(l.limiter.Limit())
}

// WaitN blocks until n bytes may pass or ctx ends.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	burst := l.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := l.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

type reader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

// NewReader wraps r so reads are charged against l after they complete.
// Waiting stops when ctx ends. With a nil limiter r is returned unchanged.
func NewReader(ctx context.Context, r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, l: l}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > r.l.limiter.Burst() {
		p = p[:r.l.limiter.Burst()]
	}
	// Charge what actually arrived; a short read must not cost a full
	// buffer.
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.l.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

type writer struct {
	ctx context.Context
	w   io.Writer
	l   *Limiter
}

// NewWriter wraps w so writes are charged against l. Waiting stops when ctx
// ends. With a nil limiter w is returned unchanged.
func NewWriter(ctx context.Context, w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, l: l}
}

func (w *writer) Write(p []byte) (int, error) {
	burst := w.l.limiter.Burst()
	written := 0
	for written < len(p) {
		end := min(written+burst, len(p))
		if err := w.l.WaitN(w.ctx, end-written); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
