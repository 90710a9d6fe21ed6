package main

import (
	"fmt"
	"io"
	"time"
)

// progressWriter forwards writes to w and prints the running total to out,
// at most every interval and once more when the total reaches size.
type progressWriter struct {
	w        io.Writer
	out      io.Writer
	name     string
	size     int64 // -1 when unknown
	total    int64
	last     time.Time
	interval time.Duration
}

func newProgressWriter(w, out io.Writer, name string, size int64) *progressWriter {
	return &progressWriter{w: w, out: out, name: name, size: size, interval: 200 * time.Millisecond}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.total += int64(n)
	if n > 0 {
		pw.report()
	}
	return n, err
}

func (pw *progressWriter) report() {
	done := pw.size >= 0 && pw.total >= pw.size
	if !done && time.Since(pw.last) < pw.interval {
		return
	}
	pw.last = time.Now()

	if pw.size > 0 {
		fmt.Fprintf(pw.out, "\r%s: %d/%d bytes (%d%%)", pw.name, pw.total, pw.size, pw.total*100/pw.size)
	} else {
		fmt.Fprintf(pw.out, "\r%s: %d bytes", pw.name, pw.total)
	}
	if done {
		fmt.Fprintln(pw.out)
	}
}
