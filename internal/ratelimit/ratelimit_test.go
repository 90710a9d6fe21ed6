package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond int64
		expectNil      bool
	}{
		{"Valid rate", 1024, false},
		{"Zero rate (unlimited)", 0, true},
		{"Negative rate (unlimited)", -1, true},
		{"Very low rate", 1, false},
		{"High rate", 10 * 1024 * 1024, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.bytesPerSecond)
			if tt.expectNil && limiter != nil {
				t.Errorf("Expected nil limiter for rate %d, got non-nil", tt.bytesPerSecond)
			}
			if !tt.expectNil && limiter == nil {
				t.Errorf("Expected non-nil limiter for rate %d, got nil", tt.bytesPerSecond)
			}
			if limiter != nil && limiter.Limit() != tt.bytesPerSecond {
				t.Errorf("Limit() = %d, want %d", limiter.Limit(), tt.bytesPerSecond)
			}
		})
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	if l.Limit() != 0 {
		t.Errorf("nil Limit() = %d, want 0", l.Limit())
	}
	if err := l.WaitN(context.Background(), 1<<20); err != nil {
		t.Errorf("nil WaitN() = %v", err)
	}
}

func TestNewReader(t *testing.T) {
	ctx := context.Background()
	reader := bytes.NewReader([]byte("test data"))

	if limited := NewReader(ctx, reader, nil); limited != reader {
		t.Error("Expected original reader when limiter is nil")
	}
	if limited := NewReader(ctx, reader, New(1024)); limited == reader {
		t.Error("Expected wrapped reader when limiter is non-nil")
	}
}

func TestNewWriter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	if limited := NewWriter(ctx, &buf, nil); limited != &buf {
		t.Error("Expected original writer when limiter is nil")
	}
	if limited := NewWriter(ctx, &buf, New(1024)); limited == &buf {
		t.Error("Expected wrapped writer when limiter is non-nil")
	}
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestReader_Read(t *testing.T) {
	t.Parallel()

	// The first 2KB is the burst, the second 2KB takes about a second.
	data := testData(4 * 1024)
	reader := NewReader(context.Background(), bytes.NewReader(data), New(2*1024))

	start := time.Now()
	result, err := io.ReadAll(reader)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, result) {
		t.Error("Data mismatch after rate-limited read")
	}
	if duration < 700*time.Millisecond {
		t.Errorf("Read completed too quickly (%v), rate limiting may not be working", duration)
	}
	if duration > 3*time.Second {
		t.Errorf("Read took too long (%v)", duration)
	}
}

func TestWriter_Write(t *testing.T) {
	t.Parallel()

	data := testData(4 * 1024)
	var buf bytes.Buffer
	writer := NewWriter(context.Background(), &buf, New(2*1024))

	start := time.Now()
	n, err := writer.Write(data)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, got %d", len(data), n)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("Data mismatch after rate-limited write")
	}
	if duration < 700*time.Millisecond {
		t.Errorf("Write completed too quickly (%v), rate limiting may not be working", duration)
	}
}

func TestWriter_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// 1 byte/s: the second chunk can never be granted before the deadline.
	var buf bytes.Buffer
	writer := NewWriter(ctx, &buf, New(1))

	n, err := writer.Write([]byte("hello"))
	if err == nil {
		t.Fatal("expected error from canceled wait")
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}
	if buf.String() != "h" {
		t.Errorf("buf = %q, want %q", buf.String(), "h")
	}
}

func TestReader_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewReader(ctx, bytes.NewReader([]byte("hello")), New(1))
	_, err := reader.Read(make([]byte, 5))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestUnlimitedRate(t *testing.T) {
	data := testData(10 * 1024)
	reader := NewReader(context.Background(), bytes.NewReader(data), nil)

	start := time.Now()
	result, err := io.ReadAll(reader)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(result) != len(data) {
		t.Errorf("Expected to read %d bytes, got %d", len(data), len(result))
	}
	if duration > 100*time.Millisecond {
		t.Errorf("Unlimited read took too long (%v)", duration)
	}
}

func BenchmarkReader(b *testing.B) {
	data := make([]byte, 1024)
	limiter := New(1024 * 1024 * 1024)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := io.ReadAll(NewReader(ctx, bytes.NewReader(data), limiter)); err != nil {
			b.Fatal(err)
		}
	}
}
