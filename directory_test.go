package ftpfs

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"
)

func TestParseListing_Example(t *testing.T) {
	t.Parallel()

	lines := []string{
		"drwxr-xr-x 2 a a 4096 Jan  5 10:30 sub\r\n",
		"-rw-r--r-- 1 a a  123 Dec 31  2019 readme.txt\r\n",
	}

	entries, err := parseListing(lines, 2026, time.UTC)
	if err != nil {
		t.Fatalf("parseListing() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	sub := entries[0]
	if sub.Name != "sub" || !sub.IsDir() || sub.Size != 4096 || sub.Links != 2 {
		t.Errorf("sub = %+v", sub)
	}
	if want := time.Date(2026, time.January, 5, 10, 30, 0, 0, time.UTC); !sub.ModTime.Equal(want) {
		t.Errorf("sub.ModTime = %v, want %v", sub.ModTime, want)
	}
	if sub.Mode.Perm() != 0755 {
		t.Errorf("sub perm = %o, want 755", sub.Mode.Perm())
	}

	readme := entries[1]
	if readme.Name != "readme.txt" || !readme.Mode.IsRegular() || readme.Size != 123 {
		t.Errorf("readme = %+v", readme)
	}
	if want := time.Date(2019, time.December, 31, 0, 0, 0, 0, time.UTC); !readme.ModTime.Equal(want) {
		t.Errorf("readme.ModTime = %v, want %v", readme.ModTime, want)
	}
	if readme.Mode.Perm() != 0644 {
		t.Errorf("readme perm = %o, want 644", readme.Mode.Perm())
	}
}

func TestParseListLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		line     string
		wantName string
		wantMode fs.FileMode
		wantSize int64
	}{
		{
			name:     "name with spaces",
			line:     "-rw-r--r--   1 user  group     1024 Dec 20 10:30 my  file.txt",
			wantName: "my  file.txt",
			wantMode: 0644,
			wantSize: 1024,
		},
		{
			name:     "symlink keeps target text",
			line:     "lrwxrwxrwx 1 root root 7 Mar  1  2020 bin -> usr/bin",
			wantName: "bin -> usr/bin",
			wantMode: fs.ModeSymlink | 0777,
			wantSize: 7,
		},
		{
			name:     "setuid and sticky",
			line:     "-rwsr-xr-t 1 root root 10 Mar  1  2020 prog",
			wantName: "prog",
			wantMode: 0755,
			wantSize: 10,
		},
		{
			name:     "capital S means execute unset",
			line:     "-rwSr--r-- 1 root root 10 Mar  1  2020 prog",
			wantName: "prog",
			wantMode: 0644,
			wantSize: 10,
		},
		{
			name:     "other type characters are regular",
			line:     "crw-rw---- 1 root tty 0 Mar  1 09:00 tty0",
			wantName: "tty0",
			wantMode: 0660,
			wantSize: 0,
		},
		{
			name:     "large size",
			line:     "-rw------- 1 u g 9876543210 Jul 4 2021 big.iso",
			wantName: "big.iso",
			wantMode: 0600,
			wantSize: 9876543210,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := parseListLine(tt.line, 2026, time.UTC)
			if err != nil {
				t.Fatalf("parseListLine() error = %v", err)
			}
			if entry.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", entry.Name, tt.wantName)
			}
			if entry.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", entry.Mode, tt.wantMode)
			}
			if entry.Size != tt.wantSize {
				t.Errorf("Size = %d, want %d", entry.Size, tt.wantSize)
			}
		})
	}
}

func TestParseListLine_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"too few fields", "drwxr-xr-x 2 a a 4096 Jan 5", "too few fields"},
		{"missing name", "drwxr-xr-x 2 a a 4096 Jan 5 10:30   ", "missing name"},
		{"short permissions", "drwxr-x 2 a a 4096 Jan 5 10:30 x", "bad permissions"},
		{"bad links", "drwxr-xr-x two a a 4096 Jan 5 10:30 x", "bad link count"},
		{"bad size", "drwxr-xr-x 2 a a big Jan 5 10:30 x", "bad size"},
		{"unknown month", "drwxr-xr-x 2 a a 4096 Foo 5 10:30 x", "bad month"},
		{"bad day", "drwxr-xr-x 2 a a 4096 Jan 32 10:30 x", "bad day"},
		{"bad hour", "drwxr-xr-x 2 a a 4096 Jan 5 25:30 x", "bad time"},
		{"bad minute", "drwxr-xr-x 2 a a 4096 Jan 5 10:3 x", "bad time"},
		{"bad year", "drwxr-xr-x 2 a a 4096 Jan 5 20x9 x", "bad year"},
		{"signed links", "-rw-r--r-- +1 a a 123 Dec 31 2019 x", "bad link count"},
		{"signed size", "-rw-r--r-- 1 a a +123 Dec 31 2019 x", "bad size"},
		{"negative size", "-rw-r--r-- 1 a a -123 Dec 31 2019 x", "bad size"},
		{"signed day", "-rw-r--r-- 1 a a 123 Dec +31 2019 x", "bad day"},
		{"signed year", "-rw-r--r-- 1 a a 123 Dec 31 +2019 x", "bad year"},
		{"signed hour", "-rw-r--r-- 1 a a 123 Dec 31 +1:30 x", "bad time"},
		{"signed minute", "-rw-r--r-- 1 a a 123 Dec 31 10:+3 x", "bad time"},
		{"empty hour", "-rw-r--r-- 1 a a 123 Dec 31 :30 x", "bad time"},
		{"dos format", "09-24-24  10:30AM       <DIR>          logger", "too few fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseListLine(tt.line, 2026, time.UTC)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("parseListLine() error = %v, want *ParseError", err)
			}
			if !strings.HasPrefix(pe.Reason, tt.reason) {
				t.Errorf("Reason = %q, want prefix %q", pe.Reason, tt.reason)
			}
			if pe.Line != tt.line {
				t.Errorf("Line = %q, want %q", pe.Line, tt.line)
			}
		})
	}
}

func TestParseListing_SkipsNoise(t *testing.T) {
	t.Parallel()

	lines := []string{
		"total 8\r\n",
		"\r\n",
		"drwxr-xr-x 2 a a 4096 Jan  5 10:30 .\r\n",
		"drwxr-xr-x 3 a a 4096 Jan  5 10:30 ..\r\n",
		"-rw-r--r-- 1 a a 5 Jan  5 10:30 f\r\n",
	}

	entries, err := parseListing(lines, 2026, time.UTC)
	if err != nil {
		t.Fatalf("parseListing() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != ".,..,f" {
		t.Errorf("names = %s, want .,..,f", got)
	}
}

func TestParseListing_OneBadLineFailsAll(t *testing.T) {
	t.Parallel()

	lines := []string{
		"-rw-r--r-- 1 a a 5 Jan  5 10:30 good\r\n",
		"garbage\r\n",
		"-rw-r--r-- 1 a a 5 Jan  5 10:30 also-good\r\n",
	}

	entries, err := parseListing(lines, 2026, time.UTC)
	if entries != nil {
		t.Errorf("got partial result %v", entries)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != "garbage" {
		t.Errorf("parseListing() error = %v, want ParseError for the garbage line", err)
	}
}

func TestReadLines(t *testing.T) {
	t.Parallel()

	lines, err := readLines(strings.NewReader("a\r\nb\nc"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 || lines[0] != "a\r\n" || lines[1] != "b\n" || lines[2] != "c" {
		t.Errorf("readLines() = %q", lines)
	}

	long := strings.Repeat("x", 100000)
	lines, err = readLines(strings.NewReader(long + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || len(lines[0]) != len(long)+1 {
		t.Errorf("long line not read whole: %d lines", len(lines))
	}
}
