package ftpfs

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"
)

// FileEntry is one line of a directory listing.
type FileEntry struct {
	// Name is the entry name as listed. For a symlink this is the whole
	// "name -> target" text; targets are not split out.
	Name string

	// Mode carries the type (fs.ModeDir, fs.ModeSymlink or regular) and
	// the nine permission bits.
	Mode fs.FileMode

	// Links is the hard link count
	Links int

	// Size is the size in bytes
	Size int64

	// ModTime has minute precision. Entries listed with a time of day
	// instead of a year are assumed to be from the current year.
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (e *FileEntry) IsDir() bool {
	return e.Mode.IsDir()
}

var months = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"May": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Aug": time.August,
	"Sep": time.September,
	"Oct": time.October,
	"Nov": time.November,
	"Dec": time.December,
}

// permBits maps positions 1-9 of a permission string to mode bits.
var permBits = [9]fs.FileMode{0400, 0200, 0100, 0040, 0020, 0010, 0004, 0002, 0001}

// readLines reads r to EOF and returns its lines without terminators.
// A final line without a newline is kept.
func readLines(r io.Reader) ([]string, error) {
	br := bufio.NewReader(r)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// parseListing decodes "ls -al" style lines. "total N" and blank lines are
// skipped; any other line that does not parse fails the whole listing.
// year stands in for entries that show a time of day instead of a year.
func parseListing(lines []string, year int, loc *time.Location) ([]*FileEntry, error) {
	entries := make([]*FileEntry, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "" || strings.HasPrefix(trimmed, "total ") {
			continue
		}
		entry, err := parseListLine(trimmed, year, loc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// nextField skips leading spaces and splits off the next space-delimited
// field, returning it and the unconsumed remainder.
func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// parseListLine parses one line of the form
//
//	drwxr-xr-x 2 owner group 4096 Jan  5 10:30 name
//	-rw-r--r-- 1 owner group  123 Dec 31  2019 name with  spaces
func parseListLine(line string, year int, loc *time.Location) (*FileEntry, error) {
	var f [8]string
	rest := strings.TrimRight(line, "\r\n")
	for i := range f {
		f[i], rest = nextField(rest)
		if f[i] == "" {
			return nil, &ParseError{Line: line, Reason: "too few fields"}
		}
	}

	name := strings.TrimLeft(rest, " ")
	if name == "" {
		return nil, &ParseError{Line: line, Reason: "missing name"}
	}

	mode, ok := parseMode(f[0])
	if !ok {
		return nil, &ParseError{Line: line, Reason: "bad permissions " + strconv.Quote(f[0])}
	}

	links, err := atoi(f[1])
	if err != nil {
		return nil, &ParseError{Line: line, Reason: "bad link count " + strconv.Quote(f[1])}
	}

	// f[2] and f[3] are owner and group, not kept.

	size, err := parseSize(f[4])
	if err != nil {
		return nil, &ParseError{Line: line, Reason: "bad size " + strconv.Quote(f[4])}
	}

	month, ok := months[f[5]]
	if !ok {
		return nil, &ParseError{Line: line, Reason: "bad month " + strconv.Quote(f[5])}
	}

	day, err := atoi(f[6])
	if err != nil || day < 1 || day > 31 {
		return nil, &ParseError{Line: line, Reason: "bad day " + strconv.Quote(f[6])}
	}

	var hour, minute int
	if hh, mm, isTime := strings.Cut(f[7], ":"); isTime {
		hour, err = atoi(hh)
		if err != nil || len(hh) > 2 || hour < 0 || hour > 23 {
			return nil, &ParseError{Line: line, Reason: "bad time " + strconv.Quote(f[7])}
		}
		minute, err = atoi(mm)
		if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
			return nil, &ParseError{Line: line, Reason: "bad time " + strconv.Quote(f[7])}
		}
	} else {
		year, err = atoi(f[7])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "bad year " + strconv.Quote(f[7])}
		}
	}

	return &FileEntry{
		Name:    name,
		Mode:    mode,
		Links:   links,
		Size:    size,
		ModTime: time.Date(year, month, day, hour, minute, 0, 0, loc),
	}, nil
}

var errNotDigits = errors.New("not a decimal number")

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// atoi accepts only unsigned decimal digits; strconv alone would take a
// leading sign.
func atoi(s string) (int, error) {
	if !isDigits(s) {
		return 0, errNotDigits
	}
	return strconv.Atoi(s)
}

func parseSize(s string) (int64, error) {
	if !isDigits(s) {
		return 0, errNotDigits
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseMode decodes a ten character permission string such as "drwxr-xr-x".
// 'd' and 'l' select directory and symlink; any other type character is
// treated as a regular file. Any character other than '-' in positions 1-9
// sets the bit, so setuid/sticky markers ('s', 't') still read as execute.
func parseMode(perms string) (fs.FileMode, bool) {
	if len(perms) != 10 {
		return 0, false
	}

	var mode fs.FileMode
	switch perms[0] {
	case 'd':
		mode = fs.ModeDir
	case 'l':
		mode = fs.ModeSymlink
	}

	for i, bit := range permBits {
		if c := perms[i+1]; c != '-' {
			if c == 'S' || c == 'T' {
				continue
			}
			mode |= bit
		}
	}
	return mode, true
}
