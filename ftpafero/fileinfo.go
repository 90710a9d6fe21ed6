package ftpafero

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/gonzalop/ftpfs"
)

var (
	errIsDir  = errors.New("is a directory")
	errNotDir = errors.New("not a directory")
)

// entryName is the name an entry is looked up by. A symlink listed as
// "name -> target" is found by the part before the arrow.
func entryName(e *ftpfs.FileEntry) string {
	if e.Mode&fs.ModeSymlink != 0 {
		if name, _, ok := strings.Cut(e.Name, " -> "); ok {
			return name
		}
	}
	return e.Name
}

type fileInfo struct {
	entry *ftpfs.FileEntry
	name  string
}

func newFileInfo(e *ftpfs.FileEntry) *fileInfo {
	return &fileInfo{entry: e, name: entryName(e)}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.entry.Size }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.entry.Mode }
func (fi *fileInfo) ModTime() time.Time { return fi.entry.ModTime }
func (fi *fileInfo) IsDir() bool        { return fi.entry.IsDir() }

// Sys returns the underlying *ftpfs.FileEntry.
func (fi *fileInfo) Sys() any { return fi.entry }

// rootInfo describes the server root, which has no listing entry of its own.
type rootInfo struct{}

func (rootInfo) Name() string       { return "/" }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() any           { return nil }
