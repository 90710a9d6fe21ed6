// Package ftpafero adapts an ftpfs.Pool to the afero.Fs interface, so code
// written against afero can read and write an FTP server.
//
// Lookups list the parent directory and match the base name; nothing is
// cached between calls. Permission bits, ownership and timestamps are read
// from listings but cannot be changed: Chmod, Chown and Chtimes return
// errors.ErrUnsupported, as does Truncate to a non-zero size.
package ftpafero

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gonzalop/ftpfs"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

var _ afero.Fs = (*Fs)(nil)

// Fs is an afero.Fs backed by an FTP session pool. It does not own the
// pool; closing it is the caller's job.
type Fs struct {
	pool *ftpfs.Pool
	ctx  context.Context
}

// New returns a filesystem over pool.
func New(pool *ftpfs.Pool) *Fs {
	return &Fs{pool: pool, ctx: context.Background()}
}

// WithContext returns a copy of f whose operations, and those of files it
// opens, use ctx for admission and dialing.
func (f *Fs) WithContext(ctx context.Context) *Fs {
	return &Fs{pool: f.pool, ctx: ctx}
}

// Name implements afero.Fs.
func (f *Fs) Name() string {
	return "ftpfs"
}

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Stat lists the parent directory of name and returns the matching entry.
// "." and ".." are never matched. The root is always a directory. The size
// of a file still being written through an open File may be stale; File.Stat
// flushes first.
func (f *Fs) Stat(name string) (os.FileInfo, error) {
	p := clean(name)
	if p == "" {
		return rootInfo{}, nil
	}

	dir, base := path.Split(p)
	entries, err := f.pool.ListDir(f.ctx, dir)
	if err != nil {
		var pe *ftpfs.ProtocolError
		if errors.As(err, &pe) && pe.Is5xx() {
			return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
		}
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		if entryName(e) == base {
			return newFileInfo(e), nil
		}
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

// Open opens name for reading.
func (f *Fs) Open(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates or truncates name and opens it for reading and writing.
func (f *Fs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens name with the os.O_* flags. perm is ignored; the server
// decides the mode of new files.
func (f *Fs) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	info, err := f.Stat(name)
	exists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	switch {
	case !exists && flag&os.O_CREATE == 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	case exists && info.IsDir() && writable:
		return nil, &os.PathError{Op: "open", Path: name, Err: errIsDir}
	}

	if !exists || (writable && flag&os.O_TRUNC != 0) {
		if err := f.pool.CreateFile(f.ctx, clean(name)); err != nil {
			return nil, &os.PathError{Op: "open", Path: name, Err: err}
		}
		info = nil
	}

	file := &File{fs: f, name: name, path: clean(name), flag: flag, info: info}
	file.dir = info != nil && info.IsDir()
	if flag&os.O_APPEND != 0 && info != nil {
		file.offset = info.Size()
	}
	return file, nil
}

// Mkdir creates a single directory.
func (f *Fs) Mkdir(name string, _ os.FileMode) error {
	if err := f.pool.CreateDir(f.ctx, clean(name)); err != nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return nil
}

// MkdirAll creates name and any missing parents.
func (f *Fs) MkdirAll(name string, perm os.FileMode) error {
	p := clean(name)
	if p == "" {
		return nil
	}

	var prefix string
	for _, part := range strings.Split(p, "/") {
		prefix = path.Join(prefix, part)
		info, err := f.Stat(prefix)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return &os.PathError{Op: "mkdir", Path: prefix, Err: errNotDir}
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
		if err := f.Mkdir(prefix, perm); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes a file or an empty directory.
func (f *Fs) Remove(name string) error {
	info, err := f.Stat(name)
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = f.pool.RemoveDir(f.ctx, clean(name))
	} else {
		err = f.pool.RemoveFile(f.ctx, clean(name))
	}
	if err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

// RemoveAll deletes name and everything below it. A missing name is not an
// error. Children that fail to delete are reported together.
func (f *Fs) RemoveAll(name string) error {
	info, err := f.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return f.Remove(name)
	}

	entries, err := f.pool.ListDir(f.ctx, clean(name))
	if err != nil {
		return &os.PathError{Op: "removeall", Path: name, Err: err}
	}

	var result *multierror.Error
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child := path.Join(clean(name), entryName(e))
		if e.IsDir() {
			err = f.RemoveAll(child)
		} else if err = f.pool.RemoveFile(f.ctx, child); err != nil {
			err = &os.PathError{Op: "remove", Path: child, Err: err}
		}
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	if clean(name) == "" {
		return nil
	}
	if err := f.pool.RemoveDir(f.ctx, clean(name)); err != nil {
		return &os.PathError{Op: "removeall", Path: name, Err: err}
	}
	return nil
}

// Rename moves oldname to newname.
func (f *Fs) Rename(oldname, newname string) error {
	if err := f.pool.Rename(f.ctx, clean(oldname), clean(newname)); err != nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: err}
	}
	return nil
}

func (f *Fs) Chmod(name string, _ os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: errors.ErrUnsupported}
}

func (f *Fs) Chown(name string, _, _ int) error {
	return &os.PathError{Op: "chown", Path: name, Err: errors.ErrUnsupported}
}

func (f *Fs) Chtimes(name string, _, _ time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: errors.ErrUnsupported}
}

// readDir lists name without "." and "..", sorted by name.
func (f *Fs) readDir(name string) ([]fs.FileInfo, error) {
	entries, err := f.pool.ListDir(f.ctx, clean(name))
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
	}

	infos := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		infos = append(infos, newFileInfo(e))
	}
	slices.SortFunc(infos, func(a, b fs.FileInfo) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return infos, nil
}
