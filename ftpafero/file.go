package ftpafero

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

var _ afero.File = (*File)(nil)

// File is an open FTP file or directory. Reads and writes go through the
// pool at the file's tracked offset, so sequential access reuses one data
// connection. A File is not safe for concurrent use.
type File struct {
	fs     *Fs
	name   string
	path   string
	flag   int
	dir    bool
	info   fs.FileInfo // nil until first needed after a create
	offset int64
	closed bool

	// Directory listing state for Readdir.
	listed  bool
	entries []fs.FileInfo
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.name
}

func (f *File) stat() (fs.FileInfo, error) {
	if f.info == nil {
		info, err := f.fs.Stat(f.path)
		if err != nil {
			return nil, err
		}
		f.info = info
	}
	return f.info, nil
}

func (f *File) check(op string, write bool) error {
	if f.closed {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrClosed}
	}
	if write && f.flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrPermission}
	}
	if !write && f.flag&os.O_WRONLY != 0 {
		return &os.PathError{Op: op, Path: f.name, Err: os.ErrPermission}
	}
	if f.dir {
		return &os.PathError{Op: op, Path: f.name, Err: errIsDir}
	}
	return nil
}

// Read reads from the current offset. It returns io.EOF once the server
// has no more bytes.
func (f *File) Read(p []byte) (int, error) {
	if err := f.check("read", false); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.fs.pool.ReadFile(f.fs.ctx, f.path, f.offset, p)
	if err != nil {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: err}
	}
	f.offset += int64(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAt reads len(p) bytes at off without moving the offset.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.check("read", false); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, &os.PathError{Op: "readat", Path: f.name, Err: errors.New("negative offset")}
	}

	n, err := f.fs.pool.ReadFile(f.fs.ctx, f.path, off, p)
	if err != nil {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: err}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Write writes at the current offset. The upload stays open until Close or
// Sync.
func (f *File) Write(p []byte) (int, error) {
	if err := f.check("write", true); err != nil {
		return 0, err
	}

	n, err := f.fs.pool.WriteFile(f.fs.ctx, f.path, f.offset, p)
	if err != nil {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: err}
	}
	f.offset += int64(n)
	return n, nil
}

// WriteAt writes at off without moving the offset.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if err := f.check("write", true); err != nil {
		return 0, err
	}
	if f.flag&os.O_APPEND != 0 {
		return 0, &os.PathError{Op: "writeat", Path: f.name, Err: errors.New("invalid use of WriteAt on file opened with O_APPEND")}
	}

	n, err := f.fs.pool.WriteFile(f.fs.ctx, f.path, off, p)
	if err != nil {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: err}
	}
	return n, nil
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek moves the offset. Seeking relative to the end flushes pending
// writes and lists the parent directory to learn the size.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: os.ErrClosed}
	}

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		if err := f.Sync(); err != nil {
			return 0, err
		}
		f.info = nil
		info, err := f.stat()
		if err != nil {
			return 0, err
		}
		base = info.Size()
	default:
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: errors.New("invalid whence")}
	}

	if base+offset < 0 {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: errors.New("negative position")}
	}
	f.offset = base + offset
	return f.offset, nil
}

// Stat flushes pending writes and returns fresh information about the file.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, &os.PathError{Op: "stat", Path: f.name, Err: os.ErrClosed}
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}
	f.info = nil
	return f.stat()
}

// Sync finishes any transfer left open on the file.
func (f *File) Sync() error {
	if err := f.fs.pool.CloseFile(f.fs.ctx, f.path); err != nil {
		return &os.PathError{Op: "sync", Path: f.name, Err: err}
	}
	return nil
}

// Truncate supports only truncation to zero, which recreates the file.
func (f *File) Truncate(size int64) error {
	if err := f.check("truncate", true); err != nil {
		return err
	}
	if size != 0 {
		return &os.PathError{Op: "truncate", Path: f.name, Err: errors.ErrUnsupported}
	}
	if err := f.fs.pool.CloseFile(f.fs.ctx, f.path); err != nil {
		return &os.PathError{Op: "truncate", Path: f.name, Err: err}
	}
	if err := f.fs.pool.CreateFile(f.fs.ctx, f.path); err != nil {
		return &os.PathError{Op: "truncate", Path: f.name, Err: err}
	}
	f.info = nil
	f.offset = 0
	return nil
}

// Close finishes any transfer left open on the file.
func (f *File) Close() error {
	if f.closed {
		return &os.PathError{Op: "close", Path: f.name, Err: os.ErrClosed}
	}
	f.closed = true
	if f.dir {
		return nil
	}
	return f.Sync()
}

// Readdir returns directory entries without "." and "..", sorted by name.
// With count > 0 it returns at most count entries and io.EOF at the end;
// otherwise it returns everything that is left.
func (f *File) Readdir(count int) ([]fs.FileInfo, error) {
	if f.closed {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: os.ErrClosed}
	}
	if !f.dir {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: errNotDir}
	}

	if !f.listed {
		entries, err := f.fs.readDir(f.path)
		if err != nil {
			return nil, err
		}
		f.entries = entries
		f.listed = true
	}

	if count <= 0 {
		rest := f.entries
		f.entries = nil
		return rest, nil
	}
	if len(f.entries) == 0 {
		return nil, io.EOF
	}
	n := min(count, len(f.entries))
	out := f.entries[:n]
	f.entries = f.entries[n:]
	return out, nil
}

// Readdirnames returns the names Readdir would return.
func (f *File) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}
