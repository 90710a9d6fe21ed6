package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/gonzalop/ftpfs"
	"github.com/gonzalop/ftpfs/ftpafero"
	"github.com/spf13/afero"
)

type cli struct {
	fs     *ftpafero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (c *cli) dispatch(a *args) error {
	switch {
	case a.Ls != nil:
		return c.ls(a.Ls)
	case a.Cat != nil:
		return c.cat(a.Cat.Path)
	case a.Get != nil:
		return c.get(a.Get)
	case a.Put != nil:
		return c.put(a.Put)
	case a.Touch != nil:
		return c.touch(a.Touch.Path)
	case a.Rm != nil:
		return c.rm(a.Rm)
	case a.Mkdir != nil:
		return c.mkdir(a.Mkdir)
	case a.Rmdir != nil:
		return c.rmdir(a.Rmdir.Path)
	case a.Mv != nil:
		return c.fs.Rename(a.Mv.From, a.Mv.To)
	case a.Stat != nil:
		return c.stat(a.Stat.Path)
	}
	return errors.New("missing command")
}

func (c *cli) ls(cmd *lsCmd) error {
	infos, err := afero.ReadDir(c.fs, cmd.Path)
	if err != nil {
		return err
	}

	if !cmd.Long {
		for _, info := range infos {
			fmt.Fprintln(c.stdout, info.Name())
		}
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 0, 1, ' ', tabwriter.AlignRight)
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t %s\t %s\n",
			info.Mode(), info.Size(), info.ModTime().Format(time.DateTime), info.Name())
	}
	return tw.Flush()
}

func (c *cli) cat(name string) error {
	f, err := c.fs.Open(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(c.stdout, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) get(cmd *getCmd) error {
	local := cmd.Local
	if local == "" {
		local = path.Base(cmd.Remote)
	}

	src, err := c.fs.Open(cmd.Remote)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.Create(local)
	if err != nil {
		return err
	}

	var w io.Writer = dst
	if cmd.Progress {
		w = newProgressWriter(dst, c.stderr, cmd.Remote, info.Size())
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return src.Close()
}

func (c *cli) put(cmd *putCmd) error {
	remote := cmd.Remote
	if remote == "" {
		remote = filepath.Base(cmd.Local)
	}

	var (
		src  io.Reader
		size int64 = -1
	)
	if cmd.Local == "-" {
		src = c.stdin
	} else {
		f, err := os.Open(cmd.Local)
		if err != nil {
			return err
		}
		defer f.Close()
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		src = f
	}

	dst, err := c.fs.Create(remote)
	if err != nil {
		return err
	}

	var w io.Writer = dst
	if cmd.Progress {
		w = newProgressWriter(dst, c.stderr, remote, size)
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (c *cli) touch(name string) error {
	f, err := c.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (c *cli) rm(cmd *rmCmd) error {
	if cmd.Recursive {
		return c.fs.RemoveAll(cmd.Path)
	}

	info, err := c.fs.Stat(cmd.Path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory (use -r)", cmd.Path)
	}
	return c.fs.Remove(cmd.Path)
}

func (c *cli) mkdir(cmd *mkdirCmd) error {
	if cmd.Parents {
		return c.fs.MkdirAll(cmd.Path, 0o755)
	}
	return c.fs.Mkdir(cmd.Path, 0o755)
}

func (c *cli) rmdir(name string) error {
	info, err := c.fs.Stat(name)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", name)
	}
	return c.fs.Remove(name)
}

func (c *cli) stat(name string) error {
	info, err := c.fs.Stat(name)
	if err != nil {
		return err
	}

	kind := "file"
	switch {
	case info.IsDir():
		kind = "directory"
	case info.Mode()&fs.ModeSymlink != 0:
		kind = "symlink"
	}

	fmt.Fprintf(c.stdout, "Name:     %s\n", info.Name())
	fmt.Fprintf(c.stdout, "Type:     %s\n", kind)
	fmt.Fprintf(c.stdout, "Size:     %d\n", info.Size())
	fmt.Fprintf(c.stdout, "Mode:     %s\n", info.Mode())
	if e, ok := info.Sys().(*ftpfs.FileEntry); ok {
		fmt.Fprintf(c.stdout, "Links:    %d\n", e.Links)
	}
	fmt.Fprintf(c.stdout, "Modified: %s\n", info.ModTime().Format(time.RFC3339))
	return nil
}
