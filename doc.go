// Package ftpfs exposes file and directory operations backed by an FTP
// server through a bounded pool of reusable sessions.
//
// # Overview
//
// A Pool holds a fixed number of session slots. Each slot owns at most one
// control connection, opened lazily and kept across operations, and at most
// one passive-mode data connection. Every operation borrows a slot, runs a
// short command sequence and returns it:
//
//   - ReadFile and WriteFile move bytes at an offset. A data connection left
//     open by a chunk is reused by the next request for the same file and
//     offset, so a sequential reader or writer pays for PASV only once.
//   - ListDir runs "LIST -al" and parses the ls-style output into FileEntry
//     values.
//   - Rename, CreateFile, RemoveFile, CreateDir and RemoveDir are one or two
//     control commands each.
//   - CloseFile finishes idle transfers on a file.
//
// When all slots are busy, callers block until one is released or their
// context ends. Before a transfer starts, idle data connections that would
// conflict with it (a pending upload when a download of the same file is
// requested, or a second upload) are aborted, so a slot can never be held
// hostage by a transfer nobody will continue.
//
// # Basic Usage
//
//	pool, err := ftpfs.New("ftp.example.com:21", "user", "secret", 4,
//	    ftpfs.WithTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	ctx := context.Background()
//	if _, err := pool.WriteFile(ctx, "notes.txt", 0, []byte("hello")); err != nil {
//	    log.Fatal(err)
//	}
//	if err := pool.CloseFile(ctx, "notes.txt"); err != nil {
//	    log.Fatal(err)
//	}
//
//	buf := make([]byte, 4096)
//	n, err := pool.ReadFile(ctx, "notes.txt", 0, buf)
//
// # Error Handling
//
// Failures are typed. A server reply with an unexpected code, or a line that
// is not a reply at all, is a *ProtocolError:
//
//	err := pool.RemoveFile(ctx, "missing.txt")
//	var pe *ftpfs.ProtocolError
//	if errors.As(err, &pe) && pe.Code == 550 {
//	    // not found
//	}
//
// Socket failures are a *TransportError and a bad listing line is a
// *ParseError. Transport failures and malformed replies tear the affected
// session down; it reconnects on its next use. Nothing is retried
// automatically.
//
// # Filesystem Adapter
//
// Package ftpafero wraps a Pool as an afero.Fs.
package ftpfs
