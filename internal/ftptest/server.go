// Package ftptest provides an in-process FTP server backed by memory, for
// tests of the ftpfs pool and the packages built on it.
//
// The server handles every command the pool sends (USER, PASS, TYPE, PASV,
// REST, RETR, STOR, LIST, ABOR, RNFR, RNTO, DELE, MKD, RMD, NOOP, QUIT).
// Each control connection is served by one goroutine that runs transfers
// synchronously, so a client that keeps a data connection open blocks
// further commands on that control connection until it closes it.
package ftptest

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	DefaultUser     = "user"
	DefaultPassword = "secret"
)

type entry struct {
	data    []byte
	dir     bool
	modTime time.Time
}

// Server is an in-memory FTP server listening on 127.0.0.1.
type Server struct {
	listener net.Listener

	mu        sync.Mutex
	user      string
	pass      string
	pasvHost  string
	entries   map[string]*entry
	overrides map[string]string
	holds     map[string]chan struct{}
	commands  []string
	conns     map[net.Conn]struct{}
	accepted  int

	wg sync.WaitGroup
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &Server{
		listener:  l,
		user:      DefaultUser,
		pass:      DefaultPassword,
		entries:   map[string]*entry{"": {dir: true, modTime: time.Now()}},
		overrides: make(map[string]string),
		holds:     make(map[string]chan struct{}),
		conns:     make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the control address, "127.0.0.1:port".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting, drops every control connection and waits for the
// connection goroutines to exit.
func (s *Server) Close() {
	_ = s.listener.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	for verb, ch := range s.holds {
		close(ch)
		delete(s.holds, verb)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// SetCredentials changes the accepted login. An empty password makes USER
// succeed with 230 on its own.
func (s *Server) SetCredentials(user, pass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user, s.pass = user, pass
}

// SetPASVHost overrides the four comma-separated host bytes advertised in
// 227 replies, e.g. "0,0,0,0". The data listener still binds 127.0.0.1.
func (s *Server) SetPASVHost(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pasvHost = host
}

// Override makes the server answer verb with reply (sent verbatim plus
// CRLF) instead of handling it. An empty reply removes the override.
func (s *Server) Override(verb, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reply == "" {
		delete(s.overrides, verb)
		return
	}
	s.overrides[verb] = reply
}

// Hold pauses handling of verb until the returned function is called.
// Commands already received wait; so do later ones.
func (s *Server) Hold(verb string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[verb] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[verb] == ch {
				delete(s.holds, verb)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Commands returns every command line received so far, across all
// connections, in arrival order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

// Count returns how many received commands had the given verb.
func (s *Server) Count(verb string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if v, _, _ := strings.Cut(c, " "); v == verb {
			n++
		}
	}
	return n
}

// Connections returns the number of control connections accepted so far.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// WriteFile stores a file, replacing any existing one. Parent directories
// are created as needed.
func (s *Server) WriteFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = clean(name)
	s.mkdirAllLocked(path.Dir("/" + name)[1:])
	s.entries[name] = &entry{data: slices.Clone(data), modTime: time.Now()}
}

// ReadFile returns the content of a stored file.
func (s *Server) ReadFile(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[clean(name)]
	if !ok || e.dir {
		return nil, false
	}
	return slices.Clone(e.data), true
}

// Mkdir creates a directory and its parents.
func (s *Server) Mkdir(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAllLocked(clean(name))
}

// Exists reports whether name is a stored file or directory.
func (s *Server) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[clean(name)]
	return ok
}

func (s *Server) mkdirAllLocked(name string) {
	for name != "" && name != "." {
		if _, ok := s.entries[name]; !ok {
			s.entries[name] = &entry{dir: true, modTime: time.Now()}
		}
		name = path.Dir("/" + name)[1:]
	}
}

// clean maps "./a/b", "/a/b" and "a/b/" to "a/b"; the root is "".
func clean(name string) string {
	return path.Clean("/" + strings.TrimPrefix(name, "./"))[1:]
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.accepted++
		s.mu.Unlock()
		s.track(conn)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			newConn(s, conn).run()
		}()
	}
}

// track registers a control or data connection so Close can break any
// handler blocked on it.
func (s *Server) track(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[nc] = struct{}{}
}

func (s *Server) untrack(nc net.Conn) {
	s.mu.Lock()
	delete(s.conns, nc)
	s.mu.Unlock()
	_ = nc.Close()
}

// conn is the per-control-connection state.
type conn struct {
	server *Server
	text   *textproto.Conn

	user     string
	loggedIn bool
	pasv     net.Listener
	rest     int64
	renameOf string
}

func newConn(s *Server, c net.Conn) *conn {
	return &conn{server: s, text: textproto.NewConn(c)}
}

func (c *conn) reply(code int, msg string) {
	_ = c.text.PrintfLine("%d %s", code, msg)
}

func (c *conn) run() {
	defer func() {
		if c.pasv != nil {
			_ = c.pasv.Close()
		}
	}()

	c.reply(220, "ftptest ready.")

	for {
		line, err := c.text.ReadLine()
		if err != nil {
			return
		}

		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s := c.server
		s.mu.Lock()
		s.commands = append(s.commands, line)
		hold := s.holds[verb]
		s.mu.Unlock()

		if hold != nil {
			<-hold
		}

		s.mu.Lock()
		override, ok := s.overrides[verb]
		s.mu.Unlock()
		if ok {
			_ = c.text.PrintfLine("%s", override)
			continue
		}

		if !c.handle(verb, arg) {
			return
		}
	}
}

// handle runs one command and reports whether the connection stays open.
func (c *conn) handle(verb, arg string) bool {
	if !c.loggedIn {
		switch verb {
		case "USER", "PASS", "QUIT":
		default:
			c.reply(530, "Not logged in.")
			return true
		}
	}

	switch verb {
	case "USER":
		c.handleUSER(arg)
	case "PASS":
		c.handlePASS(arg)
	case "TYPE":
		c.reply(200, "Type set to "+arg+".")
	case "NOOP":
		c.reply(200, "OK.")
	case "QUIT":
		c.reply(221, "Goodbye.")
		return false
	case "PASV":
		c.handlePASV()
	case "REST":
		c.handleREST(arg)
	case "RETR":
		c.handleRETR(arg)
	case "STOR":
		c.handleSTOR(arg)
	case "LIST":
		c.handleLIST(arg)
	case "ABOR":
		c.reply(225, "No transfer to abort.")
	case "RNFR":
		c.handleRNFR(arg)
	case "RNTO":
		c.handleRNTO(arg)
	case "DELE":
		c.handleDELE(arg)
	case "MKD":
		c.handleMKD(arg)
	case "RMD":
		c.handleRMD(arg)
	default:
		c.reply(502, "Command not implemented.")
	}
	return true
}

func (c *conn) handleUSER(arg string) {
	s := c.server
	s.mu.Lock()
	pass := s.pass
	s.mu.Unlock()

	c.user = arg
	if pass == "" {
		c.loggedIn = true
		c.reply(230, "User logged in.")
		return
	}
	c.reply(331, "Password required.")
}

func (c *conn) handlePASS(arg string) {
	s := c.server
	s.mu.Lock()
	ok := c.user == s.user && arg == s.pass
	s.mu.Unlock()

	if !ok {
		c.reply(530, "Login incorrect.")
		return
	}
	c.loggedIn = true
	c.reply(230, "User logged in.")
}

func (c *conn) handlePASV() {
	if c.pasv != nil {
		_ = c.pasv.Close()
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		c.reply(425, "Can't open passive connection.")
		return
	}
	c.pasv = ln

	port := ln.Addr().(*net.TCPAddr).Port

	s := c.server
	s.mu.Lock()
	host := s.pasvHost
	s.mu.Unlock()
	if host == "" {
		host = "127,0,0,1"
	}

	c.reply(227, fmt.Sprintf("Entering Passive Mode (%s,%d,%d).", host, port/256, port%256))
}

func (c *conn) handleREST(arg string) {
	offset, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || offset < 0 {
		c.reply(501, "Invalid restart offset.")
		return
	}
	c.rest = offset
	c.reply(350, fmt.Sprintf("Restarting at %d.", offset))
}

// dataConn accepts the client's connection on the passive listener and
// consumes it, along with any REST offset.
func (c *conn) dataConn() (net.Conn, int64, error) {
	offset := c.rest
	c.rest = 0

	if c.pasv == nil {
		return nil, 0, fmt.Errorf("no passive listener")
	}
	ln := c.pasv
	c.pasv = nil
	defer ln.Close()

	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(5 * time.Second))
	}
	dc, err := ln.Accept()
	if err != nil {
		return nil, 0, err
	}
	c.server.track(dc)
	return dc, offset, nil
}

// discardData drops a pending passive listener after a refused transfer.
func (c *conn) discardData() {
	c.rest = 0
	if c.pasv != nil {
		_ = c.pasv.Close()
		c.pasv = nil
	}
}

func (c *conn) handleRETR(arg string) {
	name := clean(arg)
	s := c.server
	s.mu.Lock()
	e, ok := s.entries[name]
	var data []byte
	if ok && !e.dir {
		data = slices.Clone(e.data)
	}
	s.mu.Unlock()

	if !ok || e.dir {
		c.discardData()
		c.reply(550, "No such file.")
		return
	}

	dc, offset, err := c.dataConn()
	if err != nil {
		c.reply(425, "Can't open data connection.")
		return
	}
	defer c.server.untrack(dc)

	c.reply(150, "Opening BINARY mode data connection for "+name+".")

	if offset < int64(len(data)) {
		if _, err := dc.Write(data[offset:]); err != nil {
			c.reply(426, "Connection closed; transfer aborted.")
			return
		}
	}
	_ = dc.Close()
	c.reply(226, "Transfer complete.")
}

func (c *conn) handleSTOR(arg string) {
	name := clean(arg)
	s := c.server
	s.mu.Lock()
	parent, ok := s.entries[path.Dir("/" + name)[1:]]
	existing, exists := s.entries[name]
	s.mu.Unlock()

	if name == "" || !ok || !parent.dir || (exists && existing.dir) {
		c.discardData()
		c.reply(553, "Cannot create file.")
		return
	}

	dc, offset, err := c.dataConn()
	if err != nil {
		c.reply(425, "Can't open data connection.")
		return
	}
	defer c.server.untrack(dc)

	c.reply(150, "Ok to send data.")

	received, readErr := io.ReadAll(dc)

	s.mu.Lock()
	var data []byte
	if e, ok := s.entries[name]; ok && offset > 0 {
		data = e.data
	}
	if int64(len(data)) < offset {
		data = append(data, make([]byte, offset-int64(len(data)))...)
	}
	data = append(data[:offset:offset], received...)
	s.entries[name] = &entry{data: data, modTime: time.Now()}
	s.mu.Unlock()

	if readErr != nil {
		c.reply(426, "Connection closed; transfer aborted.")
		return
	}
	c.reply(226, "Transfer complete.")
}

func (c *conn) handleLIST(arg string) {
	// Skip option words such as "-al".
	arg = strings.TrimLeft(arg, " ")
	for strings.HasPrefix(arg, "-") {
		_, arg, _ = strings.Cut(arg, " ")
		arg = strings.TrimLeft(arg, " ")
	}
	dir := clean(arg)

	s := c.server
	s.mu.Lock()
	e, ok := s.entries[dir]
	var lines []string
	if ok && e.dir {
		lines = s.listLocked(dir)
	}
	s.mu.Unlock()

	if !ok || !e.dir {
		c.discardData()
		c.reply(550, "No such directory.")
		return
	}

	dc, _, err := c.dataConn()
	if err != nil {
		c.reply(425, "Can't open data connection.")
		return
	}
	defer c.server.untrack(dc)

	c.reply(150, "Here comes the directory listing.")

	for _, line := range lines {
		if _, err := io.WriteString(dc, line+"\r\n"); err != nil {
			c.reply(426, "Connection closed; transfer aborted.")
			return
		}
	}
	_ = dc.Close()
	c.reply(226, "Directory send OK.")
}

// listLocked formats the children of dir the way "ls -al" does, with "."
// and ".." first.
func (s *Server) listLocked(dir string) []string {
	var names []string
	for name := range s.entries {
		if name != "" && path.Dir("/" + name)[1:] == dir {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	self := s.entries[dir]
	lines := []string{
		formatLine(self, "."),
		formatLine(self, ".."),
	}
	for _, name := range names {
		lines = append(lines, formatLine(s.entries[name], path.Base(name)))
	}
	return lines
}

func formatLine(e *entry, name string) string {
	perms, links, size := "-rw-r--r--", 1, int64(len(e.data))
	if e.dir {
		perms, links, size = "drwxr-xr-x", 2, 4096
	}

	stamp := e.modTime.Format("Jan _2 15:04")
	if e.modTime.Year() != time.Now().Year() {
		stamp = e.modTime.Format("Jan _2  2006")
	}
	return fmt.Sprintf("%s %3d ftp      ftp      %8d %s %s", perms, links, size, stamp, name)
}

func (c *conn) handleRNFR(arg string) {
	name := clean(arg)
	if !c.server.Exists(name) || name == "" {
		c.reply(550, "No such file or directory.")
		return
	}
	c.renameOf = name
	c.reply(350, "Ready for RNTO.")
}

func (c *conn) handleRNTO(arg string) {
	from := c.renameOf
	c.renameOf = ""
	if from == "" {
		c.reply(503, "RNFR required first.")
		return
	}

	to := clean(arg)
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if parent, ok := s.entries[path.Dir("/" + to)[1:]]; !ok || !parent.dir || to == "" {
		c.reply(553, "Rename failed.")
		return
	}

	moved := make(map[string]*entry)
	for name, e := range s.entries {
		if name == from || strings.HasPrefix(name, from+"/") {
			moved[to+strings.TrimPrefix(name, from)] = e
			delete(s.entries, name)
		}
	}
	for name, e := range moved {
		s.entries[name] = e
	}
	c.reply(250, "Rename successful.")
}

func (c *conn) handleDELE(arg string) {
	name := clean(arg)
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || e.dir {
		c.reply(550, "No such file.")
		return
	}
	delete(s.entries, name)
	c.reply(250, "File deleted.")
}

func (c *conn) handleMKD(arg string) {
	name := clean(arg)
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.entries[path.Dir("/" + name)[1:]]
	if _, exists := s.entries[name]; exists || !ok || !parent.dir {
		c.reply(550, "Create directory operation failed.")
		return
	}
	s.entries[name] = &entry{dir: true, modTime: time.Now()}
	c.reply(257, strconv.Quote("/"+name)+" created.")
}

func (c *conn) handleRMD(arg string) {
	name := clean(arg)
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok || !e.dir || name == "" {
		c.reply(550, "No such directory.")
		return
	}
	for other := range s.entries {
		if strings.HasPrefix(other, name+"/") {
			c.reply(550, "Directory not empty.")
			return
		}
	}
	delete(s.entries, name)
	c.reply(250, "Directory removed.")
}
