package ftpfs

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// parsePASV extracts the data address from the text of a 227 reply.
// The first run of digits is read as six comma-separated byte values
// h1,h2,h3,h4,p1,p2.
//
// Example: "Entering Passive Mode (104,236,22,129,200,3)."
// Returns: "104.236.22.129:51203" (200*256 + 3 = 51203)
func parsePASV(text string) (string, error) {
	start := strings.IndexFunc(text, func(r rune) bool { return r >= '0' && r <= '9' })
	if start < 0 {
		return "", fmt.Errorf("no address in PASV reply: %q", text)
	}
	end := start
	for end < len(text) && (text[end] == ',' || (text[end] >= '0' && text[end] <= '9')) {
		end++
	}

	fields := strings.Split(text[start:end], ",")
	if len(fields) < 6 {
		return "", fmt.Errorf("short PASV address: %q", text[start:end])
	}

	var seg [6]int
	for i := range seg {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("invalid PASV value %q", fields[i])
		}
		seg[i] = v
	}

	host := fmt.Sprintf("%d.%d.%d.%d", seg[0], seg[1], seg[2], seg[3])
	port := seg[4]<<8 + seg[5]
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// resolveDataAddr replaces an unroutable 0.0.0.0 host, which some servers
// behind NAT advertise, with the host of the control connection.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil || host != "0.0.0.0" {
		return pasvAddr
	}
	return net.JoinHostPort(controlHost, port)
}

// openPASV negotiates a passive data connection and stores it on the
// session. On failure no data connection exists and the control channel is
// left as the failing step found it.
func (s *session) openPASV(ctx context.Context) error {
	resp, err := s.expect("PASV", 227)
	if err != nil {
		return err
	}

	addr, err := parsePASV(resp.Message)
	if err != nil {
		return &ProtocolError{Command: "PASV", Response: resp.Message, Code: resp.Code, Err: err}
	}
	addr = resolveDataAddr(addr, s.pool.host)

	conn, err := s.pool.dial(ctx, addr)
	if err != nil {
		return &TransportError{Op: "data dial", Err: err}
	}

	s.data = conn
	return nil
}

// clearData forgets the data connection and the transfer it was opened for.
func (s *session) clearData() {
	s.data = nil
	s.cmd = ""
	s.verb = ""
	s.path = ""
	s.offset = 0
}

// dropData closes the data socket without telling the server. It is used
// when the transfer command never started or already completed.
func (s *session) dropData() {
	if s.data == nil {
		return
	}
	_ = s.data.Close()
	s.clearData()
}

// closeData ends a possibly unfinished transfer: it closes the data socket,
// then sends ABOR and expects one of 426/226/225 followed by 225 or 226. If
// any of that fails the control channel can no longer be trusted and the
// whole session is torn down.
func (s *session) closeData() error {
	if s.data == nil {
		return nil
	}

	var result *multierror.Error
	if err := s.data.Close(); err != nil {
		result = multierror.Append(result, &TransportError{Op: "data close", Err: err})
	}
	s.clearData()

	if err := s.abort(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		s.teardown(err)
		return err
	}
	return nil
}

func (s *session) abort() error {
	resp, err := s.command("ABOR")
	if err != nil {
		return err
	}
	if !slices.Contains([]int{426, 226, 225}, resp.Code) {
		return protocolError("ABOR", resp)
	}

	resp, err = s.receive("ABOR")
	if err != nil {
		return err
	}
	if resp.Code != 225 && resp.Code != 226 {
		return protocolError("ABOR", resp)
	}
	return nil
}

// finishData closes the data socket of a transfer the server is expected
// to have completed on its own and reads the 226 completion reply.
func (s *session) finishData() error {
	command := s.cmd
	s.dropData()

	resp, err := s.receive(command)
	if err != nil {
		return err
	}
	if resp.Code != 226 {
		return protocolError(command, resp)
	}
	return nil
}
