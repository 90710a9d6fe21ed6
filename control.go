package ftpfs

import (
	"bufio"
	"errors"
	"io"
	"slices"
	"strings"
)

// Response represents an FTP server reply.
type Response struct {
	// Code is the three-digit response code (e.g., 220, 550)
	Code int

	// Message is the human-readable message from the server
	Message string

	// Lines contains all lines of the response (for multi-line responses)
	Lines []string
}

// String returns the full response as a string.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// isStatusLine reports whether line opens an FTP reply: three digits, a
// non-zero first digit, then a space (last line) or a hyphen (more follow).
func isStatusLine(line string) bool {
	if len(line) < 4 {
		return false
	}
	for i := range 3 {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return line[0] != '0' && (line[3] == ' ' || line[3] == '-')
}

// readResponse reads a complete FTP response from the reader.
// It handles both single-line and multi-line responses.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"220-Welcome to FTP\r\n"
//	"    anything, including 230 lookalikes\r\n"
//	"220 Ready\r\n"
//
// A multi-line reply ends at the first line carrying the opening code
// followed by a space; every line before it is consumed. The code of the
// opening line is returned.
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if !isStatusLine(line) {
		return nil, &ProtocolError{Response: line, Err: ErrMalformedReply}
	}

	code := int(line[0]-'0')*100 + int(line[1]-'0')*10 + int(line[2]-'0')
	lines := []string{line}

	if line[3] == ' ' {
		return &Response{
			Code:    code,
			Message: line[4:],
			Lines:   lines,
		}, nil
	}

	terminator := line[:3] + " "
	for {
		next, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		next = strings.TrimRight(next, "\r\n")
		lines = append(lines, next)
		if strings.HasPrefix(next, terminator) {
			break
		}
	}

	var messageLines []string
	for _, l := range lines {
		if isStatusLine(l) {
			l = l[4:]
		}
		messageLines = append(messageLines, l)
	}

	return &Response{
		Code:    code,
		Message: strings.Join(messageLines, "\n"),
		Lines:   lines,
	}, nil
}

// redact hides the password of a PASS command in logs and errors.
func redact(command string) string {
	if strings.HasPrefix(command, "PASS ") {
		return "PASS ****"
	}
	return command
}

// send writes command followed by CRLF on the control connection. A
// failure tears the whole session down.
func (s *session) send(command string) error {
	s.pool.logger.Debug("ftp command", "session", s.index, "cmd", redact(command))

	buf := []byte(command + "\r\n")
	for len(buf) > 0 {
		n, err := s.ctrl.Write(buf)
		if err != nil {
			s.teardown(err)
			return &TransportError{Op: "send", Err: err}
		}
		buf = buf[n:]
	}
	return nil
}

// receive reads one reply from the control connection. A transport failure
// or a malformed line tears the whole session down. command is only used to
// label errors.
func (s *session) receive(command string) (*Response, error) {
	resp, err := readResponse(s.reader)
	if err != nil {
		s.teardown(err)
		var pe *ProtocolError
		if errors.As(err, &pe) {
			pe.Command = redact(command)
			return nil, pe
		}
		return nil, &TransportError{Op: "recv", Err: err}
	}

	s.pool.logger.Debug("ftp response", "session", s.index, "code", resp.Code, "message", resp.Message)
	return resp, nil
}

// command sends a command and returns the reply. Unexpected codes are left
// for the caller to judge.
func (s *session) command(command string) (*Response, error) {
	if err := s.send(command); err != nil {
		return nil, err
	}
	return s.receive(command)
}

// expect sends a command and verifies the response code is one of codes.
// An unexpected code leaves the session connected.
func (s *session) expect(command string, codes ...int) (*Response, error) {
	resp, err := s.command(command)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(codes, resp.Code) {
		return resp, protocolError(redact(command), resp)
	}

	return resp, nil
}
