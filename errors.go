package ftpfs

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned by operations on a pool that has been closed,
	// including callers that were waiting for a free session when Close ran.
	ErrPoolClosed = errors.New("ftpfs: pool closed")

	// ErrMalformedReply marks a control-channel line that is not a valid
	// FTP status line. It is wrapped by a *ProtocolError.
	ErrMalformedReply = errors.New("malformed reply")
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation: either the server answered with a code the
// operation did not expect, or it sent something that is not a reply at all.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "DELE ./file.txt")
	Command string

	// Response is the reply text received from the server (e.g., "File not found")
	Response string

	// Code is the numeric FTP response code (e.g., 550), or 0 for a malformed reply
	Code int

	// Err is set when the reply could not be parsed
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ftp: %s failed: %v: %q", e.Command, e.Err, e.Response)
	}
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Unwrap returns the parse failure, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is4xx returns true if the error code is in the 4xx range (temporary failure).
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx returns true if the error code is in the 5xx range (permanent failure).
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary returns true if the error is a temporary failure (4xx).
// This can be used to implement retry logic in the caller.
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Is5xx()
}

// TransportError is a failure of the byte stream underneath the protocol:
// dialing, sending or receiving on a control or data socket.
type TransportError struct {
	// Op is the failed step ("dial", "send", "recv", "data dial", "data read", "data write")
	Op string

	// Err is the underlying network error
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ftp: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError reports a directory listing line that could not be decoded.
// A single bad line fails the whole listing.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ftp: cannot parse listing line %q: %s", e.Line, e.Reason)
}

func protocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
