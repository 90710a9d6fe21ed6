package ftpfs

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestProtocolError(t *testing.T) {
	t.Parallel()
	err := &ProtocolError{
		Command:  "STOR ./file.txt",
		Response: "Permission denied",
		Code:     550,
	}

	if !err.Is5xx() || !err.IsPermanent() {
		t.Error("ProtocolError with code 550 should be permanent")
	}
	if err.Is4xx() || err.IsTemporary() {
		t.Error("ProtocolError with code 550 should not be temporary")
	}

	expectedMsg := "ftp: STOR ./file.txt failed: Permission denied (code 550)"
	if err.Error() != expectedMsg {
		t.Errorf("ProtocolError.Error() = %q, want %q", err.Error(), expectedMsg)
	}

	temp := &ProtocolError{Command: "RETR ./f", Code: 425}
	if !temp.IsTemporary() || temp.IsPermanent() {
		t.Error("ProtocolError with code 425 should be temporary")
	}
}

func TestProtocolError_Malformed(t *testing.T) {
	t.Parallel()
	err := &ProtocolError{Command: "NOOP", Response: "<html>", Err: ErrMalformedReply}

	if !errors.Is(err, ErrMalformedReply) {
		t.Error("errors.Is(err, ErrMalformedReply) = false")
	}
	if !strings.Contains(err.Error(), "malformed reply") || !strings.Contains(err.Error(), `"<html>"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()
	err := &TransportError{Op: "data read", Err: io.ErrUnexpectedEOF}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("TransportError does not unwrap to its cause")
	}
	if err.Error() != "ftp: data read: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestParseError(t *testing.T) {
	t.Parallel()
	err := &ParseError{Line: "junk", Reason: "too few fields"}
	if err.Error() != `ftp: cannot parse listing line "junk": too few fields` {
		t.Errorf("Error() = %q", err.Error())
	}
}
