// Package protoerr defines the error taxonomy shared by the debug
// wire codec, framer, inferior model, and session REPL (spec §7).
package protoerr

import "fmt"

// MalformedWire is returned by the Value codec when it reads an
// unknown tag byte, a truncated payload, or a pointer width other
// than 4 or 8. It is always fatal to the session.
type MalformedWire struct {
	// Offender is the offending tag byte, when known.
	Offender byte
	Reason   string
}

func (e *MalformedWire) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed wire data: %s (tag byte 0x%02X)", e.Reason, e.Offender)
	}
	return fmt.Sprintf("unknown tag byte 0x%02X", e.Offender)
}

// IoError wraps a socket or terminal I/O failure. Always fatal.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("i/o error during %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// ProtocolError signals a class/sequence violation on the wire: a
// reply with no pending request, a REQ arriving from the server, or a
// message-head class byte outside {REP, ERR, NFY}. Always fatal.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error: %s", e.Reason) }

// TargetError wraps an ERR reply's target-side message. Non-fatal.
type TargetError struct {
	Message string
}

func (e *TargetError) Error() string { return e.Message }

// NotPaused is returned when an inspect command is issued while the
// target is running. Non-fatal.
type NotPaused struct{}

func (e *NotPaused) Error() string { return "target is not paused" }

// Busy is returned when a second request is attempted while one is
// already outstanding. Non-fatal (reported as an internal bug).
type Busy struct{}

func (e *Busy) Error() string { return "a request is already outstanding" }

// NotFound is returned when a source file, breakpoint id, or frame
// index cannot be resolved. Non-fatal.
type NotFound struct {
	Kind string
	What string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.What) }

// Fatal reports whether err belongs to a class that must unwind the
// session (IoError, MalformedWire, ProtocolError).
func Fatal(err error) bool {
	switch err.(type) {
	case *IoError, *MalformedWire, *ProtocolError:
		return true
	default:
		return false
	}
}
