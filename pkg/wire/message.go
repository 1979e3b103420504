// Package wire implements the message framer (spec §4.2): it groups
// Values from pkg/dvalue into EOM-terminated messages, pairs requests
// with their replies, and separates notifications from replies on a
// single half-duplex connection, the same way
// github.com/daabr/chrome-vision/pkg/cdp/transport.go pairs an
// asyncMessage's channel with the one outstanding CDP command.
package wire

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/isuhao/minisphere/pkg/dvalue"
	"github.com/isuhao/minisphere/pkg/protoerr"
)

// Class identifies the message's class marker, the first element of
// every message on the wire.
type Class byte

const (
	ClassReq Class = Class(dvalue.TagReqClass)
	ClassRep Class = Class(dvalue.TagRepClass)
	ClassErr Class = Class(dvalue.TagErrClass)
	ClassNfy Class = Class(dvalue.TagNfyClass)
)

func (c Class) String() string {
	switch c {
	case ClassReq:
		return "REQ"
	case ClassRep:
		return "REP"
	case ClassErr:
		return "ERR"
	case ClassNfy:
		return "NFY"
	default:
		return "?"
	}
}

// Message is an ordered sequence of Values bounded by the EOM marker.
// Values never includes the class marker (carried in Class) or the
// EOM terminator itself.
type Message struct {
	Class  Class
	Values []dvalue.Value
}

// CommandID returns the first Value of the message as an int32, which
// by convention is the command id for REQ/REP/ERR messages (spec §3).
// It returns 0, false if the message has no values or the first value
// is not an INT.
func (m Message) CommandID() (int32, bool) {
	if len(m.Values) == 0 || m.Values[0].Tag != dvalue.TagInt {
		return 0, false
	}
	return m.Values[0].Int, true
}

// pendingRequest mirrors spec §3's "Pending request" record.
type pendingRequest struct {
	CommandID int32
	IssuedAt  time.Time
}

// Framer reads and writes Messages over a connection. The protocol
// itself is half-duplex by design (spec §5, "single execution
// context"): only one goroutine ever calls Poll, matching the
// session's dedicated socket-reading pump (ssj.Session.pumpSocket),
// mirroring the one-reader-goroutine shape of
// github.com/daabr/chrome-vision/pkg/cdp/transport.go's scanMessages
// loop. SendRequest/SendNotification, however, may be called from a
// second goroutine (the REPL's interrupt handler sending a
// notification-command concurrently with the pump reading a reply),
// so writeMu and pendingMu guard the two pieces of state those calls
// race on: an in-flight write sequence, and the pending-request record.
type Framer struct {
	r *bufio.Reader
	w io.Writer

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   *pendingRequest
}

// NewFramer wraps rw for framed message exchange.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{r: bufio.NewReader(rw), w: rw}
}

// Busy reports whether a request is currently outstanding.
func (f *Framer) Busy() bool {
	f.pendingMu.Lock()
	defer f.pendingMu.Unlock()
	return f.pending != nil
}

// SendRequest serializes a REQ message (class marker, commandID,
// args..., EOM) and returns commandID as the request id, per spec
// §4.2 ("send_request(values) -> request_id"). It fails with
// *protoerr.Busy if a request is already outstanding, and otherwise
// with whatever dvalue.Encode returns (*protoerr.IoError for a write
// failure, *protoerr.MalformedWire for an unencodable argument).
func (f *Framer) SendRequest(commandID int32, args []dvalue.Value) (int32, error) {
	f.pendingMu.Lock()
	if f.pending != nil {
		f.pendingMu.Unlock()
		return 0, &protoerr.Busy{}
	}
	// Claim the slot before releasing pendingMu so a concurrent
	// SendRequest can't also observe "no pending" and race us.
	f.pending = &pendingRequest{CommandID: commandID, IssuedAt: issuedAtNow()}
	f.pendingMu.Unlock()

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := dvalue.Encode(dvalue.Value{Tag: dvalue.Tag(ClassReq)}, f.w); err != nil {
		return 0, err
	}
	if err := dvalue.Encode(dvalue.Int32(commandID), f.w); err != nil {
		return 0, err
	}
	for _, v := range args {
		if err := dvalue.Encode(v, f.w); err != nil {
			return 0, err
		}
	}
	if err := dvalue.Encode(dvalue.Value{Tag: dvalue.TagEOM}, f.w); err != nil {
		return 0, err
	}
	return commandID, nil
}

// issuedAtNow is a seam so tests can avoid depending on wall-clock time.
var issuedAtNow = time.Now

// SendNotification serializes an NFY message. Used for the "detach"
// or "pause" notification-commands the REPL may send without
// expecting a reply (spec §4.2 "Cancellation").
func (f *Framer) SendNotification(commandID int32, args []dvalue.Value) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := dvalue.Encode(dvalue.Value{Tag: dvalue.Tag(ClassNfy)}, f.w); err != nil {
		return err
	}
	if err := dvalue.Encode(dvalue.Int32(commandID), f.w); err != nil {
		return err
	}
	for _, v := range args {
		if err := dvalue.Encode(v, f.w); err != nil {
			return err
		}
	}
	return dvalue.Encode(dvalue.Value{Tag: dvalue.TagEOM}, f.w)
}

// Poll blocks until the next fully-assembled message arrives and
// returns it. A REP or ERR message is paired with (and clears) the
// single outstanding request; an NFY message is returned regardless
// of pending state and never consumes the reply slot. Any class byte
// outside {REP, ERR, NFY} at message head, or a REP/ERR with no
// pending request, is a *protoerr.ProtocolError.
//
// Poll returns io.EOF unmodified when the peer closes the connection
// cleanly between messages, so callers can drive the inferior model
// into its detached state without treating closure as malformed wire.
func (f *Framer) Poll() (Message, error) {
	head, err := dvalue.Decode(f.r)
	if err != nil {
		return Message{}, err
	}
	class := Class(head.Tag)
	switch class {
	case ClassRep, ClassErr:
		if !f.Busy() {
			return Message{}, &protoerr.ProtocolError{Reason: "received " + class.String() + " with no outstanding request"}
		}
	case ClassNfy:
		// No pending-state precondition.
	case ClassReq:
		return Message{}, &protoerr.ProtocolError{Reason: "received REQ from server"}
	default:
		return Message{}, &protoerr.ProtocolError{Reason: "message head is not a valid class marker"}
	}

	var values []dvalue.Value
	for {
		v, err := dvalue.Decode(f.r)
		if err != nil {
			return Message{}, err
		}
		if v.Tag == dvalue.TagEOM {
			break
		}
		values = append(values, v)
	}

	msg := Message{Class: class, Values: values}
	if class == ClassRep || class == ClassErr {
		f.pendingMu.Lock()
		f.pending = nil
		f.pendingMu.Unlock()
	}
	return msg, nil
}
