// Package ssj implements the session REPL (spec §4.5): the
// single-threaded read-eval-print loop that turns command lines into
// protocol requests, renders replies and notifications, and keeps the
// Inferior Model and Source Cache in sync. It is grounded on
// github.com/daabr/chrome-vision/pkg/cdp/session.go's Session struct
// (one object owning the transport, the local state mirror, and a
// logger) and on original_source/src/ssj/main.c for the CLI-level
// attach/spawn sequence and banner.
package ssj

import (
	"bufio"
	"io"
	"log"
	"net"
	"sync/atomic"

	"github.com/isuhao/minisphere/pkg/dvalue"
	"github.com/isuhao/minisphere/pkg/inferior"
	"github.com/isuhao/minisphere/pkg/protoerr"
	"github.com/isuhao/minisphere/pkg/source"
	"github.com/isuhao/minisphere/pkg/wire"
)

// TargetInfo is the VERSION notification payload the target sends as
// its handshake (spec §6): "(engine_name, engine_version,
// target_version, game_name)".
type TargetInfo struct {
	EngineName    string
	EngineVersion string
	TargetVersion string
	GameName      string
}

// Session owns everything the REPL needs: the connection, the Framer
// built on top of it, the Inferior state mirror, and the Source Cache.
// Like pkg/cdp.Session, it is the single explicit handle passed around
// instead of package-level globals (spec §9, "no hidden singletons").
type Session struct {
	conn   net.Conn
	framer *wire.Framer
	inf    *inferior.Inferior
	cache  *source.Cache

	in      *bufio.Scanner
	out     io.Writer
	log     *log.Logger
	verbose bool

	target TargetInfo

	lastStepLine string // last step-family command line, for blank-line repeat

	// stopWanted records a deferred interrupt (spec §5 "Cancellation"):
	// set by every Interrupt call and cleared there only if the Pause
	// went out at once; otherwise (a request outstanding, or the target
	// already paused) it stays set and is consulted by drainReply once a
	// reply arrives, so a wanted Pause is sent instead of silently dropped.
	// atomic because Interrupt may run on a signal-handling goroutine
	// distinct from the one calling drainReply.
	stopWanted atomic.Bool
	exitCode   int

	// msgCh/errCh are fed by pumpSocket, the single goroutine that owns
	// calling framer.Poll() (spec §5: one execution context reads the
	// socket). Routing every message through a channel, rather than
	// calling Poll directly, is what lets Run's main loop select
	// between terminal input and an asynchronous notification — e.g.
	// the STATUS that announces a breakpoint hit after "resume" has
	// already been acknowledged (spec §8 scenario S2) — instead of
	// only observing notifications interleaved inside a drainReply
	// that happens to be in flight. Grounded on
	// github.com/daabr/chrome-vision/pkg/cdp/transport.go's own
	// read-loop-plus-channel shape (its readLoop goroutine decodes
	// frames and delivers them to waiting callers over a channel
	// rather than letting each caller read the socket itself).
	msgCh chan wire.Message
	errCh chan error

	stdinErr error
}

// newSession wires a Session around an already-connected conn and
// starts its socket-reading pump.
func newSession(conn net.Conn, in io.Reader, out io.Writer, logger *log.Logger) *Session {
	s := &Session{
		conn:   conn,
		framer: wire.NewFramer(conn),
		inf:    inferior.New(),
		in:     bufio.NewScanner(in),
		out:    out,
		log:    logger,
		msgCh:  make(chan wire.Message),
		errCh:  make(chan error, 1),
	}
	s.cache = source.New(s.fetchSource)
	go s.pumpSocket()
	return s
}

// pumpSocket is the sole caller of framer.Poll(): it loops decoding
// messages off the wire and forwards each to msgCh, or a terminal
// error to errCh, until the connection closes or a protocol violation
// occurs. Running this on its own goroutine is what lets the session
// multiplex socket and terminal input (spec §5), the same way the
// REPL's Run loop multiplexes msgCh against the stdin-reading pump.
func (s *Session) pumpSocket() {
	for {
		msg, err := s.framer.Poll()
		if err != nil {
			s.errCh <- err
			return
		}
		s.msgCh <- msg
	}
}

// fetchSource issues a GetSource request and returns the raw text, for
// use as the Source Cache's Fetcher (spec §4.3).
func (s *Session) fetchSource(fileName string) (string, error) {
	if _, err := s.framer.SendRequest(cmdGetSource, []dvalue.Value{dvalue.String(fileName)}); err != nil {
		return "", err
	}
	msg, err := s.drainReply()
	if err != nil {
		return "", err
	}
	if msg.Class == wire.ClassErr {
		return "", targetErrorFrom(msg)
	}
	if len(msg.Values) < 2 || msg.Values[1].Tag != dvalue.TagString {
		return "", &protoerr.ProtocolError{Reason: "GetSource reply missing STRING payload"}
	}
	return msg.Values[1].Str, nil
}

// drainReply reads messages from the socket pump until a REP or ERR
// arrives, dispatching any interleaved notifications to the inferior
// along the way (spec §4.2, "notifications ... delivered before the
// REP"). It is only ever called from the same goroutine that runs
// Run's select loop (never concurrently with it), so there is a
// single consumer of msgCh/errCh at any moment.
func (s *Session) drainReply() (wire.Message, error) {
	for {
		select {
		case msg := <-s.msgCh:
			if msg.Class == wire.ClassNfy {
				s.handleNotification(msg)
				continue
			}
			s.sendDeferredPause()
			return msg, nil
		case err := <-s.errCh:
			return wire.Message{}, err
		}
	}
}

// sendDeferredPause issues the Pause notification-command that
// Interrupt deferred because a request was already outstanding (spec
// §5: "issues a Pause command on next I/O step"), now that the
// request's reply has just drained and the framer is idle again.
func (s *Session) sendDeferredPause() {
	if !s.stopWanted.CompareAndSwap(true, false) {
		return
	}
	if s.inf.IsPaused() {
		return
	}
	_ = s.framer.SendNotification(cmdPause, nil)
}

// targetErrorFrom converts an ERR message into a *protoerr.TargetError.
func targetErrorFrom(msg wire.Message) error {
	text := "target error"
	for _, v := range msg.Values[1:] {
		if v.Tag == dvalue.TagString {
			text = v.Str
			break
		}
	}
	return &protoerr.TargetError{Message: text}
}
