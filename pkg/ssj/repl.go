package ssj

import (
	"errors"
	"fmt"
	"io"

	"github.com/isuhao/minisphere/pkg/protoerr"
)

// Run drives the session's read-eval-print loop until the target
// detaches, the connection closes, or a fatal error occurs (spec
// §4.5, §5). It returns the process exit code the caller should use
// (spec §6: 0 success, 1 fatal protocol/connect error).
//
// The loop selects between a command line arriving from the terminal
// and a notification arriving from the target (spec §5: "on platforms
// where multiplexing is available, both are selected together so
// that notifications arrive promptly even while the prompt is
// active"), approximating the source's OS-level multiplexing with a
// Go-idiomatic goroutine-plus-channel pump for each input source
// instead of a platform select(2)/poll(2) call.
func (s *Session) Run() int {
	defer s.conn.Close()

	fmt.Fprintf(s.out, "Attached to %s %s (target %s)\n", s.target.EngineName, s.target.EngineVersion, s.target.GameName)

	stdinCh := s.pumpStdin()
	for !s.inf.IsDetached() {
		s.printCurrentFrameIfPaused()
		fmt.Fprint(s.out, "(ssj)> ")

		select {
		case line, ok := <-stdinCh:
			if !ok {
				if s.stdinErr != nil {
					s.reportFatal(&protoerr.IoError{Op: "read command", Err: s.stdinErr})
				}
				return s.exitCode
			}
			if s.dispatch(line) {
				return s.exitCode
			}
		case msg := <-s.msgCh:
			s.handleNotification(msg)
		case err := <-s.errCh:
			if errors.Is(err, io.EOF) {
				s.inf.ApplyDetaching()
				return s.exitCode
			}
			s.reportFatal(err)
			return s.exitCode
		}
	}
	return s.exitCode
}

// pumpStdin runs a dedicated goroutine scanning command lines off the
// terminal and forwards each onto the returned channel, which is
// closed on EOF or a scan error (recorded in s.stdinErr for Run to
// report). This is the terminal-side counterpart to pumpSocket: Run's
// select treats both pumps as equally-ready input sources.
func (s *Session) pumpStdin() <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		for s.in.Scan() {
			ch <- s.in.Text()
		}
		s.stdinErr = s.in.Err()
	}()
	return ch
}
