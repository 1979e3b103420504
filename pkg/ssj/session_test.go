package ssj

import (
	"bytes"
	"io"
	"log"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/isuhao/minisphere/pkg/dvalue"
	"github.com/isuhao/minisphere/pkg/inferior"
	"github.com/isuhao/minisphere/pkg/source"
	"github.com/isuhao/minisphere/pkg/wire"
)

// testSession pairs a Session with the raw net.Conn end a fake target
// uses to drive it, following the same net.Pipe harness style as
// pkg/wire/message_test.go. Its Source Cache is preloaded from a
// canned fetcher rather than the real GetSource round trip, so tests
// don't need a second scripted reply just to render a source line.
func testSession(t *testing.T) (*Session, net.Conn, *bytes.Buffer) {
	t.Helper()
	client, target := net.Pipe()
	t.Cleanup(func() { client.Close(); target.Close() })

	out := &bytes.Buffer{}
	s := newSession(client, strings.NewReader(""), out, log.New(io.Discard, "", 0))
	s.cache = source.New(func(string) (string, error) {
		return "// line 1\n// line 2\nconsole.log(\"hi\");\n", nil
	})
	return s, target, out
}

func sendMessage(t *testing.T, conn net.Conn, class wire.Class, values ...dvalue.Value) {
	t.Helper()
	require.NoError(t, dvalue.Encode(dvalue.Value{Tag: dvalue.Tag(class)}, conn))
	for _, v := range values {
		require.NoError(t, dvalue.Encode(v, conn))
	}
	require.NoError(t, dvalue.Encode(dvalue.Value{Tag: dvalue.TagEOM}, conn))
}

// drainMessage reads and discards one complete incoming message, the
// same shape as pkg/wire/message_test.go's helper of the same name,
// needed here to consume the REQ bytes a Session writes before the
// fake target can write back its reply over the fully-synchronous
// net.Pipe connection.
func drainMessage(conn net.Conn) {
	dvalue.Decode(conn) // class marker
	for {
		v, err := dvalue.Decode(conn)
		if err != nil || v.Tag == dvalue.TagEOM {
			return
		}
	}
}

func TestNoBreakpointsReportsEmptyList(t *testing.T) {
	s, _, out := testSession(t)
	s.dispatch("bp")
	require.Equal(t, "No breakpoints.\n", out.String())
}

func TestAddAndHitBreakpoint(t *testing.T) {
	s, target, out := testSession(t)

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdAddBreak), dvalue.Int32(7))
	}()
	s.dispatch("b main.js:42")
	require.Contains(t, out.String(), "breakpoint 7 set at main.js:42")

	out.Reset()
	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassNfy, dvalue.Int32(nfyStatus), dvalue.True(), dvalue.String("main.js"), dvalue.Int32(42), dvalue.Int32(0), dvalue.String("main"))
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdResume))
	}()
	s.dispatch("resume")
	s.printCurrentFrameIfPaused()
	require.Contains(t, out.String(), "breakpoint 7 hit at main.js:42")
}

func TestEvalPrintsResult(t *testing.T) {
	s, target, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 42, 0, "main")

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdEval), dvalue.Int32(3))
	}()
	s.dispatch("p 1+2")
	require.Equal(t, "= 3\n", out.String())
}

func TestEvalRequiresPaused(t *testing.T) {
	s, _, out := testSession(t)
	s.dispatch("p 1+2")
	require.Equal(t, "eval: target is not paused\n", out.String())
}

func TestMalformedWireIsFatal(t *testing.T) {
	s, target, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 42, 0, "main")

	go func() {
		drainMessage(target)
		_, _ = target.Write([]byte{0x23})
	}()
	s.dispatch("resume")
	require.Equal(t, "protocol error: unknown tag byte 0x23\n", out.String())
	require.True(t, s.inf.IsDetached())
}

func TestBlankLineRepeatsLastStep(t *testing.T) {
	s, target, _ := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 42, 0, "main")

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdStepInto))
	}()
	s.dispatch("step")
	require.Equal(t, "step", s.lastStepLine)

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdStepInto))
	}()
	s.dispatch("")
}

// TestStepDisplaysSourceLine covers the display half of spec §8
// scenario S3: after a step's reply, the paused frame's header is
// printed with the numbered source line beneath it, taken from the
// Source Cache (here testSession's canned fetcher, not a GetSource
// round trip).
func TestStepDisplaysSourceLine(t *testing.T) {
	s, target, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdStepInto))
	}()
	s.dispatch("step")
	s.printCurrentFrameIfPaused()
	require.Contains(t, out.String(), "main at main.js:2")
	require.Contains(t, out.String(), "  2    // line 2\n")
}

func TestListShowsSourceWindow(t *testing.T) {
	s, _, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")
	out.Reset()
	s.dispatch("list 2")
	require.Contains(t, out.String(), "*   2  // line 2\n")
}

func TestBacktraceMarksCurrentFrame(t *testing.T) {
	s, _, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")
	s.inf.SetCallStack([]inferior.Frame{
		{FunctionName: "inner", FileName: "main.js", Line: 2},
		{FunctionName: "main", FileName: "main.js", Line: 10},
	})
	s.dispatch("bt")
	require.Equal(t, "* #0 inner at main.js:2\n  #1 main at main.js:10\n", out.String())
}

func TestFrameCommandSelectsFrame(t *testing.T) {
	s, _, out := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")
	s.inf.SetCallStack([]inferior.Frame{
		{FunctionName: "inner", FileName: "main.js", Line: 2},
		{FunctionName: "main", FileName: "main.js", Line: 10},
	})
	out.Reset()
	s.dispatch("frame 1")
	s.printCurrentFrameIfPaused()
	require.Contains(t, out.String(), "main at main.js:10")
	require.Equal(t, 1, s.inf.CurrentFrameIndex())
}

func TestUpDownMoveSelectedFrame(t *testing.T) {
	s, _, _ := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")
	s.inf.SetCallStack([]inferior.Frame{
		{FunctionName: "inner", FileName: "main.js", Line: 2},
		{FunctionName: "main", FileName: "main.js", Line: 10},
	})
	s.dispatch("up")
	require.Equal(t, 1, s.inf.CurrentFrameIndex())
	s.dispatch("down")
	require.Equal(t, 0, s.inf.CurrentFrameIndex())
}

func TestClearRemovesBreakpoint(t *testing.T) {
	s, target, out := testSession(t)
	s.inf.AddBreakpoint(7, "main.js", 42)

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdClearBreak))
	}()
	s.dispatch("clear 7")
	require.Equal(t, "", out.String())
	_, ok := s.inf.Breakpoint(7)
	require.False(t, ok)
}

func TestClearUnknownBreakpointReportsNotFound(t *testing.T) {
	s, target, out := testSession(t)

	go func() {
		drainMessage(target)
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdClearBreak))
	}()
	s.dispatch("clear 99")
	require.Contains(t, out.String(), "clear:")
}

func TestBreakpointsListsMultipleEntries(t *testing.T) {
	s, _, out := testSession(t)
	s.inf.AddBreakpoint(1, "a.js", 10)
	s.inf.AddBreakpoint(2, "b.js", 20)
	s.dispatch("bp")
	text := out.String()
	require.Contains(t, text, "1: a.js:10\n")
	require.Contains(t, text, "2: b.js:20\n")
}

func TestDetachSendsNotificationAndEndsSession(t *testing.T) {
	s, target, _ := testSession(t)

	done := make(chan struct{})
	go func() {
		drainMessage(target)
		close(done)
	}()
	dispatchDone := s.dispatch("detach")
	<-done
	require.True(t, dispatchDone)
	require.True(t, s.inf.IsDetached())
}

func TestHelpListsCommands(t *testing.T) {
	s, _, out := testSession(t)
	s.dispatch("help")
	require.Contains(t, out.String(), "Commands:")
	require.Contains(t, out.String(), "step (s)")
}

func TestInterruptSendsPauseWhenIdle(t *testing.T) {
	s, target, _ := testSession(t)

	done := make(chan struct{})
	go func() {
		drainMessage(target)
		close(done)
	}()
	s.Interrupt()
	<-done
	require.False(t, s.stopWanted.Load())
}

func TestInterruptNoOpWhenAlreadyPaused(t *testing.T) {
	s, _, _ := testSession(t)
	s.inf.ApplyStatus(true, "main.js", 2, 0, "main")
	s.Interrupt()
	require.True(t, s.stopWanted.Load())
}

// TestInterruptDeferredPauseSendsOnceReplyDrains exercises spec §5's
// "issues a Pause command on next I/O step": an interrupt arriving
// while a request is outstanding must not be swallowed once that
// request's reply arrives.
func TestInterruptDeferredPauseSendsOnceReplyDrains(t *testing.T) {
	s, target, _ := testSession(t)

	go func() {
		drainMessage(target) // the resume request
		s.Interrupt()
		require.True(t, s.stopWanted.Load())
		sendMessage(t, target, wire.ClassRep, dvalue.Int32(cmdResume))
		drainMessage(target) // the deferred pause notification
	}()
	s.dispatch("resume")
	require.False(t, s.stopWanted.Load())
}

func TestUnknownCommandReportsItself(t *testing.T) {
	s, _, out := testSession(t)
	s.dispatch("wat")
	require.Equal(t, "wat: unknown command\n", out.String())
}
