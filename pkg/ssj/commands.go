package ssj

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/isuhao/minisphere/pkg/dvalue"
	"github.com/isuhao/minisphere/pkg/protoerr"
	"github.com/isuhao/minisphere/pkg/wire"
)

// stepCommands are the command names whose effect blank-line repeats
// (spec §4.5: "Blank line: repeat last step-family command if any").
var stepCommands = map[string]bool{
	"step": true, "s": true,
	"stepover": true, "o": true,
	"stepout": true, "u": true,
	"resume": true, "c": true, "go": true,
}

// dispatch runs one command line and writes its effect to s.out. It
// returns done=true once the session should exit its read loop (the
// "detach"/"quit" commands, or a DETACHING notification already seen).
func (s *Session) dispatch(line string) (done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		if s.lastStepLine == "" {
			return false
		}
		line = s.lastStepLine
	}

	fields := strings.Fields(line)
	name := fields[0]
	args := fields[1:]

	if stepCommands[name] {
		s.lastStepLine = line
	}

	switch name {
	case "step", "s":
		s.doStep(cmdStepInto)
	case "stepover", "o":
		s.doStep(cmdStepOver)
	case "stepout", "u":
		s.doStep(cmdStepOut)
	case "resume", "c", "go":
		s.doStep(cmdResume)
	case "pause":
		s.doPause()
	case "list", "l":
		s.doList(args)
	case "backtrace", "bt":
		s.doBacktrace()
	case "frame", "f":
		s.doFrame(args)
	case "up":
		s.doMoveFrame(1)
	case "down":
		s.doMoveFrame(-1)
	case "locals":
		s.doLocals()
	case "eval", "p":
		s.doEval(strings.Join(args, " "))
	case "break", "b":
		s.doBreak(args)
	case "clear":
		s.doClear(args)
	case "breakpoints", "bp":
		s.doBreakpoints()
	case "detach", "quit", "q":
		s.doDetach()
		return true
	case "help", "h":
		s.doHelp()
	default:
		fmt.Fprintf(s.out, "%s: unknown command\n", name)
	}
	return s.inf.IsDetached()
}

// report prints a non-fatal error on one line, prefixed by the
// issuing command's name (spec §7, "Non-fatal errors are reported on
// one line prefixed by the command name").
func (s *Session) report(command string, err error) {
	fmt.Fprintf(s.out, "%s: %v\n", command, err)
}

// reportOrFatal routes a SendRequest error per spec §7: a *protoerr.Busy
// (another request already outstanding) is reported and the command
// simply fails, same as any other non-fatal error; everything else
// SendRequest can return (a write failure) is an IoError and unwinds
// the session.
func (s *Session) reportOrFatal(command string, err error) {
	if protoerr.Fatal(err) {
		s.reportFatal(err)
		return
	}
	s.report(command, err)
}

func (s *Session) doStep(commandID int32) {
	name := stepCommandName(commandID)
	if commandID != cmdResume {
		if err := s.inf.RequirePaused(); err != nil {
			s.report(name, err)
			return
		}
	}
	if _, err := s.framer.SendRequest(commandID, nil); err != nil {
		s.reportOrFatal(name, err)
		return
	}
	msg, err := s.drainReply()
	if err != nil {
		s.reportFatal(err)
		return
	}
	if msg.Class == wire.ClassErr {
		s.report(name, targetErrorFrom(msg))
		return
	}
}

func stepCommandName(commandID int32) string {
	switch commandID {
	case cmdStepInto:
		return "step"
	case cmdStepOver:
		return "stepover"
	case cmdStepOut:
		return "stepout"
	default:
		return "resume"
	}
}

// Interrupt implements spec §5's cancellation path: a user interrupt
// at the prompt requests a Pause on the target without forcibly
// aborting whatever request is already outstanding. If a request is
// outstanding, the Pause is deferred (stopWanted) and sent by
// drainReply's sendDeferredPause once that request's reply arrives.
func (s *Session) Interrupt() {
	s.stopWanted.Store(true)
	if s.inf.IsPaused() || s.framer.Busy() {
		return
	}
	if err := s.framer.SendNotification(cmdPause, nil); err == nil {
		s.stopWanted.Store(false)
	}
}

func (s *Session) doPause() {
	if s.inf.IsPaused() {
		s.report("pause", &protoerr.ProtocolError{Reason: "already paused"})
		return
	}
	if err := s.framer.SendNotification(cmdPause, nil); err != nil {
		s.reportFatal(err)
	}
}

func (s *Session) doList(args []string) {
	if err := s.inf.RequirePaused(); err != nil {
		s.report("list", err)
		return
	}
	n := 10
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	frame, ok := s.inf.CurrentFrame()
	if !ok {
		return
	}
	entry, err := s.cache.Get(frame.FileName)
	if err != nil {
		s.report("list", err)
		return
	}
	start := frame.Line - n/2
	if start < 1 {
		start = 1
	}
	for i := start; i < start+n && i <= entry.LineCount(); i++ {
		marker := " "
		if i == frame.Line {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s%4d  %s\n", marker, i, entry.Line(i))
	}
}

func (s *Session) doBacktrace() {
	if err := s.inf.RequirePaused(); err != nil {
		s.report("backtrace", err)
		return
	}
	stack := s.inf.CallStack()
	for i := 0; i < len(stack); i++ {
		marker := "  "
		if i == s.inf.CurrentFrameIndex() {
			marker = "* "
		}
		fmt.Fprintf(s.out, "%s#%d %s at %s:%d\n", marker, i, stack[i].FunctionName, stack[i].FileName, stack[i].Line)
	}
}

func (s *Session) doFrame(args []string) {
	if err := s.inf.RequirePaused(); err != nil {
		s.report("frame", err)
		return
	}
	if len(args) != 1 {
		s.report("frame", &protoerr.ProtocolError{Reason: "usage: frame N"})
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		s.report("frame", &protoerr.ProtocolError{Reason: "not a number: " + args[0]})
		return
	}
	if err := s.inf.SetFrame(n); err != nil {
		s.report("frame", err)
		return
	}
}

func (s *Session) doMoveFrame(delta int) {
	name := "up"
	if delta < 0 {
		name = "down"
	}
	if err := s.inf.RequirePaused(); err != nil {
		s.report(name, err)
		return
	}
	s.inf.SelectFrame(delta)
}

func (s *Session) doLocals() {
	if err := s.inf.RequirePaused(); err != nil {
		s.report("locals", err)
		return
	}
	if _, err := s.framer.SendRequest(cmdEval, []dvalue.Value{dvalue.String("this")}); err != nil {
		s.reportOrFatal("locals", err)
		return
	}
	msg, err := s.drainReply()
	if err != nil {
		s.reportFatal(err)
		return
	}
	if msg.Class == wire.ClassErr {
		s.report("locals", targetErrorFrom(msg))
		return
	}
	for _, v := range msg.Values[1:] {
		fmt.Fprintln(s.out, FormatValue(v, s.verbose))
	}
}

func (s *Session) doEval(expr string) {
	if err := s.inf.RequirePaused(); err != nil {
		s.report("eval", err)
		return
	}
	if expr == "" {
		s.report("eval", &protoerr.ProtocolError{Reason: "usage: eval EXPR"})
		return
	}
	if _, err := s.framer.SendRequest(cmdEval, []dvalue.Value{dvalue.String(expr)}); err != nil {
		s.reportOrFatal("eval", err)
		return
	}
	msg, err := s.drainReply()
	if err != nil {
		s.reportFatal(err)
		return
	}
	if msg.Class == wire.ClassErr {
		s.report("eval", targetErrorFrom(msg))
		return
	}
	if len(msg.Values) < 2 {
		s.report("eval", &protoerr.ProtocolError{Reason: "eval reply missing result value"})
		return
	}
	fmt.Fprintf(s.out, "= %s\n", FormatValue(msg.Values[1], s.verbose))
}

func (s *Session) doBreak(args []string) {
	if len(args) != 1 {
		s.report("break", &protoerr.ProtocolError{Reason: "usage: break FILE:LINE"})
		return
	}
	fileName, line, err := parseFileLine(args[0])
	if err != nil {
		s.report("break", err)
		return
	}
	if _, err := s.framer.SendRequest(cmdAddBreak, []dvalue.Value{dvalue.String(fileName), dvalue.Int32(int32(line))}); err != nil {
		s.reportOrFatal("break", err)
		return
	}
	msg, err := s.drainReply()
	if err != nil {
		s.reportFatal(err)
		return
	}
	if msg.Class == wire.ClassErr {
		s.report("break", targetErrorFrom(msg))
		return
	}
	if len(msg.Values) < 2 || msg.Values[1].Tag != dvalue.TagInt {
		s.report("break", &protoerr.ProtocolError{Reason: "AddBreak reply missing id"})
		return
	}
	id := msg.Values[1].Int
	s.inf.AddBreakpoint(id, fileName, line)
	fmt.Fprintf(s.out, "breakpoint %d set at %s:%d\n", id, fileName, line)
}

func (s *Session) doClear(args []string) {
	if len(args) != 1 {
		s.report("clear", &protoerr.ProtocolError{Reason: "usage: clear N"})
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		s.report("clear", &protoerr.ProtocolError{Reason: "not a number: " + args[0]})
		return
	}
	if _, err := s.framer.SendRequest(cmdClearBreak, []dvalue.Value{dvalue.Int32(int32(id))}); err != nil {
		s.reportOrFatal("clear", err)
		return
	}
	msg, err := s.drainReply()
	if err != nil {
		s.reportFatal(err)
		return
	}
	if msg.Class == wire.ClassErr {
		s.report("clear", targetErrorFrom(msg))
		return
	}
	if err := s.inf.ClearBreakpoint(int32(id)); err != nil {
		s.report("clear", err)
	}
}

func (s *Session) doBreakpoints() {
	bps := s.inf.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(s.out, "No breakpoints.")
		return
	}
	for _, bp := range bps {
		fmt.Fprintf(s.out, "%d: %s:%d\n", bp.ID, bp.FileName, bp.Line)
	}
}

func (s *Session) doDetach() {
	_ = s.framer.SendNotification(cmdDetach, nil)
	s.inf.ApplyDetaching()
}

func (s *Session) doHelp() {
	fmt.Fprintln(s.out, `Commands:
  step (s), stepover (o), stepout (u), resume (c, go), pause
  list [n] (l), backtrace (bt), frame N (f), up, down
  locals, eval EXPR (p), break FILE:LINE (b), clear N
  breakpoints (bp), detach / quit (q), help (h)`)
}

// printCurrentFrameIfPaused prints the current frame header and
// source line, per spec §4.5: "if paused, print the current frame in
// the form `<function> at <file>:<line>` followed by the source
// line".
func (s *Session) printCurrentFrameIfPaused() {
	if !s.inf.IsPaused() {
		return
	}
	frame, ok := s.inf.CurrentFrame()
	if !ok {
		return
	}
	if reason := s.inf.BreakReason(); reason != "" {
		fmt.Fprintln(s.out, reason)
	}
	fmt.Fprintf(s.out, "%s at %s:%d\n", frame.FunctionName, frame.FileName, frame.Line)
	entry, err := s.cache.Get(frame.FileName)
	text := "<no source>"
	if err == nil {
		text = entry.Line(frame.Line)
	}
	fmt.Fprintf(s.out, "  %d    %s\n", frame.Line, text)
}

// reportFatal prints a one-line diagnostic for a fatal error and
// applies a DETACHING transition so the REPL's loop exits (spec §7:
// "any fatal error unwinds to the REPL, prints a one-line diagnostic
// ..., then exits").
func (s *Session) reportFatal(err error) {
	var malformed *protoerr.MalformedWire
	if errors.As(err, &malformed) && malformed.Reason == "" {
		fmt.Fprintf(s.out, "protocol error: unknown tag byte 0x%02X\n", malformed.Offender)
	} else {
		fmt.Fprintf(s.out, "%v\n", err)
	}
	s.log.Printf("session ending on fatal error: %v", err)
	s.exitCode = 1
	s.inf.ApplyDetaching()
}

func parseFileLine(spec string) (string, int, error) {
	idx := strings.LastIndexByte(spec, ':')
	if idx < 0 {
		return "", 0, &protoerr.ProtocolError{Reason: "expected FILE:LINE"}
	}
	line, err := strconv.Atoi(spec[idx+1:])
	if err != nil {
		return "", 0, &protoerr.ProtocolError{Reason: "not a number: " + spec[idx+1:]}
	}
	return spec[:idx], line, nil
}

// handleNotification applies an incoming NFY message to the Inferior
// Model and/or prints it, per spec §4.4.
func (s *Session) handleNotification(msg wire.Message) {
	cmdID, ok := msg.CommandID()
	if !ok {
		return
	}
	switch cmdID {
	case nfyStatus:
		s.applyStatus(msg)
	case nfyPrint, nfyAlert:
		for _, v := range msg.Values[1:] {
			fmt.Fprintln(s.out, FormatValue(v, s.verbose))
		}
	case nfyLog:
		if s.verbose {
			for _, v := range msg.Values[1:] {
				fmt.Fprintln(s.out, FormatValue(v, s.verbose))
			}
		}
	case nfyThrow:
		s.applyThrow(msg)
	case nfyDetaching:
		s.inf.ApplyDetaching()
	}
}

func (s *Session) applyStatus(msg wire.Message) {
	if len(msg.Values) < 5 {
		return
	}
	isPaused := msg.Values[1].Tag == dvalue.TagTrue
	fileName := msg.Values[2].Str
	line := int(msg.Values[3].Int)
	pc := int(msg.Values[4].Int)
	functionName := ""
	if len(msg.Values) > 5 {
		functionName = msg.Values[5].Str
	}
	s.inf.ApplyStatus(isPaused, fileName, line, pc, functionName)
	if id, ok := s.inf.BreakpointAt(fileName, line); ok {
		s.inf.SetBreakReason(fmt.Sprintf("breakpoint %d hit at %s:%d", id, fileName, line))
	} else {
		s.inf.SetBreakReason("")
	}
}

func (s *Session) applyThrow(msg wire.Message) {
	if len(msg.Values) < 3 {
		return
	}
	isFatal := msg.Values[1].Tag == dvalue.TagTrue
	message := msg.Values[2].Str
	fileName := ""
	line := 0
	if len(msg.Values) > 3 {
		fileName = msg.Values[3].Str
	}
	if len(msg.Values) > 4 {
		line = int(msg.Values[4].Int)
	}
	s.inf.ApplyThrow(isFatal, message, fileName, line)
	fmt.Fprintf(s.out, "uncaught exception: %s at %s:%d\n", message, fileName, line)
}
