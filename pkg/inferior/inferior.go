// Package inferior mirrors the debug target's observable state (spec
// §4.4): the PAUSED/RUNNING state machine, the call stack, the
// breakpoint set, and the last-throw value. It is mutated only by
// notification handlers or by reply handlers of state-changing
// commands, the same "server push updates a local mirror map" shape
// github.com/daabr/chrome-vision/pkg/cdp/target.go uses for its
// targetCreated/targetInfoChanged/targetDestroyed handling, applied
// here to a single target's execution state instead of a set of tabs.
package inferior

import (
	"strconv"
	"sync"

	"github.com/isuhao/minisphere/pkg/protoerr"
)

// Frame is a snapshot of one call-stack entry. Frames are invalidated
// on every resume (spec §3).
type Frame struct {
	FunctionName string
	FileName     string
	Line         int
	PC           int
}

// Breakpoint is a target-assigned breakpoint record (spec §3).
type Breakpoint struct {
	ID       int32
	FileName string
	Line     int
}

// breakKey is the secondary index key (file_name, line) -> id.
type breakKey struct {
	FileName string
	Line     int
}

// Inferior mirrors the target's state. The zero value is not usable
// (its breakpoint maps are nil); use New to get a non-paused,
// non-detached inferior with no breakpoints. mu guards every field: the session's REPL
// goroutine mutates it from notification handlers and command
// dispatch, while Session.Interrupt reads IsPaused from whatever
// goroutine delivers the OS interrupt signal (spec §5's
// "cooperative" single execution context is approximated, not
// literal, once an async interrupt is in play).
type Inferior struct {
	mu sync.RWMutex

	isPaused     bool
	detached     bool
	currentFrame int
	callStack    []Frame
	breakReason  string
	lastThrow    *ThrowInfo

	byID   map[int32]Breakpoint
	byFile map[breakKey]int32
}

// ThrowInfo records the last THROW notification's payload (spec §4.4).
type ThrowInfo struct {
	IsFatal  bool
	Message  string
	FileName string
	Line     int
}

// New constructs an Inferior in the initial RUNNING, non-paused state.
func New() *Inferior {
	return &Inferior{
		byID:   make(map[int32]Breakpoint),
		byFile: make(map[breakKey]int32),
	}
}

// IsPaused reports whether the target is currently paused.
func (inf *Inferior) IsPaused() bool {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.isPaused
}

// IsDetached reports whether a DETACHING notification has been applied.
func (inf *Inferior) IsDetached() bool {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.detached
}

// CallStack returns the current call stack, newest frame first (index
// 0 is the top frame reported by the last STATUS). It is
// empty whenever !IsPaused() (spec §3 invariant).
func (inf *Inferior) CallStack() []Frame {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.callStack
}

// CurrentFrameIndex returns the selected frame index into CallStack().
func (inf *Inferior) CurrentFrameIndex() int {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.currentFrame
}

// BreakReason returns the human-readable reason the target most
// recently paused (e.g. "breakpoint 7 hit at main.js:42"), or "" when
// the last STATUS did not stop at a known breakpoint.
func (inf *Inferior) BreakReason() string {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.breakReason
}

// LastThrow returns the last recorded THROW payload, or nil if none.
func (inf *Inferior) LastThrow() *ThrowInfo {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	return inf.lastThrow
}

// ApplyStatus applies a STATUS notification (spec §4.4): it replaces
// the top frame, sets the pause flag, and invalidates any prior
// call-stack cache (callers must re-fetch the full stack via a
// backtrace request if they need more than the top frame).
func (inf *Inferior) ApplyStatus(isPaused bool, fileName string, line, pc int, functionName string) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.isPaused = isPaused
	inf.currentFrame = 0
	if isPaused {
		inf.callStack = []Frame{{FunctionName: functionName, FileName: fileName, Line: line, PC: pc}}
	} else {
		inf.callStack = nil
	}
}

// SetCallStack replaces the full call stack, e.g. after a backtrace
// reply. Only legal while paused; callers are expected to have
// checked IsPaused() already (spec §4.4 "legal only in PAUSED").
func (inf *Inferior) SetCallStack(frames []Frame) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.callStack = frames
	inf.currentFrame = 0
}

// ApplyThrow applies a THROW notification.
func (inf *Inferior) ApplyThrow(isFatal bool, message, fileName string, line int) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.lastThrow = &ThrowInfo{IsFatal: isFatal, Message: message, FileName: fileName, Line: line}
}

// ApplyDetaching applies a DETACHING notification, transitioning to
// the terminal detached state.
func (inf *Inferior) ApplyDetaching() {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.detached = true
}

// SetBreakReason records why the target most recently paused, for
// REPL display (e.g. spec §8 scenario S2's "breakpoint 7 hit at ...").
func (inf *Inferior) SetBreakReason(reason string) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	inf.breakReason = reason
}

// SelectFrame moves the selected frame by delta (used by up/down) and
// reports the new index. It clamps to the valid range.
func (inf *Inferior) SelectFrame(delta int) int {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	n := inf.currentFrame + delta
	if n < 0 {
		n = 0
	}
	if max := len(inf.callStack) - 1; max >= 0 && n > max {
		n = max
	}
	inf.currentFrame = n
	return inf.currentFrame
}

// SetFrame selects frame index n directly (the "frame N" command). It
// returns *protoerr.NotFound if n is out of range.
func (inf *Inferior) SetFrame(n int) error {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	if n < 0 || n >= len(inf.callStack) {
		return &protoerr.NotFound{Kind: "frame", What: strconv.Itoa(n)}
	}
	inf.currentFrame = n
	return nil
}

// CurrentFrame returns the selected frame, or the zero Frame and
// false if the call stack is empty.
func (inf *Inferior) CurrentFrame() (Frame, bool) {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	if inf.currentFrame < 0 || inf.currentFrame >= len(inf.callStack) {
		return Frame{}, false
	}
	return inf.callStack[inf.currentFrame], true
}

// RequirePaused returns *protoerr.NotPaused if the target is not
// paused, per spec §4.4: "Inspect operations ... are only legal in
// PAUSED; attempted in RUNNING -> NotPaused error."
func (inf *Inferior) RequirePaused() error {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	if !inf.isPaused {
		return &protoerr.NotPaused{}
	}
	return nil
}
