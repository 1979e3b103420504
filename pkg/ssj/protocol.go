package ssj

// Command ids for the requests the REPL issues (spec §4.5's command
// surface). The original source's remote.h / command table was not
// part of the retrieved excerpt (see DESIGN.md); this enumeration is a
// reconstruction grounded only on the operations spec.md names, kept
// deliberately small and request/reply shaped like every other command
// in the protocol.
const (
	cmdStepInto int32 = iota + 1
	cmdStepOver
	cmdStepOut
	cmdResume
	cmdPause
	cmdAddBreak
	cmdClearBreak
	cmdEval
	cmdGetCallStack
	cmdGetSource
	cmdDetach
)

// Notification ids the target pushes unprompted (spec §4.4).
const (
	nfyStatus int32 = iota + 1
	nfyPrint
	nfyAlert
	nfyLog
	nfyThrow
	nfyDetaching
	nfyVersion
)
