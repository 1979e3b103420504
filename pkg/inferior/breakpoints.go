package inferior

import (
	"strconv"

	"github.com/isuhao/minisphere/pkg/protoerr"
)

// AddBreakpoint records a breakpoint id returned by the target's
// add-breakpoint reply in both indices (spec §3: "client maintains a
// canonical mapping id -> breakpoint and a secondary index
// (file_name, line) -> id").
func (inf *Inferior) AddBreakpoint(id int32, fileName string, line int) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	bp := Breakpoint{ID: id, FileName: fileName, Line: line}
	inf.byID[id] = bp
	inf.byFile[breakKey{FileName: fileName, Line: line}] = id
}

// ClearBreakpoint removes a breakpoint from both indices. It returns
// *protoerr.NotFound if id is unknown.
func (inf *Inferior) ClearBreakpoint(id int32) error {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	bp, ok := inf.byID[id]
	if !ok {
		return &protoerr.NotFound{Kind: "breakpoint", What: strconv.Itoa(int(id))}
	}
	delete(inf.byID, id)
	delete(inf.byFile, breakKey{FileName: bp.FileName, Line: bp.Line})
	return nil
}

// Breakpoint looks up a breakpoint by id.
func (inf *Inferior) Breakpoint(id int32) (Breakpoint, bool) {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	bp, ok := inf.byID[id]
	return bp, ok
}

// BreakpointAt looks up a breakpoint id by (file, line).
func (inf *Inferior) BreakpointAt(fileName string, line int) (int32, bool) {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	id, ok := inf.byFile[breakKey{FileName: fileName, Line: line}]
	return id, ok
}

// Breakpoints returns all known breakpoints, for the "breakpoints"
// command. Order is unspecified.
func (inf *Inferior) Breakpoints() []Breakpoint {
	inf.mu.RLock()
	defer inf.mu.RUnlock()
	out := make([]Breakpoint, 0, len(inf.byID))
	for _, bp := range inf.byID {
		out = append(out, bp)
	}
	return out
}

// DropStaleBreakpoint silently removes id from the local maps without
// requiring it to still be present, for the race described in spec
// §4.4's tie-break: "If the target reports a breakpoint hit for an id
// no longer in the local map ... the REPL still displays the hit ...
// and silently drops the stale id." It is a no-op if id is unknown.
func (inf *Inferior) DropStaleBreakpoint(id int32) {
	inf.mu.Lock()
	defer inf.mu.Unlock()
	if bp, ok := inf.byID[id]; ok {
		delete(inf.byID, id)
		delete(inf.byFile, breakKey{FileName: bp.FileName, Line: bp.Line})
	}
}
