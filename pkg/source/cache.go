// Package source implements the on-demand source-text cache (spec
// §4.3): it fetches and line-indexes source retrieved from the debug
// target, the same on-demand, notification-driven-population shape
// github.com/daabr/chrome-vision/pkg/cdp/target.go uses for its
// targets map, applied here to source files instead of browser tabs.
package source

import (
	"bytes"

	"github.com/isuhao/minisphere/pkg/protoerr"
)

// Entry is an immutable, shared source file: its raw text and a
// precomputed line index. Once constructed it is never mutated, so it
// can be safely handed out to multiple callers (call frames, the
// REPL's "list" command) without copying.
type Entry struct {
	FileName string
	RawText  string

	// lineOffsets[i] is the byte offset of the start of line i+1 (1-based
	// lines). Computed once at construction time by scanning for LF
	// bytes; each recorded offset is the byte just past an LF, so a CRLF
	// pair splits at its LF and the CR stays on the preceding line (Line
	// strips it).
	lineOffsets []int
}

// NewEntry builds an Entry for fileName from its raw text, computing
// the line index once.
func NewEntry(fileName, rawText string) *Entry {
	e := &Entry{FileName: fileName, RawText: rawText}
	e.lineOffsets = append(e.lineOffsets, 0)
	text := []byte(rawText)
	base := 0
	for {
		i := bytes.IndexByte(text, '\n')
		if i < 0 {
			break
		}
		base += i + 1
		e.lineOffsets = append(e.lineOffsets, base)
		text = text[i+1:]
	}
	return e
}

// LineCount returns the number of lines in the entry.
func (e *Entry) LineCount() int { return len(e.lineOffsets) }

// Line returns the 1-based n-th line of text, with its trailing
// newline (and a preceding CR, if any) stripped. Out-of-range n
// returns an empty string, per spec §4.3.
func (e *Entry) Line(n int) string {
	if n < 1 || n > len(e.lineOffsets) {
		return ""
	}
	start := e.lineOffsets[n-1]
	var end int
	if n < len(e.lineOffsets) {
		end = e.lineOffsets[n] - 1 // exclude the LF itself
	} else {
		end = len(e.RawText)
	}
	if end > start && e.RawText[end-1] == '\r' {
		end--
	}
	if end < start {
		return ""
	}
	return e.RawText[start:end]
}

// Fetcher retrieves the raw source text for fileName from the debug
// target, e.g. by issuing a GetSource request through the session's
// Framer. Returning an error propagates as a cache miss.
type Fetcher func(fileName string) (string, error)

// Cache is an on-demand, per-session source-text cache. Eviction is
// not implemented (spec §3: "total set is bounded by the target's
// source count"), so entries accumulate for the session's lifetime.
//
// Cache has no locking and is not safe for concurrent use; the session
// only calls it from the goroutine that runs its REPL loop.
type Cache struct {
	fetch   Fetcher
	entries map[string]*Entry
}

// New constructs a Cache that populates misses via fetch.
func New(fetch Fetcher) *Cache {
	return &Cache{fetch: fetch, entries: make(map[string]*Entry)}
}

// Get returns the cached Entry for fileName, fetching and inserting
// it on first access. It returns *protoerr.NotFound if the target has
// no such source.
func (c *Cache) Get(fileName string) (*Entry, error) {
	if e, ok := c.entries[fileName]; ok {
		return e, nil
	}
	text, err := c.fetch(fileName)
	if err != nil {
		return nil, &protoerr.NotFound{Kind: "source", What: fileName}
	}
	e := NewEntry(fileName, text)
	c.entries[fileName] = e
	return e, nil
}
