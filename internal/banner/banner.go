// Package banner prints the SSJ version banner and usage text, and
// carries the "--explode" easter egg, all ported from
// original_source/src/ssj/main.c's print_banner/print_cell_quote/print_usage.
package banner

import (
	"fmt"
	"io"
	"math/rand"
	"strconv"
)

// Version is the SSJ release name, printed in the banner. The original
// sets this via a build-time VERSION_NAME define; here it is a plain
// constant since this module has no equivalent build step.
const Version = "4.0"

// arch mirrors the original's `sizeof(void*) == 8 ? "x64" : "x86"` check.
func arch() string {
	if strconv.IntSize == 32 { // Go's int is pointer-sized on every supported platform
		return "x86"
	}
	return "x64"
}

// Print writes the one-line version banner, optionally followed by the
// tagline and copyright lines, to w.
func Print(w io.Writer, wantCopyright bool) {
	fmt.Fprintf(w, "SSJ %s Sphere Game Debugger %s\n", Version, arch())
	if wantCopyright {
		fmt.Fprintln(w, "A powerful JavaScript debugger for minisphere")
		fmt.Fprintln(w, "(c) 2016 Fat Cerberus")
	}
}

// PrintUsage writes the usage text that ssj prints when run with
// neither a game path nor --connect. "--help" itself prints cobra's
// generated help instead.
func PrintUsage(w io.Writer) {
	Print(w, true)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "   ssj [options] <game-path>")
	fmt.Fprintln(w, "   ssj -c [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "       --version          Prints the SSJ debugger version.")
	fmt.Fprintln(w, "       --help             Prints this help text.")
	fmt.Fprintln(w, "   -c, --connect          Attempts to attach to a target already running. If")
	fmt.Fprintln(w, "                          the connection attempt fails, SSJ will exit.")
}

// cellQuotes are Cell's lines from Dragon Ball Z, verbatim from the
// original's print_cell_quote MESSAGES table.
var cellQuotes = []string{
	"I expected the end to be a little more dramatic...",
	"Don't you realize yet you're up against the perfect weapon?!",
	"Would you stop interfering!?",
	"You're all so anxious to die, aren't you? Well all you had to do WAS ASK!",
	"Why can't you people JUST STAY DOWN!!",
	"They just keep lining up to die!",
	"No chance! YOU HAVE NO CHANCE!!",
	"SAY GOODBYE!",
	"I WAS PERFECT...!",
}

// PrintExplode implements the "--explode" easter egg.
func PrintExplode(w io.Writer) {
	fmt.Fprintln(w, "Release it--release everything! Remember all the pain he's caused, the people")
	fmt.Fprintln(w, "he's hurt--now MAKE THAT YOUR POWER!!")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "    Cell says:\n    \"%s\"\n", cellQuotes[rand.Intn(len(cellQuotes))])
}
