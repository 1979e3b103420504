// Command ssj is the remote JavaScript source-level debugger for
// minisphere (spec §6). Its CLI grammar and root-command wiring
// follow github.com/marmos91/dittofs/cmd/dfsctl/commands/root.go's
// cobra.Command shape, adapted from a multi-subcommand client to a
// single positional-argument debugger invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/isuhao/minisphere/internal/banner"
	"github.com/isuhao/minisphere/pkg/ssj"
)

var (
	flagConnect bool
	flagVersion bool
	flagExplode bool
)

var rootCmd = &cobra.Command{
	Use:   "ssj [options] <game-path>",
	Short: "A powerful JavaScript debugger for minisphere",
	Long: `ssj [options] <game-path>
ssj -c [options]

A remote, source-level JavaScript debugger for the minisphere game engine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runSSJ,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagConnect, "connect", "c", false, "attach to an already-running target; fail if not reachable")
	rootCmd.Flags().BoolVar(&flagVersion, "version", false, "print version banner and exit")
	rootCmd.Flags().BoolVar(&flagExplode, "explode", false, "print an easter-egg quote and exit")
}

func runSSJ(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if flagVersion {
		banner.Print(out, true)
		return nil
	}
	if flagExplode {
		banner.PrintExplode(out)
		return nil
	}

	banner.Print(out, true)
	fmt.Fprintln(out)

	var gamePath string
	if len(args) == 1 {
		gamePath = args[0]
	}
	if !flagConnect && gamePath == "" {
		banner.PrintUsage(out)
		return nil
	}

	logger := log.New(os.Stderr, "ssj: ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session, err := ssj.Attach(ctx, gamePath, flagConnect, ssj.DefaultAddr, os.Stdin, out, logger)
	if err != nil {
		fmt.Fprintf(out, "protocol error: %v\n", err)
		return errConnect
	}

	go func() {
		<-ctx.Done()
		session.Interrupt()
	}()

	code := session.Run()
	if code != 0 {
		return errConnect
	}
	return nil
}

// errConnect carries the exit code for a connect failure or fatal
// protocol error (spec §6: exit 1). Unknown-option exits (code 2) are
// surfaced directly by cobra's own flag-parsing errors in main, below.
var errConnect = exitError{1}

type exitError struct{ code int }

func (e exitError) Error() string { return "" }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(2)
	}
}
