package ssj

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/isuhao/minisphere/pkg/protoerr"
	"github.com/isuhao/minisphere/pkg/wire"
)

// DefaultAddr is the target's default listen address (spec §6).
const DefaultAddr = "127.0.0.1:1208"

// connectRetryWindow bounds the initial connect attempt (spec §5,
// "bounded retry window (e.g., 2 s total)").
const connectRetryWindow = 2 * time.Second

// Attach spawns the engine (unless connectOnly is set, in which case
// gamePath is ignored and an already-running target is expected) and
// blocks until the session is attached and has received the VERSION
// handshake. It is grounded on
// github.com/daabr/chrome-vision/pkg/cdp/browser.go's start(): locate
// the executable, build a command line, redirect the child's stdout,
// and launch it as a detached background process, adapted here to
// minisphere's engine binary and debug flag instead of a browser.
func Attach(ctx context.Context, gamePath string, connectOnly bool, addr string, in io.Reader, out io.Writer, logger *log.Logger) (*Session, error) {
	if addr == "" {
		addr = DefaultAddr
	}

	if !connectOnly && gamePath != "" {
		fmt.Fprint(out, "Starting minisphere... ")
		if err := spawnEngine(ctx, gamePath, logger); err != nil {
			fmt.Fprintln(out, "FAILED.")
			return nil, fmt.Errorf("failed to start minisphere: %w", err)
		}
		fmt.Fprintln(out, "OK.")
	}

	conn, err := dialWithRetry(ctx, addr)
	if err != nil {
		return nil, err
	}

	s := newSession(conn, in, out, logger)
	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// spawnEngine launches the engine binary against gamePath, suppressing
// its stdout (spec §6, "suppressing the child's standard output") the
// same way the original's main.c redirects STDOUT_FILENO to /dev/null
// before exec, but leaving stderr visible so the child's fatal errors
// still surface (original_source/src/ssj/main.c's POSIX branch).
func spawnEngine(ctx context.Context, gamePath string, logger *log.Logger) error {
	exe, err := exec.LookPath("msphere")
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, exe, "--debug", gamePath)
	cmd.Stdout = nil
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err == nil {
		cmd.Stdout = devNull
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	logger.Printf("engine process started: pid %d", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Printf("engine process ended with an error: %v", err)
		} else {
			logger.Println("engine process ended without an error")
		}
	}()
	return nil
}

// dialWithRetry attempts to connect to addr, retrying with a short
// delay until connectRetryWindow elapses.
func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	deadline := time.Now().Add(connectRetryWindow)
	var lastErr error
	for {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, &protoerr.IoError{Op: "connect to " + addr, Err: lastErr}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// handshake blocks for the target's initial VERSION notification
// (spec §6: "No handshake beyond the first received message"), read
// via the socket pump started by newSession rather than calling
// framer.Poll() directly, since pumpSocket is now the only goroutine
// allowed to call Poll.
func (s *Session) handshake() error {
	var msg wire.Message
	select {
	case msg = <-s.msgCh:
	case err := <-s.errCh:
		return err
	}
	if cmdID, ok := msg.CommandID(); !ok || cmdID != nfyVersion || len(msg.Values) < 5 {
		return &protoerr.ProtocolError{Reason: "expected VERSION handshake notification"}
	}
	s.target = TargetInfo{
		EngineName:    msg.Values[1].Str,
		EngineVersion: msg.Values[2].Str,
		TargetVersion: msg.Values[3].Str,
		GameName:      msg.Values[4].Str,
	}
	return nil
}
