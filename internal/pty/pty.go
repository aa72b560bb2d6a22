// Package pty implements C5: one pseudo-terminal attached to a
// multiplexer session, bridging bytes between the child process and a
// client with coalescing, resize, and idempotent teardown.
package pty

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/decoder"
	"github.com/stellarlinkco/webmux/internal/tmux"
)

var ptyLog = log.New(os.Stderr, "[pty] ", log.LstdFlags)

// sshEnvPrefixes lists environment variables that would advertise a
// remote-login origin; stripped so shell prompt renderers behave as
// for a local terminal.
var sshEnvPrefixes = []string{"SSH_CLIENT", "SSH_CONNECTION", "SSH_TTY", "SSH_AUTH_SOCK"}

// Session owns one pseudo-terminal attached to a multiplexer session.
type Session struct {
	SessionName string

	master *os.File
	cmd    *exec.Cmd
	dec    *decoder.Stream

	writeMu sync.Mutex

	cfg config.PTYConfig

	out     chan<- string // Output text, owned by the caller (C6)
	onExit  func()        // invoked once, after the reader loop ends

	cancel context.CancelFunc
	done   chan struct{}

	teardownOnce sync.Once
}

// Attach spawns the multiplexer's attach command against a freshly
// opened PTY of the given size, creating the named session first if
// it doesn't already exist. out receives coalesced Output text;
// onExit is invoked exactly once when the reader loop terminates
// (EOF, unrecoverable error, or Close).
func Attach(mux *tmux.Adapter, cfg config.PTYConfig, shellBinary, sessionName string, cols, rows int, out chan<- string, onExit func()) (*Session, error) {
	if !mux.HasSession(sessionName) {
		if err := mux.CreateSessionWithShell(sessionName, shellBinary); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	cmd := exec.Command(mux.Binary, "attach-session", "-t", sessionName)
	cmd.Env = childEnv()

	s, err := start(cmd, sessionName, cfg, cols, rows, out, onExit)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	return s, nil
}

// start wires up a Session around an already-built *exec.Cmd. Split
// out from Attach so tests can drive the reader-loop/coalescing logic
// against a plain command instead of requiring a real multiplexer
// binary on the test host.
func start(cmd *exec.Cmd, sessionName string, cfg config.PTYConfig, cols, rows int, out chan<- string, onExit func()) (*Session, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		SessionName: sessionName,
		master:      ptmx,
		cmd:         cmd,
		dec:         decoder.New(),
		cfg:         cfg,
		out:         out,
		onExit:      onExit,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go s.readLoop(ctx)
	return s, nil
}

// childEnv builds the attach command's environment: local-terminal
// hints set, anything that would advertise a remote-login origin
// stripped.
func childEnv() []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		stripped := false
		for _, prefix := range sshEnvPrefixes {
			if strings.HasPrefix(kv, prefix+"=") {
				stripped = true
				break
			}
		}
		if !stripped {
			env = append(env, kv)
		}
	}
	env = append(env, "TERM=xterm-256color", "COLORTERM=truecolor", "WEBMUX=1")
	return env
}

func (s *Session) readLoop(ctx context.Context) {
	defer close(s.done)
	defer s.flushAndNotifyExit()

	buf := make([]byte, 8*1024)
	var pending strings.Builder
	lastFlush := time.Now()
	var sinceRead int
	consecutiveErrors := 0

	flush := func() {
		if pending.Len() == 0 {
			return
		}
		select {
		case s.out <- pending.String():
		case <-ctx.Done():
		}
		pending.Reset()
		lastFlush = time.Now()
	}

	flushInterval := time.Duration(s.cfg.FlushIntervalMs) * time.Millisecond
	flowChunk := s.cfg.FlowControlChunkBytes
	flowPause := time.Duration(s.cfg.FlowControlPauseMs) * time.Millisecond
	maxErrors := s.cfg.MaxConsecutiveErrors
	errPause := time.Duration(s.cfg.ErrorPauseMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.master.Read(buf)
		if n > 0 {
			consecutiveErrors = 0
			text := s.dec.Decode(buf[:n])
			pending.WriteString(text)
			sinceRead += n

			shouldFlush := pending.Len() > s.cfg.FlushBytes ||
				strings.Contains(text, "\n") ||
				time.Since(lastFlush) >= flushInterval
			if shouldFlush {
				flush()
			}
			if sinceRead >= flowChunk {
				sinceRead = 0
				time.Sleep(flowPause)
			}
		}
		if err != nil {
			consecutiveErrors++
			if isClean(err) || consecutiveErrors >= maxErrors {
				flush()
				return
			}
			ptyLog.Printf("%s: read error (%d/%d): %v", s.SessionName, consecutiveErrors, maxErrors, err)
			time.Sleep(errPause)
		}
	}
}

func isClean(err error) bool {
	// EOF and the "file already closed" error from the teardown path
	// are expected terminations, not flaky reads.
	msg := err.Error()
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "file already closed") || strings.Contains(msg, "input/output error")
}

func (s *Session) flushAndNotifyExit() {
	if s.onExit != nil {
		s.onExit()
	}
}

// Write sends data to the PTY master. The underlying handle is not
// write-safe across goroutines, so writes are serialized.
func (s *Session) Write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.master.Write(data)
	return err
}

// Resize applies new dimensions to the master side. Pixel dimensions
// are always zero.
func (s *Session) Resize(cols, rows int) error {
	return pty.Setsize(s.master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Close kills the child, waits for it, and stops the reader loop.
// Idempotent: safe to call more than once, including after the child
// has already exited on its own.
func (s *Session) Close() {
	s.teardownOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.cancel()
		_ = s.master.Close()
		_, _ = s.cmd.Process.Wait()
		<-s.done
	})
}
