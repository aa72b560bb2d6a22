// Package tmux implements C8: a thin adapter over the tmux binary,
// invoked as a child process with its stdout parsed.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Adapter shells out to a multiplexer binary (tmux by default, or a
// compatible drop-in configured via Config.Multiplexer.Binary).
type Adapter struct {
	Binary string
}

func New(binary string) *Adapter {
	if binary == "" {
		binary = "tmux"
	}
	return &Adapter{Binary: binary}
}

func (a *Adapter) run(args ...string) (string, error) {
	cmd := exec.Command(a.Binary, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%s %s: %s", a.Binary, strings.Join(args, " "), strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("%s %s: %w", a.Binary, strings.Join(args, " "), err)
	}
	return string(out), nil
}

type Window struct {
	Index  int
	Name   string
	Active bool
}

func (a *Adapter) ListSessions() ([]string, error) {
	out, err := a.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, err
	}
	return splitNonEmpty(out), nil
}

func (a *Adapter) ListWindows(session string) ([]Window, error) {
	out, err := a.run("list-windows", "-t", session, "-F", "#{window_index}\t#{window_name}\t#{window_active}")
	if err != nil {
		return nil, err
	}
	var windows []Window
	for _, line := range splitNonEmpty(out) {
		parts := strings.Split(line, "\t")
		if len(parts) != 3 {
			continue
		}
		idx, _ := strconv.Atoi(parts[0])
		windows = append(windows, Window{Index: idx, Name: parts[1], Active: parts[2] == "1"})
	}
	return windows, nil
}

func (a *Adapter) HasSession(name string) bool {
	cmd := exec.Command(a.Binary, "has-session", "-t", name)
	return cmd.Run() == nil
}

func (a *Adapter) CreateSession(name string) error {
	_, err := a.run("new-session", "-d", "-s", name)
	return err
}

// CreateSessionWithShell is CreateSession but pins the session's
// initial command to a specific shell binary instead of the
// multiplexer's configured default.
func (a *Adapter) CreateSessionWithShell(name, shellBinary string) error {
	if shellBinary == "" {
		return a.CreateSession(name)
	}
	_, err := a.run("new-session", "-d", "-s", name, shellBinary)
	return err
}

func (a *Adapter) KillSession(name string) error {
	_, err := a.run("kill-session", "-t", name)
	return err
}

func (a *Adapter) RenameSession(oldName, newName string) error {
	_, err := a.run("rename-session", "-t", oldName, newName)
	return err
}

func (a *Adapter) CreateWindow(session, name string) error {
	args := []string{"new-window", "-t", session}
	if name != "" {
		args = append(args, "-n", name)
	}
	_, err := a.run(args...)
	return err
}

func (a *Adapter) KillWindow(session string, index int) error {
	_, err := a.run("kill-window", "-t", fmt.Sprintf("%s:%d", session, index))
	return err
}

func (a *Adapter) RenameWindow(session string, index int, newName string) error {
	_, err := a.run("rename-window", "-t", fmt.Sprintf("%s:%d", session, index), newName)
	return err
}

func (a *Adapter) SelectWindow(session string, index int) error {
	_, err := a.run("select-window", "-t", fmt.Sprintf("%s:%d", session, index))
	return err
}

// PanePID returns the process id of target's primary pane. Just after
// a session or window is created the pane may not be queryable yet,
// so the lookup is retried briefly with backoff rather than failing
// on the first race.
func (a *Adapter) PanePID(target string) (int, error) {
	op := func() (int, error) {
		out, err := a.run("display-message", "-t", target, "-p", "#{pane_pid}")
		if err != nil {
			return 0, err
		}
		pid, err := strconv.Atoi(strings.TrimSpace(out))
		if err != nil {
			return 0, fmt.Errorf("parse pane pid %q: %w", out, err)
		}
		return pid, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return backoff.Retry(ctx, op, backoff.WithBackOff(bo))
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
