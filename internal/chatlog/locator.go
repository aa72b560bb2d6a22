package chatlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoAiToolFound is returned when neither assistant executable
// appears among a target's descendant processes.
var ErrNoAiToolFound = errors.New("no AI tool found in process tree")

// ErrNoLogFile is returned when a dialect's log directory is absent or
// holds no candidate file.
var ErrNoLogFile = errors.New("no log file found")

// PanePIDFunc resolves a multiplexer target ("session:window") to its
// primary pane's process id — the seed for the process-tree walk.
// Implemented by the multiplexer adapter (C8); passed in rather than
// imported to keep this package free of a dependency on C8's shell-out
// details.
type PanePIDFunc func(target string) (int, error)

// Locator implements C3: from a multiplexer target, finds the log
// file of whichever supported AI coding assistant is running inside
// it, by walking /proc.
type Locator struct {
	PanePID            PanePIDFunc
	ClaudeProjectsRoot string
	CodexLogDir        string
}

// Locate resolves target ("session:window") to a log file path and
// the dialect that produced it.
func (l Locator) Locate(target string) (path string, dialect Dialect, err error) {
	pid, err := l.PanePID(target)
	if err != nil {
		return "", "", fmt.Errorf("pane pid: %w", err)
	}

	descendants, err := descendantPIDs(pid)
	if err != nil {
		return "", "", fmt.Errorf("walk process tree: %w", err)
	}

	for _, dpid := range descendants {
		name, err := processName(dpid)
		if err != nil {
			continue
		}
		switch name {
		case "claude":
			cwd, err := processCwd(dpid)
			if err != nil {
				return "", "", fmt.Errorf("claude cwd: %w", err)
			}
			p, err := l.findClaudeLog(cwd)
			if err != nil {
				return "", "", err
			}
			return p, DialectAssistantA, nil
		case "codex":
			p, err := l.findCodexLog()
			if err != nil {
				return "", "", err
			}
			return p, DialectAssistantB, nil
		}
	}

	return "", "", ErrNoAiToolFound
}

func (l Locator) findClaudeLog(cwd string) (string, error) {
	encoded := strings.ReplaceAll(cwd, "/", "-")
	dir := filepath.Join(l.ClaudeProjectsRoot, encoded)
	return newestWithExt(dir, ".jsonl")
}

func (l Locator) findCodexLog() (string, error) {
	dir := l.CodexLogDir
	if dir == "" {
		dir = os.TempDir()
	}
	return newestMatching(dir, "webmux-codex-", ".jsonl")
}

func newestWithExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ErrNoLogFile
	}
	return newest(dir, entries, func(name string) bool {
		return strings.HasSuffix(name, ext)
	})
}

func newestMatching(dir, prefix, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ErrNoLogFile
	}
	return newest(dir, entries, func(name string) bool {
		return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
	})
}

func newest(dir string, entries []os.DirEntry, match func(name string) bool) (string, error) {
	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", ErrNoLogFile
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].path, nil
}

// descendantPIDs does a breadth-first walk of /proc to find every
// process descended from root, root included.
func descendantPIDs(root int) ([]int, error) {
	children, err := allChildren()
	if err != nil {
		return nil, err
	}

	result := []int{root}
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range children[pid] {
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}

// allChildren scans every /proc/<pid>/stat and groups pids by parent.
// The command field (comm) may itself contain spaces or a literal ")"
// so the parse splits on the *last* ")" in the line.
func allChildren() (map[int][]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	children := make(map[int][]int)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/proc", e.Name(), "stat"))
		if err != nil {
			continue
		}
		ppid, ok := parsePPID(string(data))
		if !ok {
			continue
		}
		children[ppid] = append(children[ppid], pid)
	}
	return children, nil
}

func parsePPID(stat string) (int, bool) {
	stat = strings.TrimRight(stat, "\n")
	idx := strings.LastIndex(stat, ")")
	if idx == -1 || idx+2 >= len(stat) {
		return 0, false
	}
	fields := strings.Fields(stat[idx+2:])
	// fields[0] is state, fields[1] is ppid.
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

func processName(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func processCwd(pid int) (string, error) {
	return os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
}
