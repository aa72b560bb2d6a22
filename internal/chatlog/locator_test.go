package chatlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParsePPID(t *testing.T) {
	cases := []struct {
		stat string
		want int
		ok   bool
	}{
		{"123 (bash) S 1 123 123 0 -1 4194304 ...", 1, true},
		{"123 (my (weird) cmd) S 7 123 123 0 -1 4194304 ...", 7, true},
		{"not a stat line", 0, false},
		{"123 (bash)", 0, false},
	}
	for _, c := range cases {
		got, ok := parsePPID(c.stat)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("parsePPID(%q) = (%d, %v), want (%d, %v)", c.stat, got, ok, c.want, c.ok)
		}
	}
}

func TestNewestWithExt_NoDirReturnsErrNoLogFile(t *testing.T) {
	_, err := newestWithExt(filepath.Join(t.TempDir(), "missing"), ".jsonl")
	if err != ErrNoLogFile {
		t.Errorf("err = %v, want ErrNoLogFile", err)
	}
}

func TestNewestWithExt_PicksMostRecentlyModified(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "a.jsonl")
	newer := filepath.Join(dir, "b.jsonl")
	ignored := filepath.Join(dir, "c.txt")

	if err := os.WriteFile(older, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := os.WriteFile(newer, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ignored, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := newestWithExt(dir, ".jsonl")
	if err != nil {
		t.Fatalf("newestWithExt: %v", err)
	}
	if got != newer {
		t.Errorf("got %q, want %q", got, newer)
	}
}

func TestNewestMatching_PrefixAndSuffix(t *testing.T) {
	dir := t.TempDir()
	match := filepath.Join(dir, "webmux-codex-1.jsonl")
	noMatch := filepath.Join(dir, "other-1.jsonl")
	if err := os.WriteFile(match, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(noMatch, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := newestMatching(dir, "webmux-codex-", ".jsonl")
	if err != nil {
		t.Fatalf("newestMatching: %v", err)
	}
	if got != match {
		t.Errorf("got %q, want %q", got, match)
	}
}

func TestLocator_FindClaudeLog_EncodesCwdAsDirName(t *testing.T) {
	root := t.TempDir()
	cwd := "/home/dev/project"
	encoded := filepath.Join(root, "-home-dev-project")
	if err := os.MkdirAll(encoded, 0755); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(encoded, "session.jsonl")
	if err := os.WriteFile(logFile, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	l := Locator{ClaudeProjectsRoot: root}
	got, err := l.findClaudeLog(cwd)
	if err != nil {
		t.Fatalf("findClaudeLog: %v", err)
	}
	if got != logFile {
		t.Errorf("got %q, want %q", got, logFile)
	}
}

func TestLocator_Locate_PanePIDErrorPropagates(t *testing.T) {
	l := Locator{
		PanePID: func(target string) (int, error) {
			return 0, os.ErrNotExist
		},
	}
	_, _, err := l.Locate("session:0")
	if err == nil {
		t.Fatal("expected an error when PanePID fails")
	}
}

func TestLocator_Locate_NoAiToolFoundWhenTargetIsLeafProcess(t *testing.T) {
	l := Locator{
		PanePID: func(target string) (int, error) {
			return os.Getpid(), nil
		},
	}
	_, _, err := l.Locate("session:0")
	if err != ErrNoAiToolFound {
		t.Errorf("err = %v, want ErrNoAiToolFound (test process has no claude/codex descendant)", err)
	}
}
