package pty

import (
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellarlinkco/webmux/internal/config"
)

func testConfig() config.PTYConfig {
	cfg := config.DefaultConfig().PTY
	cfg.FlushIntervalMs = 5
	return cfg
}

func TestSession_WriteAndReadEcho(t *testing.T) {
	out := make(chan string, 64)
	var exited sync.WaitGroup
	exited.Add(1)

	cmd := exec.Command("/bin/sh", "-i")
	s, err := start(cmd, "test", testConfig(), 80, 24, out, exited.Done)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if err := s.Write([]byte("echo hello-from-pty\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	var collected strings.Builder
	for {
		select {
		case chunk := <-out:
			collected.WriteString(chunk)
			if strings.Contains(collected.String(), "hello-from-pty") {
				return
			}
		case <-deadline:
			t.Fatalf("did not see echoed output, got: %q", collected.String())
		}
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	out := make(chan string, 8)
	cmd := exec.Command("/bin/sh", "-i")
	s, err := start(cmd, "test", testConfig(), 80, 24, out, func() {})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Close()
	s.Close() // must not panic or block
}

func TestSession_Resize(t *testing.T) {
	out := make(chan string, 8)
	cmd := exec.Command("/bin/sh", "-i")
	s, err := start(cmd, "test", testConfig(), 80, 24, out, func() {})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	if err := s.Resize(120, 40); err != nil {
		t.Errorf("resize error: %v", err)
	}
}
