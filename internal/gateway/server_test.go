package gateway

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/wire"
)

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = port
	cfg.Multiplexer.Binary = "webmux-test-nonexistent-tmux-binary"
	cfg.Dotfiles.DBPath = filepath.Join(t.TempDir(), "dotfiles.db")
	cfg.Cron.StorePath = filepath.Join(t.TempDir(), "cron.json")
	cfg.Stats.PollIntervalMs = 50
	return cfg
}

func TestServer_PingPong(t *testing.T) {
	cfg := testConfig(t, 19878)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	time.Sleep(150 * time.Millisecond)

	conn, _, err := websocket.Dial(ctx, "ws://127.0.0.1:19878/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	payload, _ := wire.Encode(wire.CmdPing, wire.InboundCommand{Type: wire.CmdPing})
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg["type"] != wire.MsgPong {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgPong)
	}
}

func TestServer_DotfileRoundTrip(t *testing.T) {
	cfg := testConfig(t, 19879)
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	time.Sleep(150 * time.Millisecond)

	conn, _, err := websocket.Dial(ctx, "ws://127.0.0.1:19879/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	save, _ := wire.Encode(wire.CmdSaveDotfile, wire.InboundCommand{Type: wire.CmdSaveDotfile, Path: ".bashrc", Content: "export X=1"})
	if err := conn.Write(ctx, websocket.MessageText, save); err != nil {
		t.Fatalf("write save: %v", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg["type"] != wire.MsgDotfilesList {
		t.Fatalf("type = %v, want %s", msg["type"], wire.MsgDotfilesList)
	}
	dotfiles, _ := msg["dotfiles"].([]any)
	if len(dotfiles) != 1 {
		t.Errorf("dotfiles = %v, want 1 entry", dotfiles)
	}
}
