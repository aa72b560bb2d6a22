// Package client implements C6: the per-client state machine that
// dispatches inbound commands, owns at most one PTY session and one
// chat-log tailer, and serializes outbound messages onto one socket.
package client

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/stellarlinkco/webmux/internal/chatlog"
	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/pty"
	"github.com/stellarlinkco/webmux/internal/registry"
	"github.com/stellarlinkco/webmux/internal/tmux"
	"github.com/stellarlinkco/webmux/internal/wire"
)

var clientLog = log.New(os.Stderr, "[client] ", log.LstdFlags)

// outboundQueueSize is large enough to behave as "unbounded from the
// producer side" for realistic terminal output bursts without
// requiring an actually-unbounded buffer.
const outboundQueueSize = 4096

// Collaborators bundles the external services a Client delegates
// non-PTY commands to, injected so the gateway wires concrete
// implementations and tests can use fakes.
type Collaborators struct {
	Mux      *tmux.Adapter
	Cron     CronService
	Dotfiles DotfileStore
	Stats    StatsProvider
}

// CronService is the contract C6 needs from the cron scheduler.
type CronService interface {
	ListJobs() []wire.CronJob
	AddJob(name string, schedule map[string]any, message string) (wire.CronJob, error)
	RemoveJob(id string) error
}

// DotfileStore is the contract C6 needs from the dotfile store.
type DotfileStore interface {
	List() []wire.Dotfile
	Save(path, content string) error
	Delete(path string) error
}

// StatsProvider is the contract C6 needs from the system-stats
// collector.
type StatsProvider interface {
	Snapshot() wire.Stats
}

// Client is one connection's state machine.
type Client struct {
	ID   string
	conn *websocket.Conn
	reg  *registry.Registry
	cfg  *config.Config
	col  Collaborators

	locator chatlog.Locator

	outbound chan []byte

	mu          sync.Mutex
	ptySession  *pty.Session
	sessionName string
	tailerStop  func()
}

// New accepts a connection's identity and wires it into the registry.
func New(conn *websocket.Conn, reg *registry.Registry, cfg *config.Config, col Collaborators) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		conn:     conn,
		reg:      reg,
		cfg:      cfg,
		col:      col,
		outbound: make(chan []byte, outboundQueueSize),
		locator: chatlog.Locator{
			PanePID:            col.Mux.PanePID,
			ClaudeProjectsRoot: cfg.ChatLog.ClaudeProjectsRoot,
			CodexLogDir:        cfg.ChatLog.CodexLogDir,
		},
	}
	reg.Add(c.ID, c.outbound)
	return c
}

// Run drives the client until its connection closes. It starts the
// outbound writer, then reads inbound frames until the socket closes
// or an unrecoverable send error occurs, then tears down everything
// this client owns.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	c.readLoop(ctx)
	cancel()
	wg.Wait()
	c.cleanup()
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			// Audio pass-through has no local capture backend in this
			// repository; accept and drop.
			continue
		}

		cmd, err := wire.Decode(data)
		if err != nil {
			clientLog.Printf("client %s: malformed inbound frame: %v", c.ID, err)
			continue
		}
		c.dispatch(ctx, cmd)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	antiFloodThreshold := c.cfg.PTY.AntiFloodThresholdBytes
	antiFloodPause := time.Duration(c.cfg.PTY.AntiFloodPauseMicros) * time.Microsecond

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.outbound:
			if !ok {
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				clientLog.Printf("client %s: send failed, closing: %v", c.ID, err)
				return
			}
			if len(payload) > antiFloodThreshold && strings.Contains(string(payload), `"type":"output"`) {
				time.Sleep(antiFloodPause)
			}
		}
	}
}

func (c *Client) enqueue(tag string, v any) {
	payload, err := wire.Encode(tag, v)
	if err != nil {
		clientLog.Printf("client %s: encode %s: %v", c.ID, tag, err)
		return
	}
	select {
	case c.outbound <- payload:
	default:
		clientLog.Printf("client %s: outbound queue full, dropping %s", c.ID, tag)
	}
}

func (c *Client) cleanup() {
	c.mu.Lock()
	tailerStop := c.tailerStop
	ptySession := c.ptySession
	c.tailerStop = nil
	c.ptySession = nil
	c.mu.Unlock()

	if tailerStop != nil {
		tailerStop()
	}
	if ptySession != nil {
		ptySession.Close()
	}
	c.reg.Remove(c.ID)
}

func targetOf(session string, window int) string {
	return fmt.Sprintf("%s:%d", session, window)
}
