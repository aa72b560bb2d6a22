package client

import (
	"context"
	"time"

	"github.com/stellarlinkco/webmux/internal/chatlog"
	"github.com/stellarlinkco/webmux/internal/pty"
	"github.com/stellarlinkco/webmux/internal/tmux"
	"github.com/stellarlinkco/webmux/internal/wire"
)

// dispatch routes one decoded inbound command to its handler. Every
// handler is responsible for its own outbound reply (possibly none).
func (c *Client) dispatch(ctx context.Context, cmd wire.InboundCommand) {
	switch cmd.Type {
	case wire.CmdListSessions:
		c.handleListSessions()
	case wire.CmdAttachSession:
		c.handleAttachSession(cmd)
	case wire.CmdInput:
		c.handleInput(cmd)
	case wire.CmdResize:
		c.handleResize(cmd)
	case wire.CmdListWindows:
		c.handleListWindows(cmd)
	case wire.CmdSelectWindow:
		c.handleSelectWindow(cmd)
	case wire.CmdPing:
		c.enqueue(wire.MsgPong, wire.Pong{})
	case wire.CmdAudioControl:
		c.handleAudioControl(cmd)
	case wire.CmdCreateSession:
		c.handleCreateSession(cmd)
	case wire.CmdKillSession:
		c.handleKillSession(cmd)
	case wire.CmdRenameSession:
		c.handleRenameSession(cmd)
	case wire.CmdCreateWindow:
		c.handleCreateWindow(cmd)
	case wire.CmdKillWindow:
		c.handleKillWindow(cmd)
	case wire.CmdRenameWindow:
		c.handleRenameWindow(cmd)
	case wire.CmdGetStats:
		c.handleGetStats()
	case wire.CmdWatchChatLog:
		c.handleWatchChatLog(ctx, cmd)
	case wire.CmdUnwatchChatLog:
		c.handleUnwatchChatLog()
	case wire.CmdListCronJobs:
		c.enqueue(wire.MsgCronJobsList, wire.CronJobsList{Jobs: c.col.Cron.ListJobs()})
	case wire.CmdAddCronJob:
		c.handleAddCronJob(cmd)
	case wire.CmdRemoveCronJob:
		c.handleRemoveCronJob(cmd)
	case wire.CmdListDotfiles:
		c.enqueue(wire.MsgDotfilesList, wire.DotfilesList{Dotfiles: c.col.Dotfiles.List()})
	case wire.CmdSaveDotfile:
		c.handleSaveDotfile(cmd)
	case wire.CmdDeleteDotfile:
		c.handleDeleteDotfile(cmd)
	default:
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: "unknown command: " + cmd.Type})
	}
}

func (c *Client) handleListSessions() {
	names, err := c.col.Mux.ListSessions()
	if err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	sessions := make([]wire.SessionInfo, 0, len(names))
	for _, name := range names {
		windows, _ := c.col.Mux.ListWindows(name)
		sessions = append(sessions, wire.SessionInfo{Name: name, Windows: toWireWindows(windows)})
	}
	c.enqueue(wire.MsgSessionsList, wire.SessionsList{Sessions: sessions})
}

func (c *Client) handleListWindows(cmd wire.InboundCommand) {
	windows, err := c.col.Mux.ListWindows(cmd.SessionName)
	if err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgWindowsList, wire.WindowsList{SessionName: cmd.SessionName, Windows: toWireWindows(windows)})
}

// handleSelectWindow selects a window in the given session, first
// performing an implicit 80x24 attach if this client isn't already
// attached to that session.
func (c *Client) handleSelectWindow(cmd wire.InboundCommand) {
	c.mu.Lock()
	current := c.sessionName
	c.mu.Unlock()

	if current != cmd.SessionName {
		c.handleAttachSession(wire.InboundCommand{
			Type:        wire.CmdAttachSession,
			SessionName: cmd.SessionName,
			Cols:        80,
			Rows:        24,
		})
	}

	err := c.col.Mux.SelectWindow(cmd.SessionName, cmd.WindowIndex)
	if err != nil {
		c.enqueue(wire.MsgWindowSelected, wire.WindowSelected{Success: false, Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgWindowSelected, wire.WindowSelected{Success: true, Index: cmd.WindowIndex})
}

func (c *Client) handleCreateSession(cmd wire.InboundCommand) {
	err := c.col.Mux.CreateSession(cmd.Name)
	c.reportMutation("create-session", err)
}

func (c *Client) handleKillSession(cmd wire.InboundCommand) {
	c.mu.Lock()
	if c.sessionName == cmd.SessionName && c.ptySession != nil {
		c.teardownPTYLocked()
	}
	c.mu.Unlock()

	err := c.col.Mux.KillSession(cmd.SessionName)
	c.reportMutation("kill-session", err)
}

func (c *Client) handleRenameSession(cmd wire.InboundCommand) {
	err := c.col.Mux.RenameSession(cmd.SessionName, cmd.NewName)
	c.reportMutation("rename-session", err)
}

func (c *Client) handleCreateWindow(cmd wire.InboundCommand) {
	err := c.col.Mux.CreateWindow(cmd.SessionName, cmd.WindowName)
	c.reportMutation("create-window", err)
}

func (c *Client) handleKillWindow(cmd wire.InboundCommand) {
	err := c.col.Mux.KillWindow(cmd.SessionName, cmd.WindowIndex)
	c.reportMutation("kill-window", err)
}

func (c *Client) handleRenameWindow(cmd wire.InboundCommand) {
	err := c.col.Mux.RenameWindow(cmd.SessionName, cmd.WindowIndex, cmd.NewName)
	c.reportMutation("rename-window", err)
}

func (c *Client) reportMutation(command string, err error) {
	if err != nil {
		c.enqueue(wire.MsgMutationResult, wire.MutationResult{Command: command, Success: false, Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgMutationResult, wire.MutationResult{Command: command, Success: true})
}

func (c *Client) handleGetStats() {
	c.enqueue(wire.MsgStats, c.col.Stats.Snapshot())
}

func (c *Client) handleAudioControl(cmd wire.InboundCommand) {
	// No local audio capture backend is wired in this repository; the
	// control handshake is honored so a browser client's UI state stays
	// consistent, but no stream ever follows.
	c.enqueue(wire.MsgAudioStatus, wire.AudioStatus{Active: cmd.Action == "start"})
}

// handleAttachSession tears down any PTY this client already owns,
// waits out the teardown settle delay, then attaches a fresh one to
// the requested session.
func (c *Client) handleAttachSession(cmd wire.InboundCommand) {
	cols := cmd.Cols
	if cols <= 0 {
		cols = c.cfg.PTY.InitialCols
	}
	rows := cmd.Rows
	if rows <= 0 {
		rows = c.cfg.PTY.InitialRows
	}

	c.mu.Lock()
	hadPrevious := c.ptySession != nil
	c.teardownPTYLocked()
	c.mu.Unlock()

	if hadPrevious {
		time.Sleep(time.Duration(c.cfg.PTY.TeardownSettleMs) * time.Millisecond)
	}

	outCh := make(chan string, 256)
	session, err := pty.Attach(c.col.Mux, c.cfg.PTY, c.cfg.Multiplexer.Shell, cmd.SessionName, cols, rows, outCh, func() {
		c.enqueue(wire.MsgDisconnected, wire.Disconnected{Reason: "session ended"})
	})
	if err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.ptySession = session
	c.sessionName = cmd.SessionName
	c.mu.Unlock()

	go c.pumpPTYOutput(outCh)

	c.enqueue(wire.MsgAttached, wire.Attached{SessionName: cmd.SessionName})
}

func (c *Client) pumpPTYOutput(outCh <-chan string) {
	for text := range outCh {
		c.enqueue(wire.MsgOutput, wire.Output{Data: text})
	}
}

func (c *Client) handleInput(cmd wire.InboundCommand) {
	c.mu.Lock()
	session := c.ptySession
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Write([]byte(cmd.Data)); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
	}
}

func (c *Client) handleResize(cmd wire.InboundCommand) {
	c.mu.Lock()
	session := c.ptySession
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Resize(cmd.Cols, cmd.Rows); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
	}
}

// teardownPTYLocked closes the owned PTY session, if any. Caller must
// hold c.mu.
func (c *Client) teardownPTYLocked() {
	if c.ptySession != nil {
		c.ptySession.Close()
		c.ptySession = nil
		c.sessionName = ""
	}
}

func (c *Client) handleWatchChatLog(ctx context.Context, cmd wire.InboundCommand) {
	c.mu.Lock()
	if c.tailerStop != nil {
		c.tailerStop()
		c.tailerStop = nil
	}
	c.mu.Unlock()

	target := targetOf(cmd.SessionName, cmd.WindowIndex)
	path, dialect, err := c.locator.Locate(target)
	if err != nil {
		c.enqueue(wire.MsgChatLogError, wire.ChatLogError{Error: err.Error()})
		return
	}

	events, stop, err := chatlog.Watch(ctx, path, dialect)
	if err != nil {
		c.enqueue(wire.MsgChatLogError, wire.ChatLogError{Error: err.Error()})
		return
	}

	c.mu.Lock()
	c.tailerStop = stop
	c.mu.Unlock()

	go c.pumpChatLogEvents(events, dialect)
}

func (c *Client) pumpChatLogEvents(events <-chan chatlog.Event, dialect chatlog.Dialect) {
	for ev := range events {
		switch ev.Kind {
		case chatlog.EventHistory:
			c.enqueue(wire.MsgChatHistory, wire.ChatHistory{Messages: ev.History, Dialect: string(dialect)})
		case chatlog.EventMessage:
			if ev.Message != nil {
				c.enqueue(wire.MsgChatEvent, wire.ChatEvent{Message: *ev.Message})
			}
		case chatlog.EventError:
			c.enqueue(wire.MsgChatLogError, wire.ChatLogError{Error: ev.Err})
		}
	}
}

func (c *Client) handleUnwatchChatLog() {
	c.mu.Lock()
	stop := c.tailerStop
	c.tailerStop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Client) handleAddCronJob(cmd wire.InboundCommand) {
	if _, err := c.col.Cron.AddJob(cmd.JobName, cmd.Schedule, cmd.Message); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgCronJobsList, wire.CronJobsList{Jobs: c.col.Cron.ListJobs()})
}

func (c *Client) handleRemoveCronJob(cmd wire.InboundCommand) {
	if err := c.col.Cron.RemoveJob(cmd.JobID); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgCronJobsList, wire.CronJobsList{Jobs: c.col.Cron.ListJobs()})
}

func (c *Client) handleSaveDotfile(cmd wire.InboundCommand) {
	if err := c.col.Dotfiles.Save(cmd.Path, cmd.Content); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgDotfilesList, wire.DotfilesList{Dotfiles: c.col.Dotfiles.List()})
}

func (c *Client) handleDeleteDotfile(cmd wire.InboundCommand) {
	if err := c.col.Dotfiles.Delete(cmd.Path); err != nil {
		c.enqueue(wire.MsgError, wire.ErrorMsg{Error: err.Error()})
		return
	}
	c.enqueue(wire.MsgDotfilesList, wire.DotfilesList{Dotfiles: c.col.Dotfiles.List()})
}

func toWireWindows(windows []tmux.Window) []wire.WindowInfo {
	out := make([]wire.WindowInfo, 0, len(windows))
	for _, w := range windows {
		out = append(out, wire.WindowInfo{Index: w.Index, Name: w.Name, Active: w.Active})
	}
	return out
}
