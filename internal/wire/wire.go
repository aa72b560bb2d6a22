// Package wire defines the JSON shapes exchanged with the browser over
// the websocket connection: one tagged object per message, "type" in
// kebab-case, other fields in camelCase.
package wire

import (
	"encoding/json"
	"fmt"
)

// Inbound command type tags.
const (
	CmdListSessions    = "list-sessions"
	CmdAttachSession   = "attach-session"
	CmdInput           = "input"
	CmdResize          = "resize"
	CmdListWindows     = "list-windows"
	CmdSelectWindow    = "select-window"
	CmdPing            = "ping"
	CmdAudioControl    = "audio-control"
	CmdCreateSession   = "create-session"
	CmdKillSession     = "kill-session"
	CmdRenameSession   = "rename-session"
	CmdCreateWindow    = "create-window"
	CmdKillWindow      = "kill-window"
	CmdRenameWindow    = "rename-window"
	CmdGetStats        = "get-stats"
	CmdWatchChatLog    = "watch-chat-log"
	CmdUnwatchChatLog  = "unwatch-chat-log"
	CmdListCronJobs    = "list-cron-jobs"
	CmdAddCronJob      = "add-cron-job"
	CmdRemoveCronJob   = "remove-cron-job"
	CmdListDotfiles    = "list-dotfiles"
	CmdSaveDotfile     = "save-dotfile"
	CmdDeleteDotfile   = "delete-dotfile"
)

// Outbound message type tags.
const (
	MsgSessionsList   = "sessions-list"
	MsgAttached       = "attached"
	MsgOutput         = "output"
	MsgDisconnected   = "disconnected"
	MsgWindowsList    = "windows-list"
	MsgWindowSelected = "window-selected"
	MsgPong           = "pong"
	MsgAudioStatus    = "audio-status"
	MsgAudioStream    = "audio-stream"
	MsgMutationResult = "mutation-result"
	MsgStats          = "stats"
	MsgError          = "error"
	MsgChatHistory    = "chat-history"
	MsgChatEvent      = "chat-event"
	MsgChatLogError   = "chat-log-error"
	MsgCronJobsList   = "cron-jobs-list"
	MsgDotfilesList   = "dotfiles-list"
)

// InboundCommand is the union of every field any inbound command tag
// might carry. Only the fields relevant to Type are meaningful; the
// rest are the zero value. Unmarshal once, dispatch on Type.
type InboundCommand struct {
	Type string `json:"type"`

	SessionName string `json:"sessionName,omitempty"`
	Cols        int    `json:"cols,omitempty"`
	Rows        int    `json:"rows,omitempty"`
	Data        string `json:"data,omitempty"`
	WindowIndex int    `json:"windowIndex,omitempty"`
	WindowName  string `json:"windowName,omitempty"`
	NewName     string `json:"newName,omitempty"`
	Name        string `json:"name,omitempty"`
	Action      string `json:"action,omitempty"`

	JobID    string         `json:"jobId,omitempty"`
	JobName  string         `json:"jobName,omitempty"`
	Schedule map[string]any `json:"schedule,omitempty"`
	Message  string         `json:"message,omitempty"`

	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
}

// Decode parses one inbound text frame.
func Decode(data []byte) (InboundCommand, error) {
	var cmd InboundCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return InboundCommand{}, fmt.Errorf("decode inbound command: %w", err)
	}
	return cmd, nil
}

// Encode serializes an outbound payload with its type tag injected as
// the first-class "type" field, matching the wire's tagged-object
// convention. v must marshal to a JSON object (a struct or map).
func Encode(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", tag, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: payload is not a JSON object: %w", tag, err)
	}
	tagJSON, _ := json.Marshal(tag)
	fields["type"] = tagJSON
	return json.Marshal(fields)
}

// --- Outbound payload shapes (tag carried separately via Encode) ---

type SessionInfo struct {
	Name    string       `json:"name"`
	Windows []WindowInfo `json:"windows,omitempty"`
}

type WindowInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type SessionsList struct {
	Sessions []SessionInfo `json:"sessions"`
}

type Attached struct {
	SessionName string `json:"sessionName"`
}

type Output struct {
	Data string `json:"data"`
}

type Disconnected struct {
	Reason string `json:"reason,omitempty"`
}

type WindowsList struct {
	SessionName string       `json:"sessionName"`
	Windows     []WindowInfo `json:"windows"`
}

type WindowSelected struct {
	Success bool   `json:"success"`
	Index   int    `json:"index,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Pong struct{}

type AudioStatus struct {
	Active bool `json:"active"`
}

// MutationResult is the generic reply for session/window mutation
// commands (create/kill/rename): exactly one outbound message per
// mutation attempt, success or failure.
type MutationResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Stats struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemUsedBytes  uint64  `json:"memUsedBytes"`
	MemTotalBytes uint64  `json:"memTotalBytes"`
}

type ErrorMsg struct {
	Error string `json:"error"`
}

type ChatBlock struct {
	Kind     string `json:"kind"` // "text" | "tool-call" | "tool-result"
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	ToolName string `json:"toolName,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Input    any    `json:"input,omitempty"`
	Content  string `json:"content,omitempty"`
}

type ChatMessage struct {
	Role      string      `json:"role"`
	Timestamp string      `json:"timestamp,omitempty"`
	Blocks    []ChatBlock `json:"blocks"`
}

type ChatHistory struct {
	Messages []ChatMessage `json:"messages"`
	Dialect  string        `json:"dialect"`
}

type ChatEvent struct {
	Message ChatMessage `json:"message"`
}

type ChatLogError struct {
	Error string `json:"error"`
}

type CronJob struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Schedule map[string]any `json:"schedule,omitempty"`
	Message  string         `json:"message,omitempty"`
}

type CronJobsList struct {
	Jobs []CronJob `json:"jobs"`
}

type Dotfile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type DotfilesList struct {
	Dotfiles []Dotfile `json:"dotfiles"`
}
