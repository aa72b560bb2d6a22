package chatlog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/stellarlinkco/webmux/internal/wire"
)

// DialectB parses the NDJSON event-stream log format (Assistant-B).
// Only "item.completed" events carry content; every other event type
// is ignored.
type DialectB struct{}

func (DialectB) Name() string { return "assistant-b" }

type dialectBLine struct {
	Type string          `json:"type"`
	Item dialectBItem    `json:"item"`
}

type dialectBItem struct {
	Type string `json:"type"`

	// agent_message
	Text string `json:"text"`

	// command_execution
	Command           string `json:"command"`
	AggregatedOutput  string `json:"aggregated_output"`

	// file_change
	Changes []dialectBChange `json:"changes"`

	// mcp_tool_call
	Server string `json:"server"`
	Tool   string `json:"tool"`
}

type dialectBChange struct {
	Path string `json:"path"`
}

func (DialectB) Parse(line string) (*wire.ChatMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var raw dialectBLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, nil
	}
	if raw.Type != "item.completed" {
		return nil, nil
	}

	var blocks []wire.ChatBlock
	switch raw.Item.Type {
	case "agent_message":
		if raw.Item.Text == "" {
			return nil, nil
		}
		blocks = []wire.ChatBlock{{Kind: "text", Text: raw.Item.Text}}

	case "command_execution":
		if raw.Item.Command == "" {
			return nil, nil
		}
		blocks = []wire.ChatBlock{{
			Kind:    "tool-call",
			Name:    "Bash",
			Summary: truncate(raw.Item.Command, 120),
			Input:   map[string]any{"command": raw.Item.Command},
		}}
		if raw.Item.AggregatedOutput != "" {
			blocks = append(blocks, wire.ChatBlock{
				Kind:     "tool-result",
				ToolName: "Bash",
				Summary:  toolResultSummary(raw.Item.AggregatedOutput, true),
				Content:  raw.Item.AggregatedOutput,
			})
		}

	case "file_change":
		if len(raw.Item.Changes) == 0 {
			return nil, nil
		}
		summary := raw.Item.Changes[0].Path
		if len(raw.Item.Changes) > 1 {
			summary = strconv.Itoa(len(raw.Item.Changes)) + " files"
		}
		blocks = []wire.ChatBlock{{Kind: "tool-call", Name: "Edit", Summary: summary}}

	case "mcp_tool_call":
		blocks = []wire.ChatBlock{{
			Kind:    "tool-call",
			Name:    "MCP",
			Summary: truncate(raw.Item.Server+"/"+raw.Item.Tool, 120),
		}}

	default:
		return nil, nil
	}

	if len(blocks) == 0 {
		return nil, nil
	}
	return &wire.ChatMessage{Role: "assistant", Blocks: blocks}, nil
}
