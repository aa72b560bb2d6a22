package chatlog

import (
	"encoding/json"
	"strings"

	"github.com/stellarlinkco/webmux/internal/wire"
)

// DialectA parses the per-line JSON object log format (Assistant-A).
// One line holds one message envelope; nested content blocks are
// either a bare string or an array of typed blocks.
type DialectA struct{}

func (DialectA) Name() string { return "assistant-a" }

type dialectALine struct {
	Type    string `json:"type"`
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
	Timestamp string `json:"timestamp"`
}

type dialectABlock struct {
	Type string `json:"type"`

	// text block
	Text string `json:"text"`

	// tool_use block
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`

	// tool_result block
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// Parse converts one line of Dialect A log text into zero or one
// normalized ChatMessage. Malformed JSON and blank lines return
// (nil, nil) — parsing never fails the stream.
func (DialectA) Parse(line string) (*wire.ChatMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var raw dialectALine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, nil
	}
	if raw.Type != "user" && raw.Type != "assistant" {
		return nil, nil
	}

	blocks := parseDialectAContent(raw.Message.Content)
	if len(blocks) == 0 {
		return nil, nil
	}

	msg := &wire.ChatMessage{
		Role:      raw.Message.Role,
		Timestamp: raw.Timestamp,
		Blocks:    blocks,
	}
	if msg.Role == "" {
		msg.Role = raw.Type
	}
	return msg, nil
}

func parseDialectAContent(content json.RawMessage) []wire.ChatBlock {
	if len(content) == 0 {
		return nil
	}

	// content is either a bare string or an array of typed blocks.
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []wire.ChatBlock{{Kind: "text", Text: asString}}
	}

	var rawBlocks []dialectABlock
	if err := json.Unmarshal(content, &rawBlocks); err != nil {
		return nil
	}

	blocks := make([]wire.ChatBlock, 0, len(rawBlocks))
	for _, b := range rawBlocks {
		switch b.Type {
		case "text":
			if b.Text == "" {
				continue
			}
			blocks = append(blocks, wire.ChatBlock{Kind: "text", Text: b.Text})
		case "tool_use":
			var input any
			_ = json.Unmarshal(b.Input, &input)
			blocks = append(blocks, wire.ChatBlock{
				Kind:    "tool-call",
				Name:    b.Name,
				Summary: toolCallSummary(b.Name, input),
				Input:   input,
			})
		case "tool_result":
			content, present := normalizeToolResultContent(b.Content)
			// The tool-use id, not the tool's name, is preserved here —
			// this is intentional: see DESIGN.md's open-question entry.
			blocks = append(blocks, wire.ChatBlock{
				Kind:     "tool-result",
				ToolName: b.ToolUseID,
				Summary:  toolResultSummary(content, present),
				Content:  content,
			})
		default:
			continue
		}
	}
	return blocks
}

// normalizeToolResultContent renders a tool_result's content field as
// a string: strings pass through, anything else round-trips through
// its canonical JSON encoding. present is false when content was
// absent entirely (distinct from an explicit empty string).
func normalizeToolResultContent(content json.RawMessage) (s string, present bool) {
	if len(content) == 0 || string(content) == "null" {
		return "", false
	}
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString, true
	}
	return string(content), true
}
