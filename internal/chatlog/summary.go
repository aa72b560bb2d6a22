package chatlog

import (
	"strconv"
	"strings"
)

// toolInputField names the field each recognized tool extracts its
// summary value from.
var toolInputField = map[string]string{
	"Read":       "file_path",
	"Edit":       "file_path",
	"Write":      "file_path",
	"Bash":       "command",
	"Glob":       "pattern",
	"Grep":       "pattern",
	"Task":       "description",
	"TaskCreate": "description",
	"WebSearch":  "query",
	"WebFetch":   "url",
}

// toolCallSummary synthesizes a ToolCall.summary: "{name}: {value}"
// when the tool's expected field is present in input, else the bare
// name.
func toolCallSummary(name string, input any) string {
	field, ok := toolInputField[name]
	if !ok {
		return name
	}
	obj, ok := input.(map[string]any)
	if !ok {
		return name
	}
	val, ok := obj[field]
	if !ok {
		return name
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return name
	}
	return name + ": " + s
}

// toolResultSummary renders a tool result's content for display:
// multi-line content reports a line count; single-line content is
// truncated to 120 code units; absent content reports "(empty)".
func toolResultSummary(content string, present bool) string {
	if !present {
		return "(empty)"
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 1 {
		return strconv.Itoa(len(lines)) + " lines"
	}
	return truncate(content, 120)
}

// truncate returns s unchanged if it has at most n code units,
// otherwise its first n code units followed by "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
