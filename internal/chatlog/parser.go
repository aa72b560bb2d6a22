package chatlog

import "github.com/stellarlinkco/webmux/internal/wire"

// Dialect identifies which AI coding assistant's log format a file
// holds.
type Dialect string

const (
	DialectAssistantA Dialect = "assistant-a"
	DialectAssistantB Dialect = "assistant-b"
)

// LineParser converts one line of a dialect's log file into zero or
// one normalized chat message. It never returns an error for
// malformed input — parsers drop and continue, never fail the
// stream. The error return exists only for
// exceptional parser-internal conditions.
type LineParser interface {
	Name() string
	Parse(line string) (*wire.ChatMessage, error)
}

// ParserFor resolves a Dialect to its LineParser.
func ParserFor(d Dialect) LineParser {
	switch d {
	case DialectAssistantB:
		return DialectB{}
	default:
		return DialectA{}
	}
}
