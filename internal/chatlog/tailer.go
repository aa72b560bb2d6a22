package chatlog

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/stellarlinkco/webmux/internal/wire"
)

var tailerLog = log.New(os.Stderr, "[chatlog] ", log.LstdFlags)

// EventKind tags a Tailer event.
type EventKind int

const (
	EventHistory EventKind = iota
	EventMessage
	EventError
)

// Event is one item from a Tailer's event stream.
type Event struct {
	Kind    EventKind
	History []wire.ChatMessage
	Message *wire.ChatMessage
	Dialect Dialect
	Err     string
}

// Watch implements C4: it emits one History event with every message
// already in the file, then watches for appended lines and emits one
// Message event per newly parsed message. The returned cancel func
// stops the watch; calling it more than once is safe.
func Watch(ctx context.Context, path string, dialect Dialect) (<-chan Event, func(), error) {
	parser := ParserFor(dialect)

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	history, offset, err := readComplete(f, 0)
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("read log file: %w", err)
	}

	var historyMsgs []wire.ChatMessage
	for _, line := range history {
		msg, _ := parser.Parse(line)
		if msg != nil {
			historyMsgs = append(historyMsgs, *msg)
		}
	}

	// The watcher handle must outlive this function — stored in the
	// goroutine's own scope — or the OS stops delivering events the
	// instant it would otherwise be garbage collected.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("watch log file: %w", err)
	}

	out := make(chan Event, 16)
	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer watcher.Close()
		defer close(out)

		select {
		case out <- Event{Kind: EventHistory, History: historyMsgs, Dialect: dialect}:
		case <-runCtx.Done():
			return
		}

		for {
			select {
			case <-runCtx.Done():
				return

			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				drainBurst(watcher.Events)
				offset = emitNewLines(runCtx, out, path, offset, parser, dialect)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				tailerLog.Printf("watch error for %s: %v", path, err)
			}
		}
	}()

	return out, cancel, nil
}

// drainBurst consumes every notification already queued so one
// coalesced read handles an entire burst of writes.
func drainBurst(events chan fsnotify.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func emitNewLines(ctx context.Context, out chan<- Event, path string, offset int64, parser LineParser, dialect Dialect) int64 {
	f, err := os.Open(path)
	if err != nil {
		sendError(ctx, out, err)
		return offset
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		sendError(ctx, out, err)
		return offset
	}
	if info.Size() < offset {
		// File was truncated; never rewind. Wait until growth makes
		// the saved offset valid again — rotation handling is out of
		// scope.
		return offset
	}

	if _, err := f.Seek(offset, 0); err != nil {
		sendError(ctx, out, err)
		return offset
	}

	lines, consumed, err := readComplete(f, offset)
	if err != nil {
		sendError(ctx, out, err)
		return offset
	}

	for _, line := range lines {
		msg, _ := parser.Parse(line)
		if msg == nil {
			continue
		}
		select {
		case out <- Event{Kind: EventMessage, Message: msg, Dialect: dialect}:
		case <-ctx.Done():
			return consumed
		}
	}
	return consumed
}

func sendError(ctx context.Context, out chan<- Event, err error) {
	select {
	case out <- Event{Kind: EventError, Err: err.Error()}:
	case <-ctx.Done():
	}
}

// readComplete reads every newline-terminated line from f starting at
// its current position, returning the lines (without their trailing
// newline) and the absolute offset just past the last newline
// consumed. A trailing partial line (no terminator yet) is left
// unconsumed for a later call.
func readComplete(f *os.File, startOffset int64) ([]string, int64, error) {
	data := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				return nil, startOffset, err
			}
			break
		}
	}

	lastNL := strings.LastIndexByte(string(data), '\n')
	if lastNL == -1 {
		return nil, startOffset, nil
	}

	complete := string(data[:lastNL])
	var lines []string
	if complete != "" {
		lines = strings.Split(complete, "\n")
	}
	return lines, startOffset + int64(lastNL) + 1, nil
}
