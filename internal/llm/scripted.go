package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ScriptedProvider replays a captured chunk log instead of calling a
// model. Each line of the log is one JSON chunk; see ParseChunkLine for
// the shape. Used by `stitch replay` and as a network-free transport in
// tests.
type ScriptedProvider struct {
	events []Event
}

// NewScriptedProvider builds a provider that replays events verbatim.
func NewScriptedProvider(events []Event) *ScriptedProvider {
	return &ScriptedProvider{events: events}
}

// LoadScript reads a JSONL chunk log. Blank lines and #-comments are
// skipped; a log without a trailing done chunk gets one appended.
func LoadScript(r io.Reader) (*ScriptedProvider, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := ParseChunkLine(text)
		if err != nil {
			return nil, fmt.Errorf("chunk log line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk log: %w", err)
	}
	if len(events) == 0 || events[len(events)-1].Type != EventDone {
		events = append(events, Event{Type: EventDone})
	}
	return NewScriptedProvider(events), nil
}

func (p *ScriptedProvider) Name() string {
	return "Scripted"
}

func (p *ScriptedProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSliceStream(p.events), nil
}

// chunkLine is the wire shape of one chunk-log entry.
type chunkLine struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	ArgsDelta string          `json:"args_delta,omitempty"`
	Input     int             `json:"input_tokens,omitempty"`
	Output    int             `json:"output_tokens,omitempty"`
	Cached    int             `json:"cached_input_tokens,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ParseChunkLine decodes one JSONL chunk into an event. Recognized
// types: text, reasoning, tool_call_start, tool_call_delta, tool_call,
// usage, error, done.
func ParseChunkLine(line string) (Event, error) {
	var c chunkLine
	if err := json.Unmarshal([]byte(line), &c); err != nil {
		return Event{}, err
	}
	switch c.Type {
	case "text":
		return Event{Type: EventTextDelta, Text: c.Text}, nil
	case "reasoning":
		return Event{Type: EventReasoningDelta, Text: c.Text}, nil
	case "tool_call_start":
		return Event{Type: EventToolCallStart, Tool: &ToolCall{ID: c.ID, Name: c.Name}}, nil
	case "tool_call_delta":
		return Event{Type: EventToolCallDelta, CallID: c.ID, ArgsDelta: c.ArgsDelta, ToolName: c.Name}, nil
	case "tool_call":
		return Event{Type: EventToolCall, Tool: &ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}}, nil
	case "usage":
		return Event{Type: EventUsage, Use: &Usage{InputTokens: c.Input, OutputTokens: c.Output, CachedInputTokens: c.Cached}}, nil
	case "error":
		return Event{Type: EventError, Err: c.Message}, nil
	case "done":
		return Event{Type: EventDone}, nil
	default:
		return Event{}, fmt.Errorf("unknown chunk type %q", c.Type)
	}
}
