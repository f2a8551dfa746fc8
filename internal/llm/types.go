package llm

import (
	"context"
	"encoding/json"
	"time"
)

// contextKey is a private type for context keys to prevent collisions.
type contextKey string

// toolCallIDKey is the context key for the current tool call ID.
const toolCallIDKey contextKey = "tool_call_id"

// ContextWithCallID returns a new context with the tool call ID set.
// The engine sets it before dispatching a call so executors and their
// diagnostics can refer back to the originating call.
func ContextWithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, toolCallIDKey, callID)
}

// CallIDFromContext extracts the tool call ID from context, or returns
// the empty string.
func CallIDFromContext(ctx context.Context) string {
	if v := ctx.Value(toolCallIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the content variants of a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one content element of a message.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Message is a single conversation entry.
type Message struct {
	Role  Role
	Parts []Part
}

// SystemText builds a system message from plain text.
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

// UserText builds a user message from plain text.
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

// AssistantText builds an assistant message from plain text.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

// AssistantTurn builds the assistant message echoing a finished turn:
// its text plus any tool calls it requested.
func AssistantTurn(text string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant}
	if text != "" {
		msg.Parts = append(msg.Parts, Part{Type: PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return msg
}

// ToolResultMessage builds the tool-role message carrying one tool's
// output back to the model.
func ToolResultMessage(id, name, content string) Message {
	return Message{Role: RoleTool, Parts: []Part{{
		Type:       PartToolResult,
		ToolResult: &ToolResult{ID: id, Name: name, Content: content},
	}}}
}

// ToolErrorMessage is ToolResultMessage with the error flag set.
func ToolErrorMessage(id, name, content string) Message {
	return Message{Role: RoleTool, Parts: []Part{{
		Type:       PartToolResult,
		ToolResult: &ToolResult{ID: id, Name: name, Content: content, IsError: true},
	}}}
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool

	// Rejected marks a denial by approval policy rather than a tool
	// failure; the call's record ends rejected instead of failed.
	Rejected bool
}

// ToolChoiceMode controls how the model may select tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceName     ToolChoiceMode = "name"
)

// ToolChoice selects a tool-choice mode, with Name set for
// ToolChoiceName.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Usage is the token accounting for one turn.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// Request is a single streaming completion request.
type Request struct {
	Model             string
	Messages          []Message
	Tools             []ToolSpec
	ToolChoice        ToolChoice
	MaxOutputTokens   int
	ParallelToolCalls bool
}

// EventType identifies a chunk event on a stream.
type EventType string

const (
	// EventTextDelta carries a fragment of ordinary output text.
	EventTextDelta EventType = "text_delta"
	// EventReasoningDelta carries a fragment of reasoning text.
	EventReasoningDelta EventType = "reasoning_delta"
	// EventToolCallStart announces an incremental tool call; Tool
	// carries its id and possibly a name, never arguments.
	EventToolCallStart EventType = "tool_call_start"
	// EventToolCallDelta carries an argument fragment for the call
	// identified by CallID.
	EventToolCallDelta EventType = "tool_call_delta"
	// EventToolCall carries a fully-formed tool call.
	EventToolCall EventType = "tool_call"
	// EventUsage carries token accounting; the latest one wins.
	EventUsage EventType = "usage"
	// EventError reports a transport error without ending the stream.
	EventError EventType = "error"
	// EventDone marks the end of the turn.
	EventDone EventType = "done"
	// EventRetry reports that the retry wrapper is about to re-issue
	// the request.
	EventRetry EventType = "retry"
)

// Event is one chunk delivered by a Stream.
type Event struct {
	Type EventType

	// Text is the fragment for EventTextDelta and EventReasoningDelta.
	Text string

	// Tool carries the call for EventToolCallStart and EventToolCall.
	Tool *ToolCall

	// CallID and ArgsDelta describe an EventToolCallDelta fragment.
	// ToolName is set when the fragment also carries a late-arriving
	// name for the call.
	CallID    string
	ArgsDelta string
	ToolName  string

	// Use is the accounting for EventUsage.
	Use *Usage

	// Err is the transport-reported message for EventError.
	Err string

	// Attempt and Wait describe an EventRetry.
	Attempt int
	Wait    time.Duration
}

// Stream delivers chunk events in order. Recv returns io.EOF after the
// final event; any other error means the transport failed mid-stream.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Provider produces completion streams.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}
