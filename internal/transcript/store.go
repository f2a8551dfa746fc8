// Package transcript persists finished turns per session so runs can be
// inspected after the fact. Persistence is best-effort: when the data
// directory is unavailable the engine runs against a NoopStore.
package transcript

import (
	"context"
	"time"
)

// Session identifies one engine run.
type Session struct {
	ID        string
	Provider  string
	Model     string
	CWD       string
	CreatedAt time.Time
}

// ToolCallEntry is one finalized tool call within a turn, including the
// bounded output fed back to the model.
type ToolCallEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Status    string         `json:"status"`
	Output    string         `json:"output,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// Turn is one persisted model turn.
type Turn struct {
	Sequence     int
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallEntry
	InputTokens  int
	OutputTokens int
	Error        string
	CreatedAt    time.Time
}

// Store persists sessions and their turns.
type Store interface {
	StartSession(ctx context.Context, sess *Session) error
	AppendTurn(ctx context.Context, sessionID string, turn *Turn) error
	Turns(ctx context.Context, sessionID string, limit, offset int) ([]Turn, error)
	Sessions(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// NoopStore discards everything. Used when persistence is disabled or
// the database cannot be opened.
type NoopStore struct{}

func (NoopStore) StartSession(context.Context, *Session) error      { return nil }
func (NoopStore) AppendTurn(context.Context, string, *Turn) error   { return nil }
func (NoopStore) Turns(context.Context, string, int, int) ([]Turn, error) {
	return nil, nil
}
func (NoopStore) Sessions(context.Context, int) ([]Session, error) { return nil, nil }
func (NoopStore) Close() error                                     { return nil }
