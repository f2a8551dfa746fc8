package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// defaultMaxTurns bounds the agentic loop; hitting it means the model
// kept requesting tools without converging.
const defaultMaxTurns = 40

// ToolDispatcher executes finalized tool calls. Implemented by the tool
// registry; the engine stays decoupled from tool internals.
type ToolDispatcher interface {
	// Specs returns the provider-facing specs for every enabled tool.
	Specs() []ToolSpec
	// ExecuteCall runs one call and returns its bounded result.
	ExecuteCall(ctx context.Context, call ToolCall) ToolResult
	// ParallelSafe reports whether a tool may run concurrently.
	ParallelSafe(name string) bool
}

// TurnCompletedCallback observes each finished turn and the results of
// the tool calls it requested. Used for transcript persistence.
type TurnCompletedCallback func(res TurnResult, results []ToolResult)

// Engine runs the agentic loop: stream a model turn, ingest it through
// a Session, execute the finalized tool calls, feed results back, and
// repeat until a turn requests no tools or the turn budget runs out.
type Engine struct {
	provider Provider
	tools    ToolDispatcher
	notifier *Notifier
	maxTurns int

	mu          sync.Mutex
	onCompleted TurnCompletedCallback
	executed    map[string]bool
}

// NewEngine creates an engine bound to a provider and tool dispatcher.
func NewEngine(provider Provider, tools ToolDispatcher) *Engine {
	return &Engine{
		provider: provider,
		tools:    tools,
		notifier: NewNotifier(),
		maxTurns: defaultMaxTurns,
		executed: make(map[string]bool),
	}
}

// SetMaxTurns overrides the turn budget; values below one are ignored.
func (e *Engine) SetMaxTurns(n int) {
	if n > 0 {
		e.maxTurns = n
	}
}

// SetTurnCompletedCallback installs the per-turn observer. The latest
// callback wins.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCompleted = cb
}

// Subscribe attaches a lifecycle signal handler for the whole run,
// returning a detach function. Signals from every turn's session are
// forwarded, plus the engine's tool execution signals.
func (e *Engine) Subscribe(h Handler, cleanup func()) (detach func()) {
	return e.notifier.Subscribe(h, cleanup)
}

// RunResult is the outcome of a full engine run.
type RunResult struct {
	// Turns holds every finalized turn in order.
	Turns []TurnResult
	// Messages is the grown conversation, including tool results.
	Messages []Message
	// Text is the final turn's text.
	Text string
	// Usage is the summed accounting across turns.
	Usage Usage
	// Err is the first terminal error, if any. Turns gathered before
	// the failure are still present.
	Err error
}

// Run drives the loop starting from the given conversation. The
// returned result is well-formed even when Err is set: it carries
// everything accumulated before the failure.
func (e *Engine) Run(ctx context.Context, messages []Message) (*RunResult, error) {
	run := &RunResult{Messages: messages}
	specs := e.tools.Specs()

	for turn := 0; turn < e.maxTurns; turn++ {
		req := Request{
			Messages:          run.Messages,
			Tools:             specs,
			ParallelToolCalls: true,
		}

		stream, err := e.provider.Stream(ctx, req)
		if err != nil {
			run.Err = fmt.Errorf("starting stream: %w", err)
			return run, run.Err
		}

		session := NewSession()
		detach := session.Subscribe(e.notifier.Emit, nil)
		res := session.Ingest(stream)
		detach()

		run.Turns = append(run.Turns, res)
		run.Text = res.Text
		if res.Usage != nil {
			run.Usage.InputTokens += res.Usage.InputTokens
			run.Usage.OutputTokens += res.Usage.OutputTokens
			run.Usage.CachedInputTokens += res.Usage.CachedInputTokens
		}

		if res.Err != nil {
			e.fireCompleted(res, nil)
			run.Err = res.Err
			return run, nil
		}

		calls := executableCalls(res.ToolCalls)
		if len(calls) == 0 {
			e.fireCompleted(res, nil)
			return run, nil
		}

		run.Messages = append(run.Messages, AssistantTurn(res.Text, calls))
		results := e.executeCalls(ctx, res.ToolCalls, calls)
		e.fireCompleted(res, results)

		for _, result := range results {
			if result.IsError {
				run.Messages = append(run.Messages, ToolErrorMessage(result.ID, result.Name, result.Content))
			} else {
				run.Messages = append(run.Messages, ToolResultMessage(result.ID, result.Name, result.Content))
			}
		}

		if ctx.Err() != nil {
			run.Err = ctx.Err()
			return run, nil
		}
	}

	run.Err = fmt.Errorf("turn budget exhausted after %d turns", e.maxTurns)
	return run, nil
}

// executableCalls filters finalized records down to the calls worth
// dispatching: named and still pending.
func executableCalls(records []ToolCallRecord) []ToolCall {
	var calls []ToolCall
	for _, rec := range records {
		if rec.Name == "" || rec.Status != StatusPending {
			continue
		}
		var raw json.RawMessage
		if rec.Arguments != nil {
			raw, _ = json.Marshal(rec.Arguments)
		}
		calls = append(calls, ToolCall{ID: rec.ID, Name: rec.Name, Arguments: raw})
	}
	return calls
}

// executeCalls dispatches the turn's calls, running parallel-safe tools
// concurrently. Results come back in call order regardless of how the
// executions interleave, and every id is dispatched at most once per
// run even if the model repeats it.
func (e *Engine) executeCalls(ctx context.Context, records []ToolCallRecord, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	recordByID := make(map[string]*ToolCallRecord, len(records))
	for i := range records {
		recordByID[records[i].ID] = &records[i]
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		e.mu.Lock()
		if e.executed[call.ID] {
			e.mu.Unlock()
			slog.Warn("skipping duplicate tool call id", "id", call.ID, "tool", call.Name)
			results[i] = ToolResult{ID: call.ID, Name: call.Name, Content: "duplicate tool call id", IsError: true}
			continue
		}
		e.executed[call.ID] = true
		e.mu.Unlock()

		e.markExecuting(recordByID[call.ID])

		if e.tools.ParallelSafe(call.Name) {
			wg.Add(1)
			go func(i int, call ToolCall) {
				defer wg.Done()
				results[i] = e.tools.ExecuteCall(ctx, call)
			}(i, call)
			continue
		}
		// Serial tools wait for in-flight parallel work first so file
		// mutations never race reads.
		wg.Wait()
		results[i] = e.tools.ExecuteCall(ctx, call)
	}
	wg.Wait()

	for i := range results {
		e.finishCall(recordByID[results[i].ID], results[i])
	}
	return results
}

func (e *Engine) markExecuting(rec *ToolCallRecord) {
	if rec == nil {
		return
	}
	rec.Advance(StatusExecuting)
	e.notifier.Emit(Signal{Kind: SignalToolExecStarted, Call: snapshotRecord(rec)})
}

func (e *Engine) finishCall(rec *ToolCallRecord, result ToolResult) {
	if rec == nil {
		return
	}
	switch {
	case result.Rejected:
		rec.Advance(StatusRejected)
	case result.IsError:
		rec.Advance(StatusFailed)
	default:
		rec.Advance(StatusSucceeded)
	}
	e.notifier.Emit(Signal{Kind: SignalToolExecEnded, Call: snapshotRecord(rec)})
}

func (e *Engine) fireCompleted(res TurnResult, results []ToolResult) {
	e.mu.Lock()
	cb := e.onCompleted
	e.mu.Unlock()
	if cb != nil {
		cb(res, results)
	}
}
