package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/stitchkit/stitch/internal/partialjson"
	"github.com/stitchkit/stitch/internal/tagscan"
)

// ToolCallStatus tracks a call through its lifecycle. Transitions are
// monotonic: a status never moves backwards, and a terminal status
// never changes.
type ToolCallStatus string

const (
	StatusPending   ToolCallStatus = "pending"
	StatusExecuting ToolCallStatus = "executing"
	StatusSucceeded ToolCallStatus = "succeeded"
	StatusFailed    ToolCallStatus = "failed"
	StatusRejected  ToolCallStatus = "rejected"
)

var statusRank = map[ToolCallStatus]int{
	StatusPending:   0,
	StatusExecuting: 1,
	StatusSucceeded: 2,
	StatusFailed:    2,
	StatusRejected:  2,
}

// ToolCallRecord is one tool invocation assembled from the stream.
// Streaming is true while arguments are still arriving and the parsed
// Arguments map, if any, reflects a best-effort repair of the partial
// buffer.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments map[string]any
	Streaming bool
	Status    ToolCallStatus
}

// Advance moves Status forward, returning false for a transition that
// would regress or leave a terminal status.
func (r *ToolCallRecord) Advance(next ToolCallStatus) bool {
	cur, ok := statusRank[r.Status]
	if !ok {
		r.Status = next
		return true
	}
	nxt, ok := statusRank[next]
	if !ok || nxt < cur || (cur == nxt && cur > 0 && next != r.Status) {
		return false
	}
	r.Status = next
	return true
}

// TurnResult is the finalized outcome of one model turn. Err being set
// does not invalidate the rest: text, reasoning, calls and usage hold
// whatever was accumulated before the failure.
type TurnResult struct {
	Text      string
	Reasoning string
	ToolCalls []ToolCallRecord
	Usage     *Usage
	Err       error
}

var (
	// ErrEventAfterCompletion is returned for events delivered after
	// the turn completed; the session is retired at that point.
	ErrEventAfterCompletion = errors.New("event delivered after turn completion")
	// ErrReentrantEvent is returned when an event is delivered while a
	// previous one is still being handled. Events must be processed
	// one at a time.
	ErrReentrantEvent = errors.New("re-entrant event delivery")
)

// argBuffer accumulates the raw argument fragments of one in-flight
// tool call.
type argBuffer struct {
	name string
	args strings.Builder
}

// Session assembles one model turn from a sequence of chunk events.
//
//	text/reasoning ──┐
//	tool start/delta ├─▶ HandleEvent ─▶ accumulated state ─▶ Result
//	usage/error/done ┘
//
// A Session is owned by a single goroutine for the lifetime of one
// turn and is not safe for concurrent use. Lifecycle signals are
// emitted synchronously through the attached Notifier.
type Session struct {
	text            strings.Builder
	reasoning       strings.Builder
	reasoningActive bool

	calls   []*ToolCallRecord
	byID    map[string]*ToolCallRecord
	pending map[string]*argBuffer

	usage     *Usage
	termErr   error
	started   bool
	completed bool
	handling  bool

	notifier *Notifier
	errGen   int

	nextID int
}

// NewSession returns an empty session ready to ingest one turn.
func NewSession() *Session {
	return &Session{
		byID:     make(map[string]*ToolCallRecord),
		pending:  make(map[string]*argBuffer),
		notifier: NewNotifier(),
	}
}

// Subscribe attaches a lifecycle signal handler with an optional
// cleanup, returning a detach function.
func (s *Session) Subscribe(h Handler, cleanup func()) (detach func()) {
	return s.notifier.Subscribe(h, cleanup)
}

// Cancel detaches every subscriber. Each cleanup runs exactly once and
// no signal is delivered afterwards.
func (s *Session) Cancel() {
	s.notifier.DetachAll()
}

// TransportErrorFunc returns a callback that feeds transport errors
// into the session. Each call invalidates previously returned
// callbacks, so after a reconnect only the newest handler reaches the
// session and a single failure is never counted twice.
func (s *Session) TransportErrorFunc() func(error) {
	s.errGen++
	gen := s.errGen
	return func(err error) {
		if gen != s.errGen || err == nil {
			return
		}
		s.recordError(err)
	}
}

// Done reports whether the turn has completed.
func (s *Session) Done() bool {
	return s.completed
}

// HandleEvent feeds one chunk event into the session. Events must
// arrive sequentially; delivery from inside a signal handler or after
// completion is rejected.
func (s *Session) HandleEvent(ev Event) error {
	if s.completed {
		return ErrEventAfterCompletion
	}
	if s.handling {
		return ErrReentrantEvent
	}
	s.handling = true
	defer func() { s.handling = false }()

	if !s.started {
		s.started = true
		s.notifier.Emit(Signal{Kind: SignalTurnStarted})
	}

	switch ev.Type {
	case EventTextDelta:
		s.handleText(ev.Text)
	case EventReasoningDelta:
		s.handleReasoning(ev.Text)
	case EventToolCallStart:
		s.handleToolStart(ev.Tool)
	case EventToolCallDelta:
		s.handleToolDelta(ev)
	case EventToolCall:
		s.handleToolComplete(ev.Tool)
	case EventUsage:
		if ev.Use != nil {
			u := *ev.Use
			s.usage = &u
		}
	case EventError:
		if ev.Err != "" {
			s.recordError(errors.New(ev.Err))
		}
	case EventDone:
		s.complete()
	case EventRetry:
		// Informational only; accumulation is unaffected.
	}
	return nil
}

// Ingest drains the stream into the session and returns the finalized
// result. A transport failure mid-stream is recorded on the result
// rather than returned; the content gathered up to that point is kept.
func (s *Session) Ingest(stream Stream) TurnResult {
	defer stream.Close()
	for !s.completed {
		ev, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.recordError(err)
			}
			s.complete()
			break
		}
		if err := s.HandleEvent(ev); err != nil {
			break
		}
	}
	return s.Result()
}

// Result builds the turn result from the accumulated state. After Done
// reports true the result is final.
func (s *Session) Result() TurnResult {
	res := TurnResult{
		Text:      s.text.String(),
		Reasoning: s.reasoning.String(),
		Usage:     s.usage,
		Err:       s.termErr,
	}
	if len(s.calls) > 0 {
		res.ToolCalls = make([]ToolCallRecord, len(s.calls))
		for i, rec := range s.calls {
			res.ToolCalls[i] = *rec
		}
	}
	return res
}

func (s *Session) handleText(text string) {
	s.endReasoning()
	if text == "" {
		return
	}
	s.text.WriteString(text)
	s.notifier.Emit(Signal{Kind: SignalTextDelta, Text: text})
	s.scanEmbedded()
}

func (s *Session) handleReasoning(text string) {
	if !s.reasoningActive {
		s.reasoningActive = true
		s.notifier.Emit(Signal{Kind: SignalReasoningStarted})
	}
	if text == "" {
		return
	}
	s.reasoning.WriteString(text)
	s.notifier.Emit(Signal{Kind: SignalReasoningDelta, Text: text})
}

func (s *Session) endReasoning() {
	if !s.reasoningActive {
		return
	}
	s.reasoningActive = false
	s.notifier.Emit(Signal{Kind: SignalReasoningEnded})
}

func (s *Session) handleToolStart(tool *ToolCall) {
	s.endReasoning()
	if tool == nil {
		return
	}
	id := tool.ID
	if id == "" {
		id = s.genID()
	}
	if _, ok := s.pending[id]; !ok {
		s.pending[id] = &argBuffer{name: tool.Name}
	}
	rec, ok := s.byID[id]
	if !ok {
		rec = &ToolCallRecord{ID: id, Name: tool.Name, Streaming: true, Status: StatusPending}
		s.append(rec)
	} else if rec.Name == "" && tool.Name != "" {
		rec.Name = tool.Name
	}
	s.notifier.Emit(Signal{Kind: SignalToolStarted, Call: snapshotRecord(rec)})
}

func (s *Session) handleToolDelta(ev Event) {
	buf, ok := s.pending[ev.CallID]
	if !ok {
		// Out-of-order or duplicate delta; tolerated, not an error.
		return
	}
	rec := s.byID[ev.CallID]
	changed := false
	if ev.ToolName != "" && ev.ToolName != buf.name {
		buf.name = ev.ToolName
		if rec != nil {
			rec.Name = ev.ToolName
		}
		changed = true
	}
	buf.args.WriteString(ev.ArgsDelta)
	if args := partialjson.Repair(buf.args.String()); len(args) > 0 && rec != nil {
		rec.Arguments = args
		changed = true
	}
	if changed && rec != nil {
		s.notifier.Emit(Signal{Kind: SignalToolDelta, Call: snapshotRecord(rec)})
	}
}

func (s *Session) handleToolComplete(tool *ToolCall) {
	if tool == nil {
		return
	}
	id := tool.ID
	if id == "" {
		id = s.genID()
	}
	delete(s.pending, id)

	args := parseArguments(tool.Arguments)
	rec, ok := s.byID[id]
	if !ok {
		rec = &ToolCallRecord{ID: id, Name: tool.Name, Arguments: args, Status: StatusPending}
		s.append(rec)
		s.notifier.Emit(Signal{Kind: SignalToolStarted, Call: snapshotRecord(rec)})
	} else {
		if tool.Name != "" {
			rec.Name = tool.Name
		}
		if args != nil {
			rec.Arguments = args
		}
	}
	rec.Streaming = false
	s.notifier.Emit(Signal{Kind: SignalToolEnded, Call: snapshotRecord(rec)})
}

// scanEmbedded re-scans the whole accumulated text for tag-based tool
// markup. Dedupe by id keeps the re-scan idempotent.
func (s *Session) scanEmbedded() {
	for _, call := range tagscan.Scan(s.text.String()) {
		if _, ok := s.byID[call.ID]; ok {
			continue
		}
		rec := &ToolCallRecord{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Status:    StatusPending,
		}
		s.append(rec)
		s.notifier.Emit(Signal{Kind: SignalToolStarted, Call: snapshotRecord(rec)})
		s.notifier.Emit(Signal{Kind: SignalToolEnded, Call: snapshotRecord(rec)})
	}
}

func (s *Session) complete() {
	if s.completed {
		return
	}
	s.endReasoning()
	s.completed = true
	res := s.Result()
	if res.Err != nil {
		s.notifier.Emit(Signal{Kind: SignalTurnError, Result: &res, Err: res.Err})
		return
	}
	s.notifier.Emit(Signal{Kind: SignalTurnDone, Result: &res})
}

func (s *Session) recordError(err error) {
	if s.termErr == nil {
		s.termErr = err
	}
}

func (s *Session) append(rec *ToolCallRecord) {
	s.calls = append(s.calls, rec)
	s.byID[rec.ID] = rec
}

func (s *Session) genID() string {
	s.nextID++
	return fmt.Sprintf("toolcall-%d", s.nextID)
}

func snapshotRecord(r *ToolCallRecord) *ToolCallRecord {
	c := *r
	return &c
}

// parseArguments decodes a complete argument payload, falling back to
// the repair cascade for payloads that are not quite valid JSON.
func parseArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	return partialjson.Repair(string(raw))
}
