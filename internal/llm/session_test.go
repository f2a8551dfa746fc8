package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func feed(t *testing.T, s *Session, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := s.HandleEvent(ev); err != nil {
			t.Fatalf("HandleEvent(%v): %v", ev.Type, err)
		}
	}
}

func TestSessionEndToEnd(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventReasoningDelta, Text: "Let me check"},
		Event{Type: EventTextDelta, Text: "I'll read the file."},
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "t1", Name: "read_file"}},
		Event{Type: EventToolCallDelta, CallID: "t1", ArgsDelta: `{"path":"x.ts"}`},
		Event{Type: EventDone},
	)

	if !s.Done() {
		t.Fatal("session not done")
	}
	res := s.Result()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "I'll read the file." {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Reasoning != "Let me check" {
		t.Fatalf("reasoning = %q", res.Reasoning)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(res.ToolCalls))
	}
	call := res.ToolCalls[0]
	if call.Name != "read_file" || call.ID != "t1" {
		t.Fatalf("call = %+v", call)
	}
	if call.Arguments["path"] != "x.ts" {
		t.Fatalf("arguments = %#v", call.Arguments)
	}
}

func TestSessionSplitArgumentDeltas(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "w1", Name: "write_file"}},
		Event{Type: EventToolCallDelta, CallID: "w1", ArgsDelta: `{"path": "a.t`},
		Event{Type: EventToolCallDelta, CallID: "w1", ArgsDelta: `xt", "content": "hi"}`},
		Event{Type: EventDone},
	)

	call := s.Result().ToolCalls[0]
	if call.Arguments["path"] != "a.txt" || call.Arguments["content"] != "hi" {
		t.Fatalf("arguments = %#v", call.Arguments)
	}
}

func TestSessionPartialArgumentsSurfaceWhileStreaming(t *testing.T) {
	s := NewSession()

	var deltas []*ToolCallRecord
	s.Subscribe(func(sig Signal) {
		if sig.Kind == SignalToolDelta {
			deltas = append(deltas, sig.Call)
		}
	}, nil)

	feed(t, s,
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "c1", Name: "read_file"}},
		Event{Type: EventToolCallDelta, CallID: "c1", ArgsDelta: `{"path": "a.t`},
	)

	if len(deltas) == 0 {
		t.Fatal("no tool delta surfaced for repairable partial arguments")
	}
	last := deltas[len(deltas)-1]
	if !last.Streaming {
		t.Fatal("surfaced record should still be marked streaming")
	}
	if last.Arguments["path"] != "a.t" {
		t.Fatalf("partial arguments = %#v", last.Arguments)
	}
}

func TestSessionUnknownDeltaIsNoOp(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventToolCallDelta, CallID: "ghost", ArgsDelta: `{"a":1}`},
		Event{Type: EventDone},
	)
	if calls := s.Result().ToolCalls; len(calls) != 0 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestSessionLateArrivingName(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "n1"}},
		Event{Type: EventToolCallDelta, CallID: "n1", ToolName: "grep", ArgsDelta: `{"pattern": "x"}`},
		Event{Type: EventDone},
	)
	call := s.Result().ToolCalls[0]
	if call.Name != "grep" {
		t.Fatalf("name = %q", call.Name)
	}
}

func TestSessionDuplicateCompleteKeepsOneRecord(t *testing.T) {
	s := NewSession()
	args := json.RawMessage(`{"path": "x.go"}`)
	feed(t, s,
		Event{Type: EventToolCall, Tool: &ToolCall{ID: "dup", Name: "read_file", Arguments: args}},
		Event{Type: EventToolCall, Tool: &ToolCall{ID: "dup", Name: "read_file", Arguments: args}},
		Event{Type: EventDone},
	)
	if calls := s.Result().ToolCalls; len(calls) != 1 {
		t.Fatalf("got %d records, want 1", len(calls))
	}
}

func TestSessionCompleteAfterStreamingUpgradesRecord(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "s1"}},
		Event{Type: EventToolCallDelta, CallID: "s1", ArgsDelta: `{"comm`},
		Event{Type: EventToolCall, Tool: &ToolCall{ID: "s1", Name: "shell", Arguments: json.RawMessage(`{"command": "ls"}`)}},
		Event{Type: EventDone},
	)
	calls := s.Result().ToolCalls
	if len(calls) != 1 {
		t.Fatalf("got %d records, want 1", len(calls))
	}
	call := calls[0]
	if call.Streaming {
		t.Fatal("record still marked streaming after complete event")
	}
	if call.Name != "shell" || call.Arguments["command"] != "ls" {
		t.Fatalf("call = %+v", call)
	}
	if call.Status != StatusPending {
		t.Fatalf("status = %q", call.Status)
	}
}

func TestSessionReasoningSpanSignals(t *testing.T) {
	s := NewSession()

	var kinds []SignalKind
	s.Subscribe(func(sig Signal) { kinds = append(kinds, sig.Kind) }, nil)

	feed(t, s,
		Event{Type: EventReasoningDelta, Text: "thinking "},
		Event{Type: EventReasoningDelta, Text: "harder"},
		Event{Type: EventToolCallStart, Tool: &ToolCall{ID: "t1", Name: "glob"}},
		Event{Type: EventDone},
	)

	started, ended := 0, 0
	for _, k := range kinds {
		switch k {
		case SignalReasoningStarted:
			started++
		case SignalReasoningEnded:
			ended++
		}
	}
	if started != 1 || ended != 1 {
		t.Fatalf("reasoning signals: started=%d ended=%d, want 1/1", started, ended)
	}
	// The span must close before the tool start is surfaced.
	for i, k := range kinds {
		if k == SignalToolStarted {
			if kinds[i-1] != SignalReasoningEnded {
				t.Fatalf("signal order: %v", kinds)
			}
			break
		}
	}
}

func TestSessionReasoningReentersPerTurn(t *testing.T) {
	s := NewSession()

	var kinds []SignalKind
	s.Subscribe(func(sig Signal) { kinds = append(kinds, sig.Kind) }, nil)

	feed(t, s,
		Event{Type: EventReasoningDelta, Text: "first "},
		Event{Type: EventTextDelta, Text: "answer"},
		Event{Type: EventReasoningDelta, Text: "second"},
		Event{Type: EventDone},
	)

	started, ended := 0, 0
	for _, k := range kinds {
		switch k {
		case SignalReasoningStarted:
			started++
		case SignalReasoningEnded:
			ended++
		}
	}
	if started != 2 || ended != 2 {
		t.Fatalf("reasoning signals: started=%d ended=%d, want 2/2", started, ended)
	}
	if got := s.Result().Reasoning; got != "first second" {
		t.Fatalf("reasoning = %q", got)
	}
}

func TestSessionEmbeddedMarkupDetection(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventTextDelta, Text: `Running it now: <tool_call name="shell" id="m1">{"command": "go vet"}`},
		Event{Type: EventTextDelta, Text: `</tool_call> done.`},
		// Replaying equivalent text must not duplicate the call.
		Event{Type: EventTextDelta, Text: " trailing"},
		Event{Type: EventDone},
	)

	calls := s.Result().ToolCalls
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1: %+v", len(calls), calls)
	}
	if calls[0].ID != "m1" || calls[0].Name != "shell" {
		t.Fatalf("call = %+v", calls[0])
	}
	if calls[0].Arguments["command"] != "go vet" {
		t.Fatalf("arguments = %#v", calls[0].Arguments)
	}
	if calls[0].Status != StatusPending {
		t.Fatalf("status = %q", calls[0].Status)
	}
}

func TestSessionErrorDoesNotStopIngestion(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventTextDelta, Text: "partial "},
		Event{Type: EventError, Err: "connection reset"},
		Event{Type: EventTextDelta, Text: "answer"},
		Event{Type: EventError, Err: "second error ignored"},
		Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}},
		Event{Type: EventDone},
	)

	res := s.Result()
	if res.Err == nil || res.Err.Error() != "connection reset" {
		t.Fatalf("err = %v, want first error", res.Err)
	}
	if res.Text != "partial answer" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Usage == nil || res.Usage.OutputTokens != 5 {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

func TestSessionUsageLatestWins(t *testing.T) {
	s := NewSession()
	feed(t, s,
		Event{Type: EventUsage, Use: &Usage{InputTokens: 1, OutputTokens: 1}},
		Event{Type: EventUsage, Use: &Usage{InputTokens: 12, OutputTokens: 34}},
		Event{Type: EventDone},
	)
	usage := s.Result().Usage
	if usage == nil || usage.InputTokens != 12 || usage.OutputTokens != 34 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestSessionRejectsEventsAfterCompletion(t *testing.T) {
	s := NewSession()
	feed(t, s, Event{Type: EventDone})
	err := s.HandleEvent(Event{Type: EventTextDelta, Text: "late"})
	if !errors.Is(err, ErrEventAfterCompletion) {
		t.Fatalf("err = %v", err)
	}
	if s.Result().Text != "" {
		t.Fatal("late event mutated a retired session")
	}
}

func TestSessionRejectsReentrantDelivery(t *testing.T) {
	s := NewSession()

	var reentrant error
	s.Subscribe(func(sig Signal) {
		if sig.Kind == SignalTextDelta {
			reentrant = s.HandleEvent(Event{Type: EventTextDelta, Text: "nested"})
		}
	}, nil)

	feed(t, s, Event{Type: EventTextDelta, Text: "outer"})
	if !errors.Is(reentrant, ErrReentrantEvent) {
		t.Fatalf("re-entrant delivery: err = %v", reentrant)
	}
	feed(t, s, Event{Type: EventDone})
	if got := s.Result().Text; got != "outer" {
		t.Fatalf("text = %q", got)
	}
}

func TestSessionTransportErrorHandlerReplacement(t *testing.T) {
	s := NewSession()

	stale := s.TransportErrorFunc()
	current := s.TransportErrorFunc()

	stale(errors.New("from stale handler"))
	if s.Result().Err != nil {
		t.Fatal("stale handler fed the session")
	}

	current(errors.New("from current handler"))
	feed(t, s, Event{Type: EventDone})
	if err := s.Result().Err; err == nil || err.Error() != "from current handler" {
		t.Fatalf("err = %v", err)
	}
}

func TestSessionTurnErrorSignalCarriesPartialResult(t *testing.T) {
	s := NewSession()

	var final *TurnResult
	var kind SignalKind
	s.Subscribe(func(sig Signal) {
		if sig.Kind == SignalTurnDone || sig.Kind == SignalTurnError {
			final = sig.Result
			kind = sig.Kind
		}
	}, nil)

	feed(t, s,
		Event{Type: EventTextDelta, Text: "got this far"},
		Event{Type: EventError, Err: "boom"},
		Event{Type: EventDone},
	)

	if kind != SignalTurnError {
		t.Fatalf("terminal signal = %q", kind)
	}
	if final == nil || final.Text != "got this far" {
		t.Fatalf("result = %+v", final)
	}
}

func TestSessionIngestSynthesizesCompletionOnTransportFailure(t *testing.T) {
	s := NewSession()

	// A stream that fails mid-turn still yields a well-formed result.
	failing := &failingStream{events: []Event{
		{Type: EventTextDelta, Text: "before the failure"},
	}, err: errors.New("stream cut")}

	res := s.Ingest(failing)
	if res.Text != "before the failure" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Err == nil || res.Err.Error() != "stream cut" {
		t.Fatalf("err = %v", res.Err)
	}
	if !s.Done() {
		t.Fatal("session not completed")
	}
}

type failingStream struct {
	events []Event
	pos    int
	err    error
}

func (f *failingStream) Recv() (Event, error) {
	if f.pos < len(f.events) {
		ev := f.events[f.pos]
		f.pos++
		return ev, nil
	}
	return Event{}, f.err
}

func (f *failingStream) Close() error { return nil }

func TestToolCallStatusMonotonic(t *testing.T) {
	rec := &ToolCallRecord{ID: "x", Status: StatusPending}
	if !rec.Advance(StatusExecuting) {
		t.Fatal("pending -> executing refused")
	}
	if !rec.Advance(StatusSucceeded) {
		t.Fatal("executing -> succeeded refused")
	}
	if rec.Advance(StatusPending) {
		t.Fatal("terminal status regressed to pending")
	}
	if rec.Advance(StatusFailed) {
		t.Fatal("terminal status changed sideways")
	}
	if rec.Status != StatusSucceeded {
		t.Fatalf("status = %q", rec.Status)
	}
}
