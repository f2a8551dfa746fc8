package llm

import (
	"log/slog"
	"sort"
	"sync"
)

// SignalKind identifies a lifecycle signal emitted during ingestion.
type SignalKind string

const (
	SignalTurnStarted      SignalKind = "turn_started"
	SignalTextDelta        SignalKind = "text_delta"
	SignalReasoningStarted SignalKind = "reasoning_started"
	SignalReasoningDelta   SignalKind = "reasoning_delta"
	SignalReasoningEnded   SignalKind = "reasoning_ended"
	SignalToolStarted      SignalKind = "tool_started"
	SignalToolDelta        SignalKind = "tool_delta"
	SignalToolEnded        SignalKind = "tool_ended"
	SignalToolExecStarted  SignalKind = "tool_exec_started"
	SignalToolExecEnded    SignalKind = "tool_exec_ended"
	SignalTurnDone         SignalKind = "turn_done"
	SignalTurnError        SignalKind = "turn_error"
)

// Signal is one lifecycle notification for presentation layers.
type Signal struct {
	Kind SignalKind

	// Text is the fragment for text and reasoning delta signals.
	Text string

	// Call is a snapshot of the tool call for tool signals. The
	// Arguments map must be treated as read-only.
	Call *ToolCallRecord

	// Result is set on turn_done and turn_error.
	Result *TurnResult

	// Err is set on turn_error.
	Err error
}

// Handler consumes lifecycle signals. Handlers run synchronously on
// the ingestion goroutine and must not block or feed events back into
// the session.
type Handler func(Signal)

type subscription struct {
	handler Handler
	cleanup func()
	once    sync.Once
}

// Notifier fans lifecycle signals out to subscribers in subscription
// order. Detaching is idempotent: each subscription's cleanup runs
// exactly once, whether detached individually or via DetachAll.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*subscription)}
}

// Subscribe registers a handler and an optional cleanup to run when the
// subscription is detached. The returned function detaches it.
func (n *Notifier) Subscribe(h Handler, cleanup func()) (detach func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	sub := &subscription{handler: h, cleanup: cleanup}
	n.subs[id] = sub
	n.mu.Unlock()
	return func() { n.detach(id, sub) }
}

// Emit delivers sig to all current subscribers, one at a time.
func (n *Notifier) Emit(sig Signal) {
	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, n.subs[id].handler)
	}
	n.mu.Unlock()

	for _, h := range handlers {
		h(sig)
	}
}

// DetachAll removes every subscription. Each cleanup runs exactly once;
// a panicking cleanup does not stop the others.
func (n *Notifier) DetachAll() {
	n.mu.Lock()
	type entry struct {
		id  int
		sub *subscription
	}
	entries := make([]entry, 0, len(n.subs))
	for id, sub := range n.subs {
		entries = append(entries, entry{id, sub})
	}
	n.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		n.detach(e.id, e.sub)
	}
}

func (n *Notifier) detach(id int, sub *subscription) {
	sub.once.Do(func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
		if sub.cleanup != nil {
			runCleanup(sub.cleanup)
		}
	})
}

func runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("subscription cleanup panicked", "panic", r)
		}
	}()
	fn()
}
