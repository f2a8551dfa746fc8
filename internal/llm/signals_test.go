package llm

import (
	"testing"
)

func TestNotifierDeliversInSubscriptionOrder(t *testing.T) {
	n := NewNotifier()

	var order []string
	n.Subscribe(func(Signal) { order = append(order, "a") }, nil)
	n.Subscribe(func(Signal) { order = append(order, "b") }, nil)
	n.Subscribe(func(Signal) { order = append(order, "c") }, nil)

	n.Emit(Signal{Kind: SignalTextDelta})

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("delivery order = %v", order)
	}
}

func TestNotifierDetachStopsDeliveryAndRunsCleanupOnce(t *testing.T) {
	n := NewNotifier()

	calls, cleanups := 0, 0
	detach := n.Subscribe(func(Signal) { calls++ }, func() { cleanups++ })

	n.Emit(Signal{Kind: SignalTextDelta})
	detach()
	detach()
	n.Emit(Signal{Kind: SignalTextDelta})

	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if cleanups != 1 {
		t.Fatalf("cleanup ran %d times, want 1", cleanups)
	}
}

func TestNotifierDetachAllRunsEveryCleanup(t *testing.T) {
	n := NewNotifier()

	ran := make(map[string]int)
	n.Subscribe(func(Signal) {}, func() { ran["a"]++ })
	n.Subscribe(func(Signal) {}, func() { ran["b"]++ })
	n.Subscribe(func(Signal) {}, nil)

	n.DetachAll()
	n.DetachAll()

	if ran["a"] != 1 || ran["b"] != 1 {
		t.Fatalf("cleanups = %v", ran)
	}

	delivered := false
	// Subscriptions torn down; a fresh one still works.
	n.Subscribe(func(Signal) { delivered = true }, nil)
	n.Emit(Signal{Kind: SignalTurnDone})
	if !delivered {
		t.Fatal("notifier unusable after DetachAll")
	}
}

func TestNotifierPanickingCleanupDoesNotStopOthers(t *testing.T) {
	n := NewNotifier()

	survived := 0
	n.Subscribe(func(Signal) {}, func() { panic("cleanup blew up") })
	n.Subscribe(func(Signal) {}, func() { survived++ })
	n.Subscribe(func(Signal) {}, func() { panic("another one") })
	n.Subscribe(func(Signal) {}, func() { survived++ })

	n.DetachAll()

	if survived != 2 {
		t.Fatalf("%d cleanups survived, want 2", survived)
	}
}

func TestNotifierDetachDuringEmit(t *testing.T) {
	n := NewNotifier()

	var detach func()
	first := 0
	detach = n.Subscribe(func(Signal) {
		first++
		detach()
	}, nil)
	second := 0
	n.Subscribe(func(Signal) { second++ }, nil)

	n.Emit(Signal{Kind: SignalTextDelta})
	n.Emit(Signal{Kind: SignalTextDelta})

	if first != 1 {
		t.Fatalf("self-detaching handler ran %d times, want 1", first)
	}
	if second != 2 {
		t.Fatalf("remaining handler ran %d times, want 2", second)
	}
}

func TestSessionCancelDetachesSubscribers(t *testing.T) {
	s := NewSession()

	delivered := 0
	cleaned := 0
	s.Subscribe(func(Signal) { delivered++ }, func() { cleaned++ })

	feed(t, s, Event{Type: EventTextDelta, Text: "hello"})
	before := delivered

	s.Cancel()
	s.Cancel()

	if cleaned != 1 {
		t.Fatalf("cleanup ran %d times, want 1", cleaned)
	}

	// Later events must not reach the detached subscriber.
	_ = s.HandleEvent(Event{Type: EventTextDelta, Text: "more"})
	if delivered != before {
		t.Fatalf("detached subscriber received %d extra signals", delivered-before)
	}
}
