package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine to the pull-based Stream
// interface. The producer sends events on the channel and returns once
// the turn is finished; its error, if any, is surfaced by Recv after
// the channel drains.
type eventStream struct {
	events chan Event
	errc   chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	done      bool
	err       error
}

// newEventStream runs produce in a goroutine and returns a Stream fed
// by it. Cancelling the supplied context, or calling Close, stops the
// producer.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		errc:   make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		defer close(s.events)
		if err := produce(ctx, s.events); err != nil {
			s.errc <- err
		}
		close(s.errc)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	if s.done {
		return Event{}, s.err
	}
	ev, ok := <-s.events
	if !ok {
		s.done = true
		if err := <-s.errc; err != nil {
			s.err = err
		} else {
			s.err = io.EOF
		}
		return Event{}, s.err
	}
	return ev, nil
}

// Close cancels the producer and drains any buffered events so a
// producer blocked on send can exit.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			for range s.events {
			}
		}()
	})
	return nil
}

// sliceStream replays a fixed sequence of events. Used by tests and by
// providers that receive a complete response in one shot.
type sliceStream struct {
	events []Event
	pos    int
}

func newSliceStream(events []Event) *sliceStream {
	return &sliceStream{events: events}
}

func (s *sliceStream) Recv() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.events)
	return nil
}
