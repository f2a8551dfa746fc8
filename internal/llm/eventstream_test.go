package llm

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestEventStreamRecvUntilEOF(t *testing.T) {
	s := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "a"}
		events <- Event{Type: EventTextDelta, Text: "b"}
		events <- Event{Type: EventDone}
		return nil
	})
	defer s.Close()

	var got []string
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if ev.Type == EventTextDelta {
			got = append(got, ev.Text)
		}
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestEventStreamProducerErrorAfterEvents(t *testing.T) {
	wantErr := errors.New("upstream hung up")
	s := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		events <- Event{Type: EventTextDelta, Text: "partial"}
		return wantErr
	})
	defer s.Close()

	ev, err := s.Recv()
	if err != nil || ev.Text != "partial" {
		t.Fatalf("first Recv = %+v, %v", ev, err)
	}
	if _, err := s.Recv(); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	// The error sticks on later calls.
	if _, err := s.Recv(); !errors.Is(err, wantErr) {
		t.Fatalf("repeat err = %v", err)
	}
}

func TestEventStreamCloseUnblocksProducer(t *testing.T) {
	blocked := make(chan struct{})
	s := newEventStream(context.Background(), func(ctx context.Context, events chan<- Event) error {
		close(blocked)
		<-ctx.Done()
		return ctx.Err()
	})

	<-blocked
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSliceStream(t *testing.T) {
	s := newSliceStream([]Event{
		{Type: EventTextDelta, Text: "x"},
		{Type: EventDone},
	})
	for i := 0; i < 2; i++ {
		if _, err := s.Recv(); err != nil {
			t.Fatalf("Recv %d: %v", i, err)
		}
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}
