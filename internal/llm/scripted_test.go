package llm

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestLoadScriptRoundTrip(t *testing.T) {
	log := `
# a captured turn
{"type":"reasoning","text":"think"}
{"type":"text","text":"hello "}
{"type":"text","text":"world"}
{"type":"tool_call_start","id":"c1","name":"read_file"}
{"type":"tool_call_delta","id":"c1","args_delta":"{\"path\":\"main.go\"}"}
{"type":"tool_call","id":"c1","name":"read_file","arguments":{"path":"main.go"}}
{"type":"usage","input_tokens":12,"output_tokens":7,"cached_input_tokens":5}
{"type":"done"}
`
	provider, err := LoadScript(strings.NewReader(log))
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	res := NewSession().Ingest(stream)
	if res.Err != nil {
		t.Fatalf("ingest error: %v", res.Err)
	}
	if res.Text != "hello world" || res.Reasoning != "think" {
		t.Errorf("text=%q reasoning=%q", res.Text, res.Reasoning)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(res.ToolCalls))
	}
	call := res.ToolCalls[0]
	if call.Name != "read_file" || call.Arguments["path"] != "main.go" {
		t.Errorf("call = %+v", call)
	}
	if res.Usage == nil || res.Usage.InputTokens != 12 || res.Usage.CachedInputTokens != 5 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestLoadScriptAppendsDone(t *testing.T) {
	provider, err := LoadScript(strings.NewReader(`{"type":"text","text":"hi"}`))
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	stream, _ := provider.Stream(context.Background(), Request{})
	var last Event
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		last = ev
	}
	if last.Type != EventDone {
		t.Errorf("last event = %q, want done", last.Type)
	}
}

func TestLoadScriptRejectsBadChunk(t *testing.T) {
	_, err := LoadScript(strings.NewReader(`{"type":"teleport"}`))
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("err = %v, want line-numbered parse failure", err)
	}
}

func TestParseChunkLineErrorChunk(t *testing.T) {
	ev, err := ParseChunkLine(`{"type":"error","message":"rate limited"}`)
	if err != nil {
		t.Fatalf("ParseChunkLine: %v", err)
	}
	if ev.Type != EventError || ev.Err != "rate limited" {
		t.Errorf("event = %+v", ev)
	}
}
