package tagscan

import (
	"reflect"
	"testing"
)

func TestScanAttributeForm(t *testing.T) {
	text := `Let me read that. <tool_call name="read_file" id="c1">{"path": "x.go"}</tool_call> Done.`
	calls := Scan(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	call := calls[0]
	if call.ID != "c1" || call.Name != "read_file" {
		t.Fatalf("call = %+v", call)
	}
	if call.Arguments["path"] != "x.go" {
		t.Fatalf("arguments = %#v", call.Arguments)
	}
}

func TestScanBodyForm(t *testing.T) {
	text := `<tool_call>{"name": "shell", "arguments": {"command": "ls"}}</tool_call>`
	calls := Scan(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "shell" {
		t.Fatalf("name = %q", calls[0].Name)
	}
	if calls[0].Arguments["command"] != "ls" {
		t.Fatalf("arguments = %#v", calls[0].Arguments)
	}
	if calls[0].ID != "embedded-0" {
		t.Fatalf("id = %q", calls[0].ID)
	}
}

func TestScanMultiplePreservesOrder(t *testing.T) {
	text := `<tool_call name="glob">{"pattern": "*.go"}</tool_call>` +
		` and ` +
		`<tool_call name="grep">{"pattern": "TODO"}</tool_call>`
	calls := Scan(text)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].Name != "glob" || calls[1].Name != "grep" {
		t.Fatalf("order = %q, %q", calls[0].Name, calls[1].Name)
	}
	if calls[0].ID != "embedded-0" || calls[1].ID != "embedded-1" {
		t.Fatalf("ids = %q, %q", calls[0].ID, calls[1].ID)
	}
}

func TestScanSkipsMalformed(t *testing.T) {
	cases := []string{
		`<tool_call name="x">not json</tool_call>`,
		`<tool_call>{"arguments": {"a": 1}}</tool_call>`, // no name anywhere
		`<tool_call name="x">{"path": "unterminated`,     // no closing tag
		`plain text without markup`,
	}
	for _, text := range cases {
		if calls := Scan(text); calls != nil {
			t.Fatalf("Scan(%q) = %+v, want nil", text, calls)
		}
	}
}

func TestScanStableAcrossGrowth(t *testing.T) {
	prefix := `<tool_call name="read_file">{"path": "a.go"}</tool_call>`
	first := Scan(prefix)

	grown := prefix + ` more text <tool_call name="read_file">{"path": "b.go"}</tool_call>`
	second := Scan(grown)

	if len(first) != 1 || len(second) != 2 {
		t.Fatalf("lens = %d, %d", len(first), len(second))
	}
	if !reflect.DeepEqual(first[0], second[0]) {
		t.Fatalf("first call changed across growth: %+v vs %+v", first[0], second[0])
	}
	if second[1].ID == second[0].ID {
		t.Fatal("distinct calls share an id")
	}
}

func TestScanIdempotent(t *testing.T) {
	text := `<tool_call name="edit_file" id="e9">{"path": "m.go", "old_string": "a", "new_string": "b"}</tool_call>`
	first := Scan(text)
	second := Scan(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("not idempotent: %+v vs %+v", first, second)
	}
}
