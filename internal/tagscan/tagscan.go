// Package tagscan detects tool calls embedded as tag markup in model
// text output. Some models emit calls inline as
//
//	<tool_call name="read_file" id="c1">{"path": "x.go"}</tool_call>
//
// or in the attribute-less form carrying name and arguments in the
// body:
//
//	<tool_call>{"name": "read_file", "arguments": {"path": "x.go"}}</tool_call>
//
// Scan is pure and order-preserving, so callers may re-run it over
// growing text and dedupe by ID.
package tagscan

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	callRe = regexp.MustCompile(`(?s)<tool_call((?:\s+\w+="[^"]*")*)\s*>(.*?)</tool_call>`)
	attrRe = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// Call is one embedded tool call found in text.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Scan returns every well-formed embedded tool call in text, in order
// of appearance. Malformed markup is skipped. Calls without an explicit
// id attribute get a deterministic id derived from their position, so
// repeated scans over the same (or extended) text yield identical ids
// for identical calls.
func Scan(text string) []Call {
	matches := callRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	calls := make([]Call, 0, len(matches))
	for i, m := range matches {
		attrs := parseAttrs(m[1])
		call := Call{
			ID:   attrs["id"],
			Name: attrs["name"],
		}

		body := m[2]
		var parsed map[string]any
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			continue
		}

		if call.Name == "" {
			name, _ := parsed["name"].(string)
			call.Name = name
			if args, ok := parsed["arguments"].(map[string]any); ok {
				call.Arguments = args
			}
		} else {
			call.Arguments = parsed
		}

		if call.Name == "" {
			continue
		}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		if call.ID == "" {
			call.ID = fmt.Sprintf("embedded-%d", i)
		}
		calls = append(calls, call)
	}
	if len(calls) == 0 {
		return nil
	}
	return calls
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}
