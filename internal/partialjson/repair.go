// Package partialjson recovers structured arguments from truncated or
// malformed JSON fragments, as produced by models that stream tool-call
// arguments a few bytes at a time.
package partialjson

import (
	"encoding/json"
	"strings"
)

// Repair attempts to turn raw into a JSON object using a cascade of
// strategies in decreasing order of confidence: strict parse, bracket
// completion, then field extraction against DefaultFields. It returns
// nil when nothing can be recovered. Repair never panics.
func Repair(raw string) map[string]any {
	return RepairWithFields(raw, DefaultFields)
}

// RepairWithFields is Repair with a caller-supplied field list for the
// extraction fallback.
func RepairWithFields(raw string, fields []string) map[string]any {
	if obj, ok := parseObject(raw); ok {
		return obj
	}
	if completed, ok := Complete(raw); ok {
		if obj, ok := parseObject(completed); ok {
			return obj
		}
	}
	return ExtractFields(raw, fields)
}

// Complete closes an unterminated JSON fragment: leading garbage before
// the first '{' or '[' is discarded, an unterminated string gets its
// closing quote (a trailing backslash is escaped first), and open
// brackets are closed in reverse order. The result is not guaranteed to
// parse; callers should strict-parse it afterwards.
func Complete(raw string) (string, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", false
	}
	fragment := raw[start:]

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !inString && len(stack) == 0 {
		return fragment, true
	}

	var b strings.Builder
	b.Grow(len(fragment) + len(stack) + 2)
	b.WriteString(fragment)
	if inString {
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String(), true
}

func parseObject(raw string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
