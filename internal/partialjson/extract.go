package partialjson

import (
	"encoding/json"
	"strings"
)

// DefaultFields are the argument names the extraction fallback scans
// for. The list covers the built-in tool set; callers wiring different
// tools can pass their own list to RepairWithFields. Matching is by
// literal field name only.
var DefaultFields = []string{
	"path",
	"file_path",
	"content",
	"command",
	"pattern",
	"query",
	"old_string",
	"new_string",
	"text",
	"name",
	"recursive",
	"limit",
	"offset",
	"timeout",
}

// ExtractFields scans raw for `"field": value` pairs and returns
// whatever it can pull out. A field that cannot be extracted cleanly is
// skipped without error. Returns nil when nothing matches.
func ExtractFields(raw string, fields []string) map[string]any {
	var out map[string]any
	for _, field := range fields {
		value, ok := extractField(raw, field)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(fields))
		}
		out[field] = value
	}
	return out
}

func extractField(raw, field string) (any, bool) {
	needle := `"` + field + `"`
	idx := strings.Index(raw, needle)
	if idx < 0 {
		return nil, false
	}
	rest := strings.TrimLeft(raw[idx+len(needle):], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return nil, false
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if rest == "" {
		return nil, false
	}
	if rest[0] == '"' {
		return extractString(rest[1:])
	}
	return extractLiteral(rest)
}

// extractString reads a quoted value starting just past the opening
// quote, un-escaping \n, \" and \\. An unterminated string is a
// failure, not a partial value.
func extractString(s string) (any, bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return nil, false
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), true
		default:
			b.WriteByte(c)
		}
	}
	return nil, false
}

// extractLiteral reads a bare number, boolean or null token.
func extractLiteral(s string) (any, bool) {
	end := 0
	for end < len(s) {
		c := s[end]
		if c == ',' || c == '}' || c == ']' || c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			break
		}
		end++
	}
	switch token := s[:end]; token {
	case "":
		return nil, false
	case "true":
		return true, true
	case "false":
		return false, true
	case "null":
		return nil, true
	default:
		var num float64
		if err := json.Unmarshal([]byte(token), &num); err != nil {
			return nil, false
		}
		return num, true
	}
}
