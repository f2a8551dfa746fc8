package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// WarnUnknownParams checks args JSON for keys not in knownKeys.
// Returns a warning string (with trailing newline) to prepend to tool output,
// or "" if no unknown keys found.
func WarnUnknownParams(args json.RawMessage, knownKeys []string) string {
	var m map[string]interface{}
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return ""
	}
	sort.Strings(unknown)
	var sb strings.Builder
	for _, k := range unknown {
		sb.WriteString(fmt.Sprintf("Unknown parameter '%s' was ignored\n", k))
	}
	return sb.String()
}

// allowsUnknownParams reports whether the definition's schema accepts keys
// beyond its declared properties. Built-in schemas set
// additionalProperties:false, so validation already rejects extras; loose
// schemas (MCP bridged tools, custom definitions) let them through and the
// caller warns instead.
func (d *Definition) allowsUnknownParams() bool {
	if d.Schema == nil {
		return true
	}
	ap, ok := d.Schema["additionalProperties"]
	if !ok {
		return true
	}
	allowed, isBool := ap.(bool)
	return !isBool || allowed
}

// declaredParams returns the schema's top-level property names.
func (d *Definition) declaredParams() []string {
	props, ok := d.Schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return keys
}
