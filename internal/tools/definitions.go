package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Definition is the static configuration for one tool: its schema plus the
// policy metadata (category, approval, parallel safety, output cap) that the
// registry applies when an executor is registered under this name.
type Definition struct {
	Name         string
	Description  string
	Category     Category
	Approval     ApprovalType
	ParallelSafe bool

	// MaxResultChars caps this tool's output; 0 means the package default.
	MaxResultChars int

	// Schema is a JSON Schema document in map form, the shape providers
	// expect when advertising tools.
	Schema map[string]any

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// builtinDefinitions is the per-tool configuration table. Tools not present
// here (MCP bridged tools, custom executors) must install a definition via
// Registry.Define before registration.
var builtinDefinitions = map[string]*Definition{
	ReadFileToolName: {
		Name:         ReadFileToolName,
		Description:  "Read file contents. Returns line-numbered output. Use start_line/end_line for pagination.",
		Category:     CategoryRead,
		Approval:     ApprovalNone,
		ParallelSafe: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Absolute or relative path to the file to read",
				},
				"start_line": map[string]any{
					"type":        "integer",
					"description": "1-indexed start line (default: 1)",
				},
				"end_line": map[string]any{
					"type":        "integer",
					"description": "1-indexed end line (default: EOF)",
				},
			},
			"required":             []any{"path"},
			"additionalProperties": false,
		},
	},
	WriteFileToolName: {
		Name:        WriteFileToolName,
		Description: "Create or overwrite a file with the specified content. Creates parent directories if needed.",
		Category:    CategoryEdit,
		Approval:    ApprovalAsk,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to write",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Full file content to write",
				},
			},
			"required":             []any{"path", "content"},
			"additionalProperties": false,
		},
	},
	EditFileToolName: {
		Name:        EditFileToolName,
		Description: "Replace old_string with new_string in a file. old_string must match exactly and be unique unless replace_all is set.",
		Category:    CategoryEdit,
		Approval:    ApprovalAsk,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to edit",
				},
				"old_string": map[string]any{
					"type":        "string",
					"description": "Exact text to find. Include enough context to be unique.",
				},
				"new_string": map[string]any{
					"type":        "string",
					"description": "Text to replace old_string with",
				},
				"replace_all": map[string]any{
					"type":        "boolean",
					"description": "Replace every occurrence instead of requiring a unique match",
				},
			},
			"required":             []any{"path", "old_string", "new_string"},
			"additionalProperties": false,
		},
	},
	ShellToolName: {
		Name:        ShellToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Category:    CategoryExecute,
		Approval:    ApprovalAsk,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]any{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 30, max: 300)",
				},
			},
			"required":             []any{"command"},
			"additionalProperties": false,
		},
	},
	GrepToolName: {
		Name:         GrepToolName,
		Description:  "Search file contents using regex patterns (RE2 syntax). Returns matches with context.",
		Category:     CategorySearch,
		Approval:     ApprovalNone,
		ParallelSafe: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Regular expression pattern to search for (RE2 syntax)",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "File or directory to search in (defaults to current directory)",
				},
				"include": map[string]any{
					"type":        "string",
					"description": "Glob filter for files, e.g., '*.go' or '*.{js,ts}'",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default: 100)",
				},
			},
			"required":             []any{"pattern"},
			"additionalProperties": false,
		},
	},
	GlobToolName: {
		Name:         GlobToolName,
		Description:  "Find files by glob pattern (supports ** for recursive matching). Returns file metadata sorted by modification time.",
		Category:     CategorySearch,
		Approval:     ApprovalNone,
		ParallelSafe: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern": map[string]any{
					"type":        "string",
					"description": "Glob pattern supporting ** for recursive matching, e.g., '**/*.go'",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Base directory for the search (defaults to current directory)",
				},
			},
			"required":             []any{"pattern"},
			"additionalProperties": false,
		},
	},
	ListDirToolName: {
		Name:         ListDirToolName,
		Description:  "List directory contents with file sizes and modification times.",
		Category:     CategoryRead,
		Approval:     ApprovalNone,
		ParallelSafe: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list (defaults to current directory)",
				},
				"recursive": map[string]any{
					"type":        "boolean",
					"description": "Recurse into subdirectories",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of entries (default: 200)",
				},
			},
			"additionalProperties": false,
		},
	},
}

// DefinitionFor returns the built-in definition for a tool name.
func DefinitionFor(name string) (*Definition, bool) {
	def, ok := builtinDefinitions[name]
	return def, ok
}

// CategoryFor returns the bounding category for a tool name. Bridged MCP
// tools count as execute; other unknown tools default to read.
func CategoryFor(name string) Category {
	if def, ok := builtinDefinitions[name]; ok {
		return def.Category
	}
	if strings.HasPrefix(name, "mcp_") {
		return CategoryExecute
	}
	return CategoryRead
}

// schema compiles the definition's schema document, caching the result.
func (d *Definition) schema() (*jsonschema.Schema, error) {
	d.compileOnce.Do(func() {
		doc, err := json.Marshal(d.Schema)
		if err != nil {
			d.compileErr = fmt.Errorf("marshaling schema for %s: %w", d.Name, err)
			return
		}
		d.compiled, d.compileErr = jsonschema.CompileString(d.Name+".json", string(doc))
	})
	return d.compiled, d.compileErr
}

// ValidateArgs checks decoded arguments against the definition's schema.
// The returned error message lists one "field: reason" entry per violation,
// joined by "; ".
func (d *Definition) ValidateArgs(args map[string]any) error {
	schema, err := d.schema()
	if err != nil {
		return err
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator only accepts the types produced by encoding/json, so
	// round-trip through it rather than trusting the caller's value kinds.
	doc, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return fmt.Errorf("arguments: %v", err)
	}
	if err := schema.Validate(decoded); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			return fmt.Errorf("%s", flattenValidationError(ve))
		}
		return err
	}
	return nil
}

func asValidationError(err error, out **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*out = ve
	}
	return ok
}

// flattenValidationError walks the validator's cause tree and renders each
// leaf as "field: reason".
func flattenValidationError(err *jsonschema.ValidationError) string {
	var parts []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := strings.TrimPrefix(e.InstanceLocation, "/")
		field = strings.ReplaceAll(field, "/", ".")

		// Required-property violations are reported against the parent
		// object; attribute them to the missing fields instead.
		if names, ok := missingProperties(e.Message); ok {
			for _, n := range names {
				if field != "" {
					n = field + "." + n
				}
				parts = append(parts, n+": required")
			}
			return
		}

		if field == "" {
			field = "arguments"
		}
		parts = append(parts, field+": "+e.Message)
	}
	walk(err)
	if len(parts) == 0 {
		return "arguments: " + err.Message
	}
	return strings.Join(parts, "; ")
}

func missingProperties(message string) ([]string, bool) {
	const prefix = "missing properties: "
	if !strings.HasPrefix(message, prefix) {
		return nil, false
	}
	raw := strings.Split(strings.TrimPrefix(message, prefix), ",")
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		names = append(names, strings.Trim(strings.TrimSpace(r), "'"))
	}
	return names, true
}
