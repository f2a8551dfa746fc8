package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stitchkit/stitch/internal/llm"
)

// Registry holds registered tool executors keyed by name, along with each
// tool's definition and enabled flag. Reads vastly outnumber writes after
// startup, so lookups take the read lock and registration/toggling the
// write lock. Execution never panics across the registry boundary: unknown
// tools, disabled tools, validation failures, and executor panics all come
// back as a structured ExecutionResult.
type Registry struct {
	mu          sync.RWMutex
	defs        map[string]*Definition
	entries     map[string]*registryEntry
	initialized bool
}

type registryEntry struct {
	def      *Definition
	executor Executor
	enabled  bool
}

// NewRegistry creates a registry seeded with the built-in definitions.
func NewRegistry() *Registry {
	defs := make(map[string]*Definition, len(builtinDefinitions))
	for name, def := range builtinDefinitions {
		defs[name] = def
	}
	return &Registry{
		defs:    defs,
		entries: make(map[string]*registryEntry),
	}
}

// Define installs a definition for a tool name, making it registrable.
// Used for tools outside the built-in set, such as MCP bridged tools.
func (r *Registry) Define(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
}

// Register binds an executor to a tool name. It returns false, without
// panicking, when the name is already registered and override is unset, or
// when no definition is known for the name. Callers that need diagnostics
// should log the failed name themselves.
func (r *Registry) Register(name string, executor Executor, override bool) bool {
	if executor == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return false
	}
	if _, exists := r.entries[name]; exists && !override {
		return false
	}
	r.entries[name] = &registryEntry{def: def, executor: executor, enabled: true}
	return true
}

// RegisterAll registers every executor in the map, overriding existing
// entries, and marks the registry initialized. Names without a known
// definition are skipped.
func (r *Registry) RegisterAll(executors map[string]Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, executor := range executors {
		def, ok := r.defs[name]
		if !ok || executor == nil {
			continue
		}
		r.entries[name] = &registryEntry{def: def, executor: executor, enabled: true}
	}
	r.initialized = true
}

// Initialized reports whether RegisterAll has run.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// SetEnabled toggles a tool, returning false for unknown names. A disabled
// tool fails every Execute call until re-enabled.
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[name]
	if !ok {
		return false
	}
	entry.enabled = enabled
	return true
}

// IsEnabled reports whether a tool is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return ok && entry.enabled
}

// ApprovalTypeFor returns the approval class for a tool, or ApprovalNone
// for unknown names. Callers must treat unknown tools as non-executable
// before consulting approval policy; this lookup does not gate execution.
func (r *Registry) ApprovalTypeFor(name string) ApprovalType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.entries[name]; ok {
		if entry.def.Approval == "" {
			return ApprovalNone
		}
		return entry.def.Approval
	}
	return ApprovalNone
}

// ParallelSafe reports whether a tool may run concurrently with others.
// Unknown tools are not parallel safe.
func (r *Registry) ParallelSafe(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.entries[name]; ok {
		return entry.def.ParallelSafe
	}
	return false
}

// Validate checks args against the named tool's schema. A nil return means
// the arguments are acceptable.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("Unknown tool: %s", name)
	}
	return entry.def.ValidateArgs(args)
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns provider-facing specs for every enabled tool, sorted by
// name for a stable request shape.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.entries))
	for _, entry := range r.entries {
		if !entry.enabled {
			continue
		}
		specs = append(specs, llm.ToolSpec{
			Name:        entry.def.Name,
			Description: entry.def.Description,
			Schema:      entry.def.Schema,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute validates and runs the named tool. It may be called concurrently
// for distinct calls; the entry snapshot taken under the read lock keeps
// enabled/schema state consistent for the duration of one execution.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result ExecutionResult) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	var snapshot registryEntry
	if ok {
		snapshot = *entry
	}
	r.mu.RUnlock()

	if !ok {
		return ExecutionResult{Error: fmt.Sprintf("Unknown tool: %s", name)}
	}
	if !snapshot.enabled {
		return ExecutionResult{Error: fmt.Sprintf("Tool %q is disabled", name)}
	}
	if err := snapshot.def.ValidateArgs(args); err != nil {
		return ExecutionResult{Error: err.Error()}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = ExecutionResult{Error: fmt.Sprintf("tool %s panicked: %v", name, rec)}
		}
	}()

	raw, err := json.Marshal(args)
	if err != nil {
		return ExecutionResult{Error: fmt.Sprintf("encoding arguments: %v", err)}
	}

	// Loose schemas pass unknown keys through validation; surface them so
	// the model can correct itself on the next call.
	var warning string
	if snapshot.def.allowsUnknownParams() {
		warning = WarnUnknownParams(raw, snapshot.def.declaredParams())
	}

	content, err := snapshot.executor.Execute(ctx, raw)
	if err != nil {
		return ExecutionResult{Error: err.Error()}
	}
	return ExecutionResult{Success: true, Content: warning + content}
}

// ExecuteCall adapts Execute for the engine loop: it runs the call, bounds
// the output for conversation context, and maps failures onto the result
// shape providers send back to the model.
func (r *Registry) ExecuteCall(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return llm.ToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Content: fmt.Sprintf("invalid arguments: %v", err),
				IsError: true,
			}
		}
	}

	res := r.Execute(llm.ContextWithCallID(ctx, call.ID), call.Name, args)
	if !res.Success {
		return llm.ToolResult{
			ID:       call.ID,
			Name:     call.Name,
			Content:  res.Error,
			IsError:  true,
			Rejected: isPermissionDenied(res.Error),
		}
	}

	limit := 0
	r.mu.RLock()
	if entry, ok := r.entries[call.Name]; ok {
		limit = entry.def.MaxResultChars
	}
	r.mu.RUnlock()

	return llm.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: Bound(call.Name, res.Content, limit),
	}
}

// isPermissionDenied detects approval rejections from the ToolError wire
// format so the engine can mark the call rejected rather than failed.
func isPermissionDenied(message string) bool {
	return strings.HasPrefix(message, string(ErrPermissionDenied)+":")
}
