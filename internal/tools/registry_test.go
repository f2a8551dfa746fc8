package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stitchkit/stitch/internal/llm"
)

func toolCall(t *testing.T, id, name, argsJSON string) llm.ToolCall {
	t.Helper()
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(argsJSON)}
}

func echoExecutor(t *testing.T) Executor {
	t.Helper()
	return ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	})
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "unknown_tool", map[string]any{})
	if res.Success {
		t.Fatal("unknown tool reported success")
	}
	if res.Error != "Unknown tool: unknown_tool" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestRegistryExecuteDisabledTool(t *testing.T) {
	r := NewRegistry()
	if !r.Register(GrepToolName, echoExecutor(t), false) {
		t.Fatal("register failed")
	}
	if !r.SetEnabled(GrepToolName, false) {
		t.Fatal("SetEnabled failed")
	}

	res := r.Execute(context.Background(), GrepToolName, map[string]any{"pattern": "x"})
	if res.Success {
		t.Fatal("disabled tool reported success")
	}
	if !strings.Contains(res.Error, "disabled") {
		t.Fatalf("error = %q, want it to mention disabled", res.Error)
	}

	if !r.SetEnabled(GrepToolName, true) {
		t.Fatal("re-enable failed")
	}
	if res := r.Execute(context.Background(), GrepToolName, map[string]any{"pattern": "x"}); !res.Success {
		t.Fatalf("re-enabled tool failed: %s", res.Error)
	}
}

func TestRegistrySetEnabledUnknownTool(t *testing.T) {
	r := NewRegistry()
	if r.SetEnabled("nope", false) {
		t.Fatal("SetEnabled succeeded for unknown tool")
	}
}

func TestRegistryValidationFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(ReadFileToolName, echoExecutor(t), false)

	res := r.Execute(context.Background(), ReadFileToolName, map[string]any{})
	if res.Success {
		t.Fatal("missing required arg reported success")
	}
	if !strings.Contains(res.Error, "path") || !strings.Contains(res.Error, "required") {
		t.Fatalf("error = %q", res.Error)
	}

	res = r.Execute(context.Background(), ReadFileToolName, map[string]any{"path": 42})
	if res.Success {
		t.Fatal("wrong-typed arg reported success")
	}
	if !strings.Contains(res.Error, "path:") {
		t.Fatalf("error = %q, want field-prefixed reason", res.Error)
	}
}

func TestRegistryValidationJoinsViolations(t *testing.T) {
	r := NewRegistry()
	r.Register(WriteFileToolName, echoExecutor(t), false)

	err := r.Validate(WriteFileToolName, map[string]any{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "path: required") || !strings.Contains(msg, "content: required") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.Contains(msg, "; ") {
		t.Fatalf("message %q not joined with semicolons", msg)
	}
}

func TestRegistryExecutorPanicIsCaught(t *testing.T) {
	r := NewRegistry()
	r.Register(GlobToolName, ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		panic("boom in executor")
	}), false)

	res := r.Execute(context.Background(), GlobToolName, map[string]any{"pattern": "*"})
	if res.Success {
		t.Fatal("panicking executor reported success")
	}
	if !strings.Contains(res.Error, "boom in executor") {
		t.Fatalf("error = %q, want the panic message preserved", res.Error)
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry()
	first := ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return "first", nil
	})
	second := ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return "second", nil
	})

	if !r.Register(GrepToolName, first, false) {
		t.Fatal("initial register failed")
	}
	if r.Register(GrepToolName, second, false) {
		t.Fatal("re-register without override succeeded")
	}
	if res := r.Execute(context.Background(), GrepToolName, map[string]any{"pattern": "x"}); res.Content != "first" {
		t.Fatalf("content = %q, want first executor", res.Content)
	}

	if !r.Register(GrepToolName, second, true) {
		t.Fatal("re-register with override failed")
	}
	if res := r.Execute(context.Background(), GrepToolName, map[string]any{"pattern": "x"}); res.Content != "second" {
		t.Fatalf("content = %q, want second executor", res.Content)
	}
}

func TestRegistryRegisterUnknownDefinition(t *testing.T) {
	r := NewRegistry()
	if r.Register("no_such_definition", echoExecutor(t), false) {
		t.Fatal("register succeeded without a definition")
	}

	r.Define(&Definition{
		Name:     "no_such_definition",
		Category: CategoryRead,
		Approval: ApprovalNone,
		Schema:   map[string]any{"type": "object"},
	})
	if !r.Register("no_such_definition", echoExecutor(t), false) {
		t.Fatal("register failed after Define")
	}
}

func TestRegistryRegisterAllMarksInitialized(t *testing.T) {
	r := NewRegistry()
	if r.Initialized() {
		t.Fatal("fresh registry claims initialized")
	}
	r.RegisterAll(map[string]Executor{
		GrepToolName: echoExecutor(t),
		GlobToolName: echoExecutor(t),
		"unknown":    echoExecutor(t),
	})
	if !r.Initialized() {
		t.Fatal("RegisterAll did not mark initialized")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != GlobToolName || names[1] != GrepToolName {
		t.Fatalf("names = %v", names)
	}
}

func TestRegistryApprovalTypeForUnknownIsNone(t *testing.T) {
	r := NewRegistry()
	if got := r.ApprovalTypeFor("mystery"); got != ApprovalNone {
		t.Fatalf("approval = %q, want none", got)
	}
	r.Register(ShellToolName, echoExecutor(t), false)
	if got := r.ApprovalTypeFor(ShellToolName); got != ApprovalAsk {
		t.Fatalf("approval = %q, want ask", got)
	}
}

func TestRegistryParallelSafe(t *testing.T) {
	r := NewRegistry()
	r.Register(GrepToolName, echoExecutor(t), false)
	r.Register(ShellToolName, echoExecutor(t), false)
	if !r.ParallelSafe(GrepToolName) {
		t.Fatal("grep should be parallel safe")
	}
	if r.ParallelSafe(ShellToolName) {
		t.Fatal("shell should not be parallel safe")
	}
	if r.ParallelSafe("mystery") {
		t.Fatal("unknown tools should not be parallel safe")
	}
}

func TestRegistryConcurrentExecuteAndToggle(t *testing.T) {
	r := NewRegistry()
	r.Register(GrepToolName, echoExecutor(t), false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res := r.Execute(context.Background(), GrepToolName, map[string]any{"pattern": "x"})
				// Either outcome is fine while another goroutine
				// toggles; it must just never panic or tear.
				if !res.Success && !strings.Contains(res.Error, "disabled") {
					t.Errorf("unexpected failure: %s", res.Error)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			r.SetEnabled(GrepToolName, j%2 == 0)
		}
	}()
	wg.Wait()
	r.SetEnabled(GrepToolName, true)
}

func TestRegistryExecuteCallBoundsOutput(t *testing.T) {
	r := NewRegistry()
	long := strings.Repeat("x", DefaultResultLimit)
	r.Register(GrepToolName, ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return long, nil
	}), false)

	res := r.ExecuteCall(context.Background(), toolCall(t, "c1", GrepToolName, `{"pattern": "x"}`))
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if len(res.Content) > resultLimits[GrepToolName] {
		t.Fatalf("content length %d exceeds grep limit %d", len(res.Content), resultLimits[GrepToolName])
	}
	if !strings.Contains(res.Content, "chars omitted]") {
		t.Fatal("bounded content missing omission marker")
	}
}

func TestRegistryExecuteCallRejectionMapping(t *testing.T) {
	r := NewRegistry()
	r.Register(ShellToolName, ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", NewToolError(ErrPermissionDenied, "command not allowed: rm -rf /")
	}), false)

	res := r.ExecuteCall(context.Background(), toolCall(t, "c2", ShellToolName, `{"command": "rm -rf /"}`))
	if !res.IsError || !res.Rejected {
		t.Fatalf("result = %+v, want rejected error", res)
	}
}

func TestRegistryExecuteWarnsUnknownParamsOnLooseSchema(t *testing.T) {
	r := NewRegistry()
	r.Define(&Definition{
		Name:     "mcp_demo_echo",
		Approval: ApprovalNone,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
		},
	})
	r.Register("mcp_demo_echo", ExecutorFunc(func(ctx context.Context, args json.RawMessage) (string, error) {
		return "done", nil
	}), false)

	res := r.Execute(context.Background(), "mcp_demo_echo", map[string]any{
		"message": "hi",
		"verbose": true,
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}
	if !strings.HasPrefix(res.Content, "Unknown parameter 'verbose' was ignored\n") {
		t.Fatalf("content = %q, want unknown-parameter warning prefix", res.Content)
	}
	if !strings.HasSuffix(res.Content, "done") {
		t.Fatalf("content = %q, want executor output preserved", res.Content)
	}

	res = r.Execute(context.Background(), "mcp_demo_echo", map[string]any{"message": "hi"})
	if res.Content != "done" {
		t.Fatalf("content = %q, want no warning for declared params", res.Content)
	}
}

func TestRegistryApprovalTypeForDefinedWithoutApproval(t *testing.T) {
	r := NewRegistry()
	r.Define(&Definition{
		Name:   "custom_stat_tool",
		Schema: map[string]any{"type": "object"},
	})
	r.Register("custom_stat_tool", echoExecutor(t), false)
	if got := r.ApprovalTypeFor("custom_stat_tool"); got != ApprovalNone {
		t.Fatalf("approval = %q, want none", got)
	}
}
