package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func execShell(t *testing.T, args string) (string, error) {
	t.Helper()
	tool := NewShellExecutor(nil)
	return tool.Execute(context.Background(), json.RawMessage(args))
}

func TestShellCapturesStdoutAndExitCode(t *testing.T) {
	out, err := execShell(t, `{"command":"echo hello"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "stdout:\nhello") {
		t.Errorf("missing stdout section: %q", out)
	}
	if !strings.Contains(out, "exit_code: 0") {
		t.Errorf("missing exit code: %q", out)
	}
}

func TestShellNonZeroExitIsNotAnError(t *testing.T) {
	out, err := execShell(t, `{"command":"exit 3"}`)
	if err != nil {
		t.Fatalf("non-zero exit should not be a tool error: %v", err)
	}
	if !strings.Contains(out, "exit_code: 3") {
		t.Errorf("output = %q", out)
	}
}

func TestShellStderrCaptured(t *testing.T) {
	out, err := execShell(t, `{"command":"echo oops >&2"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "stderr:\noops") {
		t.Errorf("missing stderr section: %q", out)
	}
}

func TestShellTimeout(t *testing.T) {
	out, err := execShell(t, `{"command":"sleep 5","timeout":1}`)
	if err != nil {
		t.Fatalf("timeout should come back as output, not error: %v", err)
	}
	if !strings.Contains(out, "[Command timed out]") {
		t.Errorf("output = %q", out)
	}
}

func TestShellRequiresCommand(t *testing.T) {
	_, err := execShell(t, `{}`)
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Errorf("err = %v", err)
	}
}

func TestShellWorkingDir(t *testing.T) {
	dir := t.TempDir()
	args, _ := json.Marshal(ShellArgs{Command: "pwd", WorkingDir: dir})
	out, err := execShell(t, string(args))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("expected pwd output to contain %q: %q", dir, out)
	}
}

func TestShellDeniedByApproval(t *testing.T) {
	approval := NewApprovalManager(nil)
	approval.Confirm = func(req ConfirmRequest) (ConfirmOutcome, error) {
		return Cancel, nil
	}
	tool := NewShellExecutor(approval)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo nope"}`))
	if err == nil || !strings.Contains(err.Error(), string(ErrPermissionDenied)) {
		t.Errorf("err = %v, want permission denied", err)
	}
}

func TestShellAllowedByPattern(t *testing.T) {
	perms := NewPermissions()
	if err := perms.AddShellPattern("echo *"); err != nil {
		t.Fatal(err)
	}
	approval := NewApprovalManager(perms)
	// No Confirm set: anything not allowlisted would be denied.
	tool := NewShellExecutor(approval)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo allowed"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "allowed") {
		t.Errorf("output = %q", out)
	}
}
