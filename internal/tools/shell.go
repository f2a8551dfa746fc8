package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultShellTimeout = 30 * time.Second
	maxShellTimeout     = 300 * time.Second
)

// ShellExecutor implements the shell tool.
type ShellExecutor struct {
	approval *ApprovalManager
}

// NewShellExecutor creates a new ShellExecutor.
func NewShellExecutor(approval *ApprovalManager) *ShellExecutor {
	return &ShellExecutor{approval: approval}
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

func (t *ShellExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Command == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckShellApproval(a.Command)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "command not allowed: %s", truncateCommand(a.Command))
		}
	}

	timeout := defaultShellTimeout
	if a.Timeout > 0 {
		timeout = time.Duration(a.Timeout) * time.Second
	}
	if timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}

	workDir := a.WorkingDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, detectShell(), "-c", a.Command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := ShellResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return formatShellResult(result), nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return "", NewToolErrorf(ErrExecutionFailed, "command error: %v", err)
		}
	}

	return formatShellResult(result), nil
}

// formatShellResult renders stdout, stderr, and exit status for the model.
func formatShellResult(result ShellResult) string {
	var sb strings.Builder

	if result.TimedOut {
		sb.WriteString("[Command timed out]\n\n")
	}
	if result.Stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(result.Stdout)
		if !strings.HasSuffix(result.Stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if result.Stderr != "" {
		if result.Stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(result.Stderr)
		if !strings.HasSuffix(result.Stderr, "\n") {
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nexit_code: %d", result.ExitCode)
	return sb.String()
}

// detectShell returns the user's shell, defaulting to bash.
func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "bash"
}

// truncateCommand shortens a command for error messages.
func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
