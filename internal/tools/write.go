package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileExecutor implements the write_file tool.
type WriteFileExecutor struct {
	approval *ApprovalManager
}

// NewWriteFileExecutor creates a new WriteFileExecutor.
func NewWriteFileExecutor(approval *ApprovalManager) *WriteFileExecutor {
	return &WriteFileExecutor{approval: approval}
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(WriteFileToolName, a.Path, true)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "access denied: %s", a.Path)
		}
	}

	absPath, err := filepath.Abs(a.Path)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)
	}

	existingContent := ""
	isNew := true
	var existingMode os.FileMode
	if info, err := os.Stat(absPath); err == nil {
		existingMode = info.Mode()
		if data, err := os.ReadFile(absPath); err == nil {
			existingContent = string(data)
			isNew = false
		}
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}

	if err := atomicWrite(absPath, []byte(a.Content), isNew, existingMode); err != nil {
		return "", err
	}

	if isNew {
		return fmt.Sprintf("Created new file: %s (%d lines).", absPath, countLines(a.Content)), nil
	}
	return fmt.Sprintf("Updated %s: %d lines -> %d lines.", absPath, countLines(existingContent), countLines(a.Content)), nil
}

// atomicWrite writes content to a unique temp file and renames it into
// place. CreateTemp avoids collisions when concurrent calls target the
// same destination.
func atomicWrite(absPath string, content []byte, isNew bool, existingMode os.FileMode) error {
	dir := filepath.Dir(absPath)
	base := filepath.Base(absPath)
	tf, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to create temp file: %v", err)
	}
	tempPath := tf.Name()

	cleanup := func(stage string, cause error) error {
		tf.Close()
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to %s temp file: %v", stage, cause)
	}

	if _, err := tf.Write(content); err != nil {
		return cleanup("write", err)
	}
	if err := tf.Sync(); err != nil {
		return cleanup("sync", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to close temp file: %v", err)
	}

	// CreateTemp uses 0600, too restrictive for source files. Preserve the
	// old mode, or 0644 for new files.
	mode := existingMode
	if isNew {
		mode = 0644
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to set file permissions: %v", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to rename temp file: %v", err)
	}
	return nil
}

// countLines counts lines, treating a missing trailing newline as a line.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}
