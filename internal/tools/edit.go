package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// EditFileExecutor implements the edit_file tool: deterministic string
// replacement with a uniqueness requirement.
type EditFileExecutor struct {
	approval *ApprovalManager
}

// NewEditFileExecutor creates a new EditFileExecutor.
func NewEditFileExecutor(approval *ApprovalManager) *EditFileExecutor {
	return &EditFileExecutor{approval: approval}
}

// EditFileArgs are the arguments for edit_file.
type EditFileArgs struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func (t *EditFileExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a EditFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}
	if a.OldString == "" {
		return "", NewToolError(ErrInvalidParams, "old_string is required")
	}
	if a.OldString == a.NewString {
		return "", NewToolError(ErrInvalidParams, "old_string and new_string are identical")
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(EditFileToolName, a.Path, true)
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

	// Serialize concurrent edits to the same file with a lock file. The
	// file itself cannot be locked because rename() replaces the inode and
	// holders of the old fd would not see the change.
	lockPath := absPath + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create lock file: %v", err)
	}
	defer func() {
		lockFile.Close()
		os.Remove(lockPath)
	}()
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to lock: %v", err)
	}
	defer syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}

	content := string(data)
	count := strings.Count(content, a.OldString)
	if count == 0 {
		return "", NewToolError(ErrExecutionFailed, "old_string not found in file")
	}
	if count > 1 && !a.ReplaceAll {
		return "", NewToolErrorf(ErrExecutionFailed, "old_string matches %d locations; add surrounding context to make it unique or set replace_all", count)
	}

	replacements := 1
	if a.ReplaceAll {
		replacements = count
	}
	newContent := strings.Replace(content, a.OldString, a.NewString, replacements)

	var mode os.FileMode = 0644
	if info, err := os.Stat(absPath); err == nil {
		mode = info.Mode()
	}
	if err := atomicWrite(absPath, []byte(newContent), false, mode); err != nil {
		return "", err
	}

	if replacements == 1 {
		return fmt.Sprintf("Edited %s (1 replacement).", absPath), nil
	}
	return fmt.Sprintf("Edited %s (%d replacements).", absPath, replacements), nil
}
