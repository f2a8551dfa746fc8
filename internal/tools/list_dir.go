package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultListDirLimit = 200

// ListDirExecutor implements the list_dir tool.
type ListDirExecutor struct {
	approval *ApprovalManager
}

// NewListDirExecutor creates a new ListDirExecutor.
func NewListDirExecutor(approval *ApprovalManager) *ListDirExecutor {
	return &ListDirExecutor{approval: approval}
}

// ListDirArgs are the arguments for list_dir.
type ListDirArgs struct {
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

func (t *ListDirExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ListDirArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	dir := a.Path
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)
		}
	}

	limit := a.Limit
	if limit <= 0 {
		limit = defaultListDirLimit
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(ListDirToolName, dir, false)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "access denied: %s", dir)
		}
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, dir)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat error: %v", err)
	}
	if !info.IsDir() {
		return "", NewToolErrorf(ErrInvalidParams, "%s is not a directory", dir)
	}

	var entries []FileEntry
	if a.Recursive {
		entries, err = walkEntries(ctx, absDir, limit)
	} else {
		entries, err = readEntries(absDir, limit)
	}
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "list error: %v", err)
	}

	if len(entries) == 0 {
		return "Directory is empty.", nil
	}
	return formatFileEntries(entries, len(entries) >= limit, limit), nil
}

func readEntries(dir string, limit int) ([]FileEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(dirEntries, func(i, j int) bool {
		if dirEntries[i].IsDir() != dirEntries[j].IsDir() {
			return dirEntries[i].IsDir()
		}
		return dirEntries[i].Name() < dirEntries[j].Name()
	})

	var entries []FileEntry
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, FileEntry{
			Path:      filepath.Join(dir, de.Name()),
			IsDir:     de.IsDir(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func walkEntries(ctx context.Context, dir string, limit int) ([]FileEntry, error) {
	var entries []FileEntry
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, FileEntry{
			Path:      path,
			IsDir:     d.IsDir(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
		if len(entries) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	return entries, nil
}
