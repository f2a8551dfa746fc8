package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const maxGlobResults = 200

// GlobExecutor implements the glob tool.
type GlobExecutor struct {
	approval *ApprovalManager
}

// NewGlobExecutor creates a new GlobExecutor.
func NewGlobExecutor(approval *ApprovalManager) *GlobExecutor {
	return &GlobExecutor{approval: approval}
}

// GlobArgs are the arguments for glob.
type GlobArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// FileEntry represents a file in glob results.
type FileEntry struct {
	Path      string
	IsDir     bool
	SizeBytes int64
	ModTime   time.Time
}

func (t *GlobExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a GlobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}

	basePath := a.Path
	if basePath == "" {
		var err error
		basePath, err = os.Getwd()
		if err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)
		}
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(GlobToolName, basePath, false)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "access denied: %s", basePath)
		}
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "cannot resolve path: %v", err)
	}

	var entries []FileEntry
	err = filepath.WalkDir(absBase, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != absBase {
			return filepath.SkipDir
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(absBase, path)
		if err != nil {
			return nil
		}
		matched, err := doublestar.Match(a.Pattern, relPath)
		if err != nil || !matched {
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
		if len(entries) >= maxGlobResults {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return "", NewToolErrorf(ErrExecutionFailed, "walk error: %v", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})

	if len(entries) == 0 {
		return "No files matched the pattern.", nil
	}
	return formatFileEntries(entries, len(entries) >= maxGlobResults, maxGlobResults), nil
}

// formatFileEntries renders entries with type, size, and mtime columns.
func formatFileEntries(entries []FileEntry, truncated bool, limit int) string {
	var sb strings.Builder
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Fprintf(&sb, "[%s] %s  %s  %s\n", kind, formatSize(e.SizeBytes), e.ModTime.Format("2006-01-02 15:04"), e.Path)
	}
	if truncated {
		fmt.Fprintf(&sb, "\n[Results truncated at %d files]", limit)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// formatSize formats a byte count as human-readable.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%4dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%4.0f%c", float64(bytes)/float64(div), "KMGTPE"[exp])
}
