package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// maxReadLines caps a single read before pagination is required.
const maxReadLines = 2000

// ReadFileExecutor implements the read_file tool.
type ReadFileExecutor struct {
	approval *ApprovalManager
}

// NewReadFileExecutor creates a new ReadFileExecutor.
func NewReadFileExecutor(approval *ApprovalManager) *ReadFileExecutor {
	return &ReadFileExecutor{approval: approval}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadFileExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(ReadFileToolName, a.Path, false)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "access denied: %s", a.Path)
		}
	}

	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}

	if isBinaryContent(data) {
		return "", NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= totalLines {
		return "", NewToolErrorf(ErrInvalidParams, "start_line %d exceeds file length %d", a.StartLine, totalLines)
	}
	end := totalLines
	if a.EndLine > 0 && a.EndLine < totalLines {
		end = a.EndLine
	}
	if start >= end {
		return "No content in requested range.", nil
	}

	selected := lines[start:end]
	truncated := false
	if len(selected) > maxReadLines {
		selected = selected[:maxReadLines]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range selected {
		fmt.Fprintf(&sb, "%d: %s\n", start+i+1, line)
	}
	output := strings.TrimSuffix(sb.String(), "\n")

	if truncated {
		output += fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use start_line/end_line for pagination.]", totalLines)
	}
	return output, nil
}

// isBinaryContent detects binary data using http.DetectContentType plus a
// null-byte check.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}

	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
