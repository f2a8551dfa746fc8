package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const defaultGrepResults = 100

// GrepExecutor implements the grep tool. It shells out to ripgrep when
// available and falls back to a pure Go walk otherwise.
type GrepExecutor struct {
	approval *ApprovalManager
}

// NewGrepExecutor creates a new GrepExecutor.
func NewGrepExecutor(approval *ApprovalManager) *GrepExecutor {
	return &GrepExecutor{approval: approval}
}

// GrepArgs are the arguments for grep.
type GrepArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	Include    string `json:"include,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// GrepMatch represents a single match with surrounding context.
type GrepMatch struct {
	FilePath   string
	LineNumber int
	Match      string
	Context    string
}

func (t *GrepExecutor) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a GrepArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}

	searchPath := a.Path
	if searchPath == "" {
		var err error
		searchPath, err = os.Getwd()
		if err != nil {
			return "", NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err)
		}
	}

	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = defaultGrepResults
	}

	if t.approval != nil {
		outcome, err := t.approval.CheckPathApproval(GrepToolName, searchPath, false)
		if err != nil {
			return "", err
		}
		if outcome == Cancel {
			return "", NewToolErrorf(ErrPermissionDenied, "access denied: %s", searchPath)
		}
	}

	if ripgrepAvailable() {
		matches, err := runRipgrep(ctx, a.Pattern, searchPath, a.Include, maxResults)
		if err == nil {
			return renderGrepMatches(matches, maxResults), nil
		}
		if ctx.Err() != nil {
			return "grep timed out after 1 minute; try a more specific pattern or path", nil
		}
		// Fall through to the Go implementation on ripgrep failure.
	}

	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid regex pattern: %v", err)
	}

	files, err := collectFiles(searchPath, a.Include)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to collect files: %v", err)
	}
	sortFilesByMtime(files)

	var matches []GrepMatch
	for _, file := range files {
		if ctx.Err() != nil {
			return "grep timed out after 1 minute; try a more specific pattern or path", nil
		}
		if len(matches) >= maxResults {
			break
		}
		fileMatches, err := searchFile(file, re, maxResults-len(matches))
		if err != nil {
			continue
		}
		matches = append(matches, fileMatches...)
	}

	return renderGrepMatches(matches, maxResults), nil
}

func renderGrepMatches(matches []GrepMatch, maxResults int) string {
	if len(matches) == 0 {
		return "No matches found."
	}
	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d\n%s\n\n", m.FilePath, m.LineNumber, m.Context)
	}
	out := strings.TrimSuffix(sb.String(), "\n\n")
	if len(matches) >= maxResults {
		out += fmt.Sprintf("\n\n[Results truncated at %d matches]", maxResults)
	}
	return out
}

// ripgrepAvailable checks if ripgrep (rg) is on PATH.
func ripgrepAvailable() bool {
	_, err := exec.LookPath("rg")
	return err == nil
}

// rgMessage is one line of ripgrep's JSON output.
type rgMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type rgLineData struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	LineNumber int `json:"line_number"`
}

// runRipgrep executes rg with JSON output and parses matches with context.
func runRipgrep(ctx context.Context, pattern, searchPath, include string, maxResults int) ([]GrepMatch, error) {
	args := []string{
		"--json",
		"--max-count", strconv.Itoa(maxResults),
		"--context", "3",
		"--hidden",
		"--glob", "!.git",
	}
	if include != "" {
		args = append(args, "--glob", include)
	}
	args = append(args, pattern, searchPath)

	cmd := exec.CommandContext(ctx, "rg", args...)
	output, err := cmd.Output()
	if err != nil {
		// Exit code 1 means no matches, not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return parseRipgrepOutput(output, maxResults), nil
}

// pendingMatch accumulates context lines around one match.
type pendingMatch struct {
	filePath   string
	lineNumber int
	matchLine  string
	before     []string
	after      []string
}

func parseRipgrepOutput(output []byte, maxResults int) []GrepMatch {
	var matches []GrepMatch
	var pending *pendingMatch

	flush := func() {
		if pending != nil {
			matches = append(matches, buildMatchFromPending(pending))
			pending = nil
		}
	}

	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "match":
			flush()
			if len(matches) >= maxResults {
				return matches
			}
			var data rgLineData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				continue
			}
			pending = &pendingMatch{
				filePath:   data.Path.Text,
				lineNumber: data.LineNumber,
				matchLine:  strings.TrimSuffix(data.Lines.Text, "\n"),
			}
		case "context":
			if pending == nil {
				continue
			}
			var data rgLineData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				continue
			}
			text := strings.TrimSuffix(data.Lines.Text, "\n")
			if data.LineNumber < pending.lineNumber {
				pending.before = append(pending.before, text)
			} else {
				pending.after = append(pending.after, text)
			}
		}
	}
	flush()
	return matches
}

func buildMatchFromPending(p *pendingMatch) GrepMatch {
	var sb strings.Builder
	startLine := p.lineNumber - len(p.before)
	for i, line := range p.before {
		fmt.Fprintf(&sb, "  %d: %s\n", startLine+i, line)
	}
	fmt.Fprintf(&sb, "> %d: %s\n", p.lineNumber, p.matchLine)
	for i, line := range p.after {
		fmt.Fprintf(&sb, "  %d: %s\n", p.lineNumber+1+i, line)
	}
	return GrepMatch{
		FilePath:   p.filePath,
		LineNumber: p.lineNumber,
		Match:      p.matchLine,
		Context:    strings.TrimSuffix(sb.String(), "\n"),
	}
}

// collectFiles gathers files to search, honoring the include filter.
func collectFiles(searchPath, include string) ([]string, error) {
	info, err := os.Stat(searchPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{searchPath}, nil
	}

	var files []string
	err = filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		if include != "" {
			match, err := doublestar.Match(include, d.Name())
			if err != nil || !match {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// sortFilesByMtime sorts files newest first so fresh code surfaces early.
func sortFilesByMtime(files []string) {
	type fileInfo struct {
		path  string
		mtime int64
	}
	infos := make([]fileInfo, 0, len(files))
	for _, f := range files {
		var mtime int64
		if info, err := os.Stat(f); err == nil {
			mtime = info.ModTime().Unix()
		}
		infos = append(infos, fileInfo{path: f, mtime: mtime})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mtime > infos[j].mtime })
	for i, info := range infos {
		files[i] = info.path
	}
}

// searchFile scans one file line by line, skipping binaries.
func searchFile(path string, re *regexp.Regexp, maxMatches int) ([]GrepMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	contentType := http.DetectContentType(buf[:n])
	if !strings.HasPrefix(contentType, "text/") &&
		!strings.Contains(contentType, "json") &&
		!strings.Contains(contentType, "xml") {
		return nil, fmt.Errorf("binary file")
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []GrepMatch
	for lineNum, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, GrepMatch{
			FilePath:   path,
			LineNumber: lineNum + 1,
			Match:      line,
			Context:    buildContext(lines, lineNum, 3),
		})
		if len(matches) >= maxMatches {
			break
		}
	}
	return matches, nil
}

// buildContext renders a match line with n lines of context on each side.
func buildContext(lines []string, matchIdx, n int) string {
	start := matchIdx - n
	if start < 0 {
		start = 0
	}
	end := matchIdx + n + 1
	if end > len(lines) {
		end = len(lines)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if i == matchIdx {
			prefix = "> "
		}
		fmt.Fprintf(&sb, "%s%d: %s\n", prefix, i+1, lines[i])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
