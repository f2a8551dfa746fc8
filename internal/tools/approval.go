package tools

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DirCache holds session-scoped directory approvals. Approving a directory
// is tool-agnostic: any tool may then touch files under it for the rest of
// the session.
type DirCache struct {
	mu   sync.RWMutex
	dirs map[string]ConfirmOutcome
}

// NewDirCache creates a new DirCache.
func NewDirCache() *DirCache {
	return &DirCache{dirs: make(map[string]ConfirmOutcome)}
}

// Set stores a directory approval.
func (c *DirCache) Set(dir string, outcome ConfirmOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[dir] = outcome
}

// Contains checks if a path is within any approved directory.
func (c *DirCache) Contains(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for dir, outcome := range c.dirs {
		if outcome != ProceedAlways && outcome != ProceedAlwaysAndSave {
			continue
		}
		if absPath == dir || strings.HasPrefix(absPath, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ShellApprovalCache holds shell command patterns approved this session.
type ShellApprovalCache struct {
	mu       sync.RWMutex
	patterns []string
}

// NewShellApprovalCache creates a new ShellApprovalCache.
func NewShellApprovalCache() *ShellApprovalCache {
	return &ShellApprovalCache{}
}

// AddPattern adds a pattern to the session cache.
func (c *ShellApprovalCache) AddPattern(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.patterns {
		if p == pattern {
			return
		}
	}
	c.patterns = append(c.patterns, pattern)
}

// Patterns returns all session-approved patterns.
func (c *ShellApprovalCache) Patterns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.patterns))
	copy(out, c.patterns)
	return out
}

// ConfirmRequest describes a pending approval decision for display.
type ConfirmRequest struct {
	ToolName string
	Path     string // file tools: directory being approved
	Command  string // shell tool: the command
	IsWrite  bool
}

// ConfirmFunc prompts the user and returns their decision. The CLI installs
// a terminal prompt; tests install fakes. A nil ConfirmFunc denies anything
// not already allowlisted.
type ConfirmFunc func(req ConfirmRequest) (ConfirmOutcome, error)

// ApprovalManager coordinates approval checks and caching. Decision order
// for paths: yolo mode, configured allowlists, session directory cache,
// persisted project approvals, then a prompt. Shell commands follow the
// same ladder against command patterns.
type ApprovalManager struct {
	dirCache    *DirCache
	shellCache  *ShellApprovalCache
	permissions *Permissions

	projectMu    sync.Mutex
	projectCache map[string]*ProjectApprovals

	// promptMu serializes interactive prompts. Parallel tool execution can
	// ask for approval simultaneously; only one prompt may be live.
	promptMu sync.Mutex

	// YoloMode auto-approves everything without prompting. Intended for
	// CI/container runs where no interactive approval is possible.
	YoloMode bool

	// Confirm is invoked when no cached or configured decision applies.
	Confirm ConfirmFunc
}

// NewApprovalManager creates an ApprovalManager over a permission set.
func NewApprovalManager(perms *Permissions) *ApprovalManager {
	if perms == nil {
		perms = NewPermissions()
	}
	return &ApprovalManager{
		dirCache:     NewDirCache(),
		shellCache:   NewShellApprovalCache(),
		permissions:  perms,
		projectCache: make(map[string]*ProjectApprovals),
	}
}

// Permissions returns the underlying allowlists.
func (m *ApprovalManager) Permissions() *Permissions {
	return m.permissions
}

// ApproveDirectory records a session-scoped directory approval.
func (m *ApprovalManager) ApproveDirectory(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	m.dirCache.Set(dir, ProceedAlways)
}

func (m *ApprovalManager) projectApprovals(path string) *ProjectApprovals {
	repo := DetectGitRepo(path)
	if !repo.IsRepo {
		return nil
	}
	m.projectMu.Lock()
	defer m.projectMu.Unlock()
	if pa, ok := m.projectCache[repo.Root]; ok {
		return pa
	}
	pa, err := LoadProjectApprovals(repo.Root)
	if err != nil {
		return nil
	}
	m.projectCache[repo.Root] = pa
	return pa
}

// checkPathNoPrompt runs the non-interactive checks. The bool reports
// whether a decision was reached; false means a prompt is still required.
func (m *ApprovalManager) checkPathNoPrompt(absPath string, isWrite bool) (ConfirmOutcome, bool, error) {
	var allowed bool
	var err error
	if isWrite {
		allowed, err = m.permissions.IsPathAllowedForWrite(absPath)
	} else {
		allowed, err = m.permissions.IsPathAllowedForRead(absPath)
	}
	if err != nil {
		return Cancel, true, err
	}
	if allowed {
		return ProceedOnce, true, nil
	}

	if m.dirCache.Contains(absPath) {
		return ProceedAlways, true, nil
	}

	if pa := m.projectApprovals(absPath); pa != nil && pa.IsPathApproved(absPath, isWrite) {
		return ProceedAlways, true, nil
	}

	return Cancel, false, nil
}

// CheckPathApproval decides whether a tool may access a path. Approvals are
// directory-scoped: approving one file's directory covers its siblings.
func (m *ApprovalManager) CheckPathApproval(toolName, path string, isWrite bool) (ConfirmOutcome, error) {
	if m.YoloMode {
		return ProceedOnce, nil
	}

	absPath := path
	if resolved, err := filepath.Abs(path); err == nil {
		absPath = resolved
	}

	outcome, decided, err := m.checkPathNoPrompt(absPath, isWrite)
	if err != nil {
		return Cancel, err
	}
	if decided {
		return outcome, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	// Another goroutine may have approved the same directory while this
	// one waited for the prompt lock.
	outcome, decided, err = m.checkPathNoPrompt(absPath, isWrite)
	if err != nil {
		return Cancel, err
	}
	if decided {
		return outcome, nil
	}

	if m.Confirm == nil {
		return Cancel, NewToolError(ErrPermissionDenied, "path not in allowlist and no prompt available")
	}

	dir := directoryForApproval(absPath)
	outcome, err = m.Confirm(ConfirmRequest{ToolName: toolName, Path: dir, IsWrite: isWrite})
	if err != nil {
		return Cancel, err
	}

	switch outcome {
	case ProceedAlways:
		m.dirCache.Set(dir, ProceedAlways)
	case ProceedAlwaysAndSave:
		m.dirCache.Set(dir, ProceedAlways)
		if pa := m.projectApprovals(absPath); pa != nil {
			_ = pa.ApprovePath(dir)
		}
	}
	return outcome, nil
}

// checkShellNoPrompt runs the non-interactive shell checks.
func (m *ApprovalManager) checkShellNoPrompt(command string) (ConfirmOutcome, bool) {
	if m.permissions.IsShellCommandAllowed(command) {
		return ProceedOnce, true
	}
	for _, pattern := range m.shellCache.Patterns() {
		if matchPattern(pattern, command) {
			return ProceedAlways, true
		}
	}
	cwd, _ := os.Getwd()
	if pa := m.projectApprovals(cwd); pa != nil && pa.IsShellPatternApproved(command) {
		return ProceedAlways, true
	}
	return Cancel, false
}

// CheckShellApproval decides whether a shell command may run.
func (m *ApprovalManager) CheckShellApproval(command string) (ConfirmOutcome, error) {
	if m.YoloMode {
		return ProceedOnce, nil
	}

	if outcome, decided := m.checkShellNoPrompt(command); decided {
		return outcome, nil
	}

	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	if outcome, decided := m.checkShellNoPrompt(command); decided {
		return outcome, nil
	}

	if m.Confirm == nil {
		return Cancel, NewToolError(ErrPermissionDenied, "command not in allowlist and no prompt available")
	}

	outcome, err := m.Confirm(ConfirmRequest{ToolName: ShellToolName, Command: command})
	if err != nil {
		return Cancel, err
	}

	switch outcome {
	case ProceedAlways:
		m.shellCache.AddPattern(GenerateShellPattern(command))
	case ProceedAlwaysAndSave:
		pattern := GenerateShellPattern(command)
		m.shellCache.AddPattern(pattern)
		cwd, _ := os.Getwd()
		if pa := m.projectApprovals(cwd); pa != nil {
			_ = pa.ApproveShellPattern(pattern)
		}
	}
	return outcome, nil
}

// directoryForApproval picks the directory a path approval should cover.
func directoryForApproval(absPath string) string {
	if info, err := os.Stat(absPath); err == nil && info.IsDir() {
		return absPath
	}
	return filepath.Dir(absPath)
}

// matchPattern checks if a command matches a session/project pattern.
// These are simple trailing-wildcard patterns like "git *"; configured
// allowlist patterns go through full glob matching in Permissions.
func matchPattern(pattern, command string) bool {
	if len(pattern) == 0 {
		return false
	}
	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(command, prefix)
	}
	return pattern == command
}
