package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Permissions holds the pre-approved allowlists: directories readable or
// writable without prompting, and shell command patterns that run without
// confirmation. Populated from config at startup, extendable at runtime.
type Permissions struct {
	mu             sync.RWMutex
	readDirs       []string
	writeDirs      []string
	shellPatterns  []compiledPattern
	scriptCommands map[string]bool
}

type compiledPattern struct {
	source  string
	matcher glob.Glob
}

// NewPermissions creates an empty permission set.
func NewPermissions() *Permissions {
	return &Permissions{
		scriptCommands: make(map[string]bool),
	}
}

// AddReadDir adds a directory to the read allowlist. Write access implies
// read access, so write dirs need not be added here too.
func (p *Permissions) AddReadDir(dir string) error {
	abs, err := normalizeDir(dir)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readDirs = appendUnique(p.readDirs, abs)
	return nil
}

// AddWriteDir adds a directory to the write allowlist.
func (p *Permissions) AddWriteDir(dir string) error {
	abs, err := normalizeDir(dir)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeDirs = appendUnique(p.writeDirs, abs)
	return nil
}

// AddShellPattern compiles and adds a shell command pattern, e.g. "git *".
func (p *Permissions) AddShellPattern(pattern string) error {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid shell pattern %q: %w", pattern, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.shellPatterns {
		if existing.source == pattern {
			return nil
		}
	}
	p.shellPatterns = append(p.shellPatterns, compiledPattern{source: pattern, matcher: matcher})
	return nil
}

// AddScriptCommand adds an exact command string that is always allowed.
func (p *Permissions) AddScriptCommand(command string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scriptCommands[command] = true
}

// IsPathAllowedForRead reports whether path falls under a read or write
// allowlisted directory.
func (p *Permissions) IsPathAllowedForRead(path string) (bool, error) {
	abs, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pathUnderAny(abs, p.readDirs) || pathUnderAny(abs, p.writeDirs), nil
}

// IsPathAllowedForWrite reports whether path falls under a write
// allowlisted directory.
func (p *Permissions) IsPathAllowedForWrite(path string) (bool, error) {
	abs, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return pathUnderAny(abs, p.writeDirs), nil
}

// IsShellCommandAllowed reports whether a command matches any allowlisted
// pattern or exact script command.
func (p *Permissions) IsShellCommandAllowed(command string) bool {
	command = strings.TrimSpace(command)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.scriptCommands[command] {
		return true
	}
	for _, pat := range p.shellPatterns {
		if pat.matcher.Match(command) {
			return true
		}
	}
	return false
}

// ShellPatterns returns the sources of all compiled patterns.
func (p *Permissions) ShellPatterns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.shellPatterns))
	for i, pat := range p.shellPatterns {
		out[i] = pat.source
	}
	return out
}

func normalizeDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	// Resolve symlinks so later prefix checks cannot be escaped through a
	// link inside an allowlisted tree. Missing dirs are kept as-is.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return abs, nil
}

func normalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	// The file itself may not exist yet (write_file); resolve the deepest
	// existing ancestor instead.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Dir(abs), filepath.Base(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base), nil
	}
	return abs, nil
}

func pathUnderAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
