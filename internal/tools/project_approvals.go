package tools

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectApprovals stores per-repository approval decisions, persisted to
// ~/.config/stitch/projects/<repo-id>.yaml so "always and save" answers
// survive across sessions.
type ProjectApprovals struct {
	RepoRoot      string    `yaml:"repo_root"`
	RepoName      string    `yaml:"repo_name"`
	UpdatedAt     time.Time `yaml:"updated_at"`
	ReadApproved  bool      `yaml:"read_approved"`  // Whole-repo read access
	WriteApproved bool      `yaml:"write_approved"` // Whole-repo write access
	ApprovedPaths []string  `yaml:"approved_paths"` // Paths relative to repo root
	ShellPatterns []string  `yaml:"shell_patterns"` // Approved command patterns

	filePath string     `yaml:"-"`
	mu       sync.Mutex `yaml:"-"`
}

func projectsDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "stitch", "projects"), nil
}

// LoadProjectApprovals loads or creates approval data for a repository.
// A corrupted file starts fresh rather than failing.
func LoadProjectApprovals(repoRoot string) (*ProjectApprovals, error) {
	if repoRoot == "" {
		return nil, nil
	}

	dir, err := projectsDir()
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(dir, GetGitRepoID(repoRoot)+".yaml")

	fresh := func() *ProjectApprovals {
		return &ProjectApprovals{
			RepoRoot:      repoRoot,
			RepoName:      filepath.Base(repoRoot),
			ApprovedPaths: []string{},
			ShellPatterns: []string{},
			filePath:      filePath,
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh(), nil
		}
		return nil, err
	}

	pa := fresh()
	if err := yaml.Unmarshal(data, pa); err != nil {
		return fresh(), nil
	}
	pa.filePath = filePath
	if pa.ApprovedPaths == nil {
		pa.ApprovedPaths = []string{}
	}
	if pa.ShellPatterns == nil {
		pa.ShellPatterns = []string{}
	}
	return pa, nil
}

// Save persists the approval data. Must be called without holding mu.
func (p *ProjectApprovals) Save() error {
	if p == nil || p.filePath == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.UpdatedAt = time.Now()
	if err := os.MkdirAll(filepath.Dir(p.filePath), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(p.filePath, data, 0600)
}

// IsPathApproved checks whether an absolute path is covered by a whole-repo
// approval or a previously approved path.
func (p *ProjectApprovals) IsPathApproved(path string, isWrite bool) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if isWrite && p.WriteApproved {
		return true
	}
	if !isWrite && p.ReadApproved {
		return true
	}

	rel := GetRelativePath(path, p.RepoRoot)
	for _, approved := range p.ApprovedPaths {
		if rel == approved || strings.HasPrefix(rel, approved+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ApprovePath persists an approval for a path (stored relative to the repo
// root).
func (p *ProjectApprovals) ApprovePath(path string) error {
	if p == nil {
		return nil
	}
	rel := GetRelativePath(path, p.RepoRoot)

	p.mu.Lock()
	for _, existing := range p.ApprovedPaths {
		if existing == rel {
			p.mu.Unlock()
			return nil
		}
	}
	p.ApprovedPaths = append(p.ApprovedPaths, rel)
	p.mu.Unlock()

	return p.Save()
}

// IsShellPatternApproved checks a command against persisted patterns.
func (p *ProjectApprovals) IsShellPatternApproved(command string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pattern := range p.ShellPatterns {
		if matchPattern(pattern, command) {
			return true
		}
	}
	return false
}

// ApproveShellPattern persists a shell command pattern.
func (p *ProjectApprovals) ApproveShellPattern(pattern string) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	for _, existing := range p.ShellPatterns {
		if existing == pattern {
			p.mu.Unlock()
			return nil
		}
	}
	p.ShellPatterns = append(p.ShellPatterns, pattern)
	p.mu.Unlock()

	return p.Save()
}

// GenerateShellPattern widens a command into an approval pattern, keeping
// subcommands for common build tools: "go test ./..." becomes "go test *".
func GenerateShellPattern(command string) string {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return command
	}
	if len(parts) == 1 {
		return parts[0]
	}
	switch parts[0] {
	case "go", "npm", "yarn", "pnpm", "cargo", "make", "git":
		return parts[0] + " " + parts[1] + " *"
	case "python", "python3", "node", "ruby", "perl":
		return parts[0] + " *"
	}
	return parts[0] + " *"
}
