package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRepoInfo identifies the repository containing a path, if any.
type GitRepoInfo struct {
	IsRepo bool
	Root   string
}

// DetectGitRepo locates the repository root for a path. The path may be a
// file or a file that does not exist yet; detection runs from the nearest
// existing directory. Returns IsRepo=false outside a repo or when git is
// unavailable.
func DetectGitRepo(path string) GitRepoInfo {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return GitRepoInfo{}
	}

	workDir := absPath
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		workDir = filepath.Dir(absPath)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return GitRepoInfo{}
	}

	root := strings.TrimSpace(string(output))
	if root == "" {
		return GitRepoInfo{}
	}
	return GitRepoInfo{IsRepo: true, Root: root}
}

// GetGitRepoID returns a stable identifier for a repository root, suitable
// for use as a filename.
func GetGitRepoID(root string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	sum := sha256.Sum256([]byte(absRoot))
	return hex.EncodeToString(sum[:16])
}

// GetRelativePath returns path relative to the repo root, or the path
// unchanged when it cannot be made relative.
func GetRelativePath(path, repoRoot string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return path
	}
	return rel
}
