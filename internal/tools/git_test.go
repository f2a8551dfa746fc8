package tools

import (
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init: %v: %s", err, out)
	}
	// Resolve symlinks so paths compare equal to git's output on macOS.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return dir
	}
	return resolved
}

func TestDetectGitRepo(t *testing.T) {
	root := initRepo(t)

	info := DetectGitRepo(root)
	if !info.IsRepo {
		t.Fatal("expected IsRepo inside a fresh repo")
	}
	if info.Root != root {
		t.Errorf("Root = %q, want %q", info.Root, root)
	}

	// A file path that does not exist yet resolves from its directory.
	info = DetectGitRepo(filepath.Join(root, "file.go"))
	if !info.IsRepo || info.Root != root {
		t.Errorf("file-path detection = %+v, want root %q", info, root)
	}
}

func TestDetectGitRepoOutside(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	info := DetectGitRepo(dir)
	if info.IsRepo {
		t.Errorf("unexpected repo in bare temp dir: %+v", info)
	}
}

func TestGetGitRepoIDStable(t *testing.T) {
	a := GetGitRepoID("/some/repo")
	b := GetGitRepoID("/some/repo")
	if a != b {
		t.Errorf("id not stable: %q vs %q", a, b)
	}
	if a == GetGitRepoID("/other/repo") {
		t.Error("distinct roots collided")
	}
	if len(a) != 32 {
		t.Errorf("id length = %d", len(a))
	}
}

func TestGetRelativePath(t *testing.T) {
	rel := GetRelativePath("/repo/sub/file.go", "/repo")
	if rel != filepath.Join("sub", "file.go") {
		t.Errorf("rel = %q", rel)
	}
	// Unrelatable input comes back unchanged.
	if got := GetRelativePath("file.go", ""); got == "" {
		t.Errorf("empty result for degenerate input")
	}
}
