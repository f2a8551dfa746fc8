package tools

import (
	"os"
	"path/filepath"
	"testing"
)

// withConfigDir points XDG_CONFIG_HOME at a temp dir so tests never touch
// the user's real approvals.
func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

func TestProjectApprovalsRoundTrip(t *testing.T) {
	configDir := withConfigDir(t)
	repo := t.TempDir()

	pa, err := LoadProjectApprovals(repo)
	if err != nil {
		t.Fatalf("LoadProjectApprovals: %v", err)
	}
	if pa.IsPathApproved(filepath.Join(repo, "src", "main.go"), false) {
		t.Fatal("fresh approvals should approve nothing")
	}

	if err := pa.ApprovePath(filepath.Join(repo, "src")); err != nil {
		t.Fatalf("ApprovePath: %v", err)
	}
	if err := pa.ApproveShellPattern("go test *"); err != nil {
		t.Fatalf("ApproveShellPattern: %v", err)
	}

	// Reload from disk and verify persistence.
	reloaded, err := LoadProjectApprovals(repo)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.IsPathApproved(filepath.Join(repo, "src", "main.go"), false) {
		t.Error("approved path lost on reload")
	}
	if reloaded.IsPathApproved(filepath.Join(repo, "other", "x.go"), false) {
		t.Error("unapproved sibling path approved")
	}
	if !reloaded.IsShellPatternApproved("go test ./internal/...") {
		t.Error("shell pattern lost on reload")
	}

	// The file lands under <config>/stitch/projects/<repo-id>.yaml.
	expected := filepath.Join(configDir, "stitch", "projects", GetGitRepoID(repo)+".yaml")
	if _, err := os.Stat(expected); err != nil {
		t.Errorf("approvals file not at %s: %v", expected, err)
	}
}

func TestProjectApprovalsWholeRepoFlags(t *testing.T) {
	withConfigDir(t)
	repo := t.TempDir()

	pa, err := LoadProjectApprovals(repo)
	if err != nil {
		t.Fatal(err)
	}
	pa.ReadApproved = true
	if !pa.IsPathApproved(filepath.Join(repo, "anything"), false) {
		t.Error("read_approved should cover all reads")
	}
	if pa.IsPathApproved(filepath.Join(repo, "anything"), true) {
		t.Error("read_approved must not cover writes")
	}
	pa.WriteApproved = true
	if !pa.IsPathApproved(filepath.Join(repo, "anything"), true) {
		t.Error("write_approved should cover writes")
	}
}

func TestProjectApprovalsCorruptedFileStartsFresh(t *testing.T) {
	configDir := withConfigDir(t)
	repo := t.TempDir()

	dir := filepath.Join(configDir, "stitch", "projects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, GetGitRepoID(repo)+".yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}

	pa, err := LoadProjectApprovals(repo)
	if err != nil {
		t.Fatalf("corrupted file should not fail load: %v", err)
	}
	if len(pa.ApprovedPaths) != 0 || len(pa.ShellPatterns) != 0 {
		t.Errorf("expected fresh approvals, got %+v", pa)
	}
}

func TestProjectApprovalsNilSafe(t *testing.T) {
	var pa *ProjectApprovals
	if pa.IsPathApproved("/x", false) || pa.IsShellPatternApproved("ls") {
		t.Error("nil approvals should deny")
	}
	if err := pa.ApprovePath("/x"); err != nil {
		t.Errorf("nil ApprovePath: %v", err)
	}
	if err := pa.Save(); err != nil {
		t.Errorf("nil Save: %v", err)
	}
}

func TestProjectApprovalsDuplicatesCollapse(t *testing.T) {
	withConfigDir(t)
	repo := t.TempDir()

	pa, err := LoadProjectApprovals(repo)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := pa.ApprovePath(filepath.Join(repo, "src")); err != nil {
			t.Fatal(err)
		}
		if err := pa.ApproveShellPattern("make *"); err != nil {
			t.Fatal(err)
		}
	}
	if len(pa.ApprovedPaths) != 1 || len(pa.ShellPatterns) != 1 {
		t.Errorf("duplicates stored: paths=%v patterns=%v", pa.ApprovedPaths, pa.ShellPatterns)
	}
}
