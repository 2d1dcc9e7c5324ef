package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupGitRepo(t *testing.T) string {
	tmpDir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if err := cmd.Run(); err != nil {
			t.Fatalf("git %v failed: %v", args, err)
		}
	}

	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Test"), 0644); err != nil {
		t.Fatal(err)
	}

	run("add", ".")
	run("commit", "-m", "Initial commit")

	return tmpDir
}

func TestManager_CreateIsIdempotentByName(t *testing.T) {
	tmpDir := setupGitRepo(t)
	worktreeRoot := t.TempDir()
	ctx := context.Background()

	m := NewManager(tmpDir, worktreeRoot, WithBranchPrefix("test/"))

	session1, err := m.Create(ctx, "item-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	session2, err := m.Create(ctx, "item-1")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if session1 != session2 {
		t.Errorf("expected idempotent session, got %+v and %+v", session1, session2)
	}

	if _, err := os.Stat(session1.Path); err != nil {
		t.Errorf("worktree path should exist: %v", err)
	}
}

func TestManager_ListReturnsCreatedSessions(t *testing.T) {
	tmpDir := setupGitRepo(t)
	worktreeRoot := t.TempDir()
	ctx := context.Background()

	m := NewManager(tmpDir, worktreeRoot)

	if _, err := m.Create(ctx, "item-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, "item-2"); err != nil {
		t.Fatal(err)
	}

	sessions, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestManager_RemoveReclaimsBranch(t *testing.T) {
	tmpDir := setupGitRepo(t)
	worktreeRoot := t.TempDir()
	ctx := context.Background()

	m := NewManager(tmpDir, worktreeRoot)

	session, err := m.Create(ctx, "item-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Remove(ctx, "item-1", false); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := os.Stat(session.Path); !os.IsNotExist(err) {
		t.Errorf("expected worktree path to be removed, stat err = %v", err)
	}

	sessions, _ := m.List(ctx)
	if len(sessions) != 0 {
		t.Errorf("expected no sessions after remove, got %d", len(sessions))
	}
}

func TestManager_RemoveUnknownNameIsNoop(t *testing.T) {
	tmpDir := setupGitRepo(t)
	worktreeRoot := t.TempDir()
	ctx := context.Background()

	m := NewManager(tmpDir, worktreeRoot)

	if err := m.Remove(ctx, "never-created", false); err != nil {
		t.Errorf("expected no error removing unknown session, got %v", err)
	}
}

func TestManager_MergeIntegratesCommit(t *testing.T) {
	tmpDir := setupGitRepo(t)
	worktreeRoot := t.TempDir()
	ctx := context.Background()

	m := NewManager(tmpDir, worktreeRoot)

	session, err := m.Create(ctx, "item-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(session.Path, "change.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	commitCmd := exec.Command("git", "add", ".")
	commitCmd.Dir = session.Path
	if err := commitCmd.Run(); err != nil {
		t.Fatal(err)
	}
	commitCmd = exec.Command("git", "commit", "-m", "agent change")
	commitCmd.Dir = session.Path
	if err := commitCmd.Run(); err != nil {
		t.Fatal(err)
	}

	if err := m.Merge(ctx, "item-1"); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "change.txt")); err != nil {
		t.Errorf("expected merged file in main worktree: %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Fix the bug", "fix-the-bug"},
		{"item-1", "item-1"},
		{"  spaces  around  ", "spaces-around"},
		{"UPPERCASE text", "uppercase-text"},
		{"multiple---dashes", "multiple-dashes"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := slugify(tt.input)
			if got != tt.want {
				t.Errorf("slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
