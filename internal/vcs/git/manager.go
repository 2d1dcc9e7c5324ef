// Package git implements the VCS Worktree Service (component C) on top
// of real `git worktree` commands, one worktree per agent.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iepathos/prodigy/internal/vcs"
)

// Manager provisions git worktrees under a root directory, branching from
// the repository at repoPath.
type Manager struct {
	repoPath     string
	worktreeRoot string
	branchPrefix string

	sessions map[string]vcs.WorktreeSession
}

type Option func(*Manager)

func WithBranchPrefix(prefix string) Option {
	return func(m *Manager) { m.branchPrefix = prefix }
}

func NewManager(repoPath, worktreeRoot string, opts ...Option) *Manager {
	m := &Manager{
		repoPath:     repoPath,
		worktreeRoot: worktreeRoot,
		branchPrefix: "agent/",
		sessions:     make(map[string]vcs.WorktreeSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create provisions a worktree for name, or returns the existing session
// if one was already created under that name (sessions are idempotent by
// name per spec §4.C).
func (m *Manager) Create(ctx context.Context, name string) (vcs.WorktreeSession, error) {
	if existing, ok := m.sessions[name]; ok {
		return existing, nil
	}

	branch := m.branchPrefix + slugify(name)
	path := filepath.Join(m.worktreeRoot, name)

	if _, err := m.run(ctx, m.repoPath, "worktree", "add", "-b", branch, path); err != nil {
		return vcs.WorktreeSession{}, fmt.Errorf("creating worktree %s: %w", name, err)
	}

	session := vcs.WorktreeSession{Name: name, Branch: branch, Path: path}
	m.sessions[name] = session
	return session, nil
}

// List returns every session this Manager has provisioned.
func (m *Manager) List(ctx context.Context) ([]vcs.WorktreeSession, error) {
	sessions := make([]vcs.WorktreeSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Remove tears down a worktree and its branch. Force skips git's
// uncommitted-changes guard.
func (m *Manager) Remove(ctx context.Context, name string, force bool) error {
	session, ok := m.sessions[name]
	if !ok {
		return nil
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, session.Path)

	if _, err := m.run(ctx, m.repoPath, args...); err != nil {
		return fmt.Errorf("removing worktree %s: %w", name, err)
	}

	branchArgs := []string{"branch", "-D", session.Branch}
	if _, err := m.run(ctx, m.repoPath, branchArgs...); err != nil {
		return fmt.Errorf("removing branch %s: %w", session.Branch, err)
	}

	delete(m.sessions, name)
	return nil
}

// Merge integrates a session's branch back into the repository's current
// branch. The orchestrator treats this as a best-effort post-map step per
// spec §4.C; a conflicted merge is reported but not automatically
// resolved.
func (m *Manager) Merge(ctx context.Context, name string) error {
	session, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("no worktree session named %s", name)
	}

	if _, err := m.run(ctx, m.repoPath, "merge", "--no-ff", session.Branch); err != nil {
		return fmt.Errorf("merging %s: %w", session.Branch, err)
	}
	return nil
}

// DiffSummary reports file-level changes in a session's worktree between
// two revisions.
func (m *Manager) DiffSummary(ctx context.Context, name, from, to string) (*vcs.DiffSummary, error) {
	session, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("no worktree session named %s", name)
	}

	out, err := m.run(ctx, session.Path, "diff", "--name-status", from, to)
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s: %w", from, to, err)
	}

	summary := &vcs.DiffSummary{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		switch fields[0][0] {
		case 'A':
			summary.FilesAdded = append(summary.FilesAdded, fields[1])
		case 'M':
			summary.FilesModified = append(summary.FilesModified, fields[1])
		case 'D':
			summary.FilesDeleted = append(summary.FilesDeleted, fields[1])
		}
	}

	logOut, err := m.run(ctx, session.Path, "log", "--oneline", from+".."+to)
	if err != nil {
		return nil, fmt.Errorf("listing commits %s..%s: %w", from, to, err)
	}
	if trimmed := strings.TrimSpace(logOut); trimmed != "" {
		summary.Commits = strings.Split(trimmed, "\n")
	}

	return summary, nil
}

func (m *Manager) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)
	multiDash    = regexp.MustCompile(`-+`)
)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = multiDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
