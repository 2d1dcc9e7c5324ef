// Package vcs defines the VCS Worktree Service surface (component C): an
// abstract capability for provisioning isolated working copies for
// agents. The orchestrator core depends only on this interface; a
// concrete git implementation lives in the git subpackage.
package vcs

import "context"

// WorktreeSession is a provisioned working copy. Sessions are idempotent
// by name: creating a session that already exists returns the existing
// one rather than erroring.
type WorktreeSession struct {
	Name   string
	Branch string
	Path   string
}

// DiffSummary reports the file-level changes between two points in a
// session's history, used to compute git-derived interpolation variables
// such as step.files_added and workflow.commits.
type DiffSummary struct {
	FilesAdded    []string
	FilesModified []string
	FilesDeleted  []string
	Commits       []string
}

// WorktreeService provisions, lists, and removes isolated working copies,
// and best-effort merges a session's branch back into the repository's
// current branch.
type WorktreeService interface {
	Create(ctx context.Context, name string) (WorktreeSession, error)
	List(ctx context.Context) ([]WorktreeSession, error)
	Remove(ctx context.Context, name string, force bool) error
	Merge(ctx context.Context, name string) error

	// DiffSummary(ctx, name, from, to) is an optional hook: implementations
	// that can't compute a diff summary return ErrDiffUnsupported. Nothing
	// in the orchestrator or the interpolator calls it, so no git-derived
	// variables appear in the interpolation context.
	DiffSummary(ctx context.Context, name, from, to string) (*DiffSummary, error)
}

var ErrDiffUnsupported = errDiffUnsupported{}

type errDiffUnsupported struct{}

func (errDiffUnsupported) Error() string { return "diff summary not supported by this vcs backend" }
