package command

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidationError represents a path validation failure.
type PathValidationError struct {
	Path   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("path validation failed for %q: %s", e.Path, e.Reason)
}

// ValidateDir ensures a step's requested working directory resolves
// inside its agent's worktree root, even after interpolation has
// substituted a variable into the cmd or dir field. A step that tries to
// cd outside its own worktree is rejected before the command ever spawns.
func ValidateDir(dir, worktreeRoot string) (string, error) {
	if dir == "" {
		return worktreeRoot, nil
	}

	var absDir string
	if filepath.IsAbs(dir) {
		absDir = dir
	} else {
		absDir = filepath.Join(worktreeRoot, dir)
	}

	cleanDir := filepath.Clean(absDir)
	cleanRoot := filepath.Clean(worktreeRoot)

	if cleanDir != cleanRoot && !strings.HasPrefix(cleanDir, cleanRoot+string(filepath.Separator)) {
		return "", &PathValidationError{
			Path:   dir,
			Reason: fmt.Sprintf("escapes worktree root (resolved to %q)", cleanDir),
		}
	}

	return cleanDir, nil
}

// IsSafeDir reports whether dir resolves inside worktreeRoot without
// returning the underlying error.
func IsSafeDir(dir, worktreeRoot string) bool {
	_, err := ValidateDir(dir, worktreeRoot)
	return err == nil
}
