package worktreepool

import "errors"

// ErrLimitExceeded is returned by Acquire when admitting another
// in-use worktree would exceed a configured resource limit. Acquire
// fails fast rather than blocking, per spec §4.G.
var ErrLimitExceeded = errors.New("worktree pool: resource limit exceeded")

// ErrDedicatedInUse is returned when Acquire targets a Dedicated name
// that another agent currently holds.
var ErrDedicatedInUse = errors.New("worktree pool: dedicated worktree already in use")

// ErrNameRequired is returned when Acquire is called with the
// Dedicated strategy and no name.
var ErrNameRequired = errors.New("worktree pool: dedicated strategy requires a name")

// ErrAlreadyReleased is returned by Handle.Release when called more
// than once.
var ErrAlreadyReleased = errors.New("worktree pool: handle already released")
