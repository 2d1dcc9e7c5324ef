// Package worktreepool implements the Agent Pool (component G): bounded
// allocation of vcs worktrees to agents under one of several strategies,
// with idle/age cleanup and resource limits.
package worktreepool

import (
	"time"
)

// Status is a worktree's lifecycle state, matching spec §3's Worktree
// invariant: at most one agent holds an InUse worktree at a time.
type Status string

const (
	StatusAvailable Status = "available"
	StatusInUse     Status = "in_use"
	StatusNamed     Status = "named"
	StatusCleaning  Status = "cleaning"
	StatusFailed    Status = "failed"
)

// ResourceUsage is a worktree's last-measured footprint.
type ResourceUsage struct {
	DiskBytes   int64
	MemoryBytes int64
	CPUPercent  float64
}

// Worktree is one pool element.
type Worktree struct {
	ID        string
	Path      string
	Branch    string
	CreatedAt time.Time
	LastUsed  time.Time
	UseCount  int

	Status Status
	Task   string // set when Status == StatusInUse
	Name   string // set for Dedicated worktrees
	Err    string // set when Status == StatusFailed

	Usage ResourceUsage
}
