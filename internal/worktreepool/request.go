package worktreepool

import (
	"strings"
	"time"
)

// Strategy selects how Acquire obtains a worktree, per spec §4.G.
type Strategy string

const (
	// OnDemand creates a fresh worktree for each acquire and destroys it
	// on release.
	OnDemand Strategy = "on_demand"
	// Pooled creates members on demand up to a fixed size; acquires
	// reuse an idle member before creating a new one, up to that size.
	Pooled Strategy = "pooled"
	// Reuse is Pooled plus match criteria (branch prefix, max age, max
	// use count) on which idle member is eligible; falls back to create.
	Reuse Strategy = "reuse"
	// Dedicated acquires by name, returning or creating a name-keyed
	// worktree that is never shared with another name.
	Dedicated Strategy = "dedicated"
)

// ReuseCriteria filters which idle worktree is eligible for reuse under
// the Reuse strategy.
type ReuseCriteria struct {
	BranchPrefix string
	MaxAge       time.Duration
	MaxUseCount  int
}

func (c ReuseCriteria) matches(wt *Worktree, now time.Time) bool {
	if c.BranchPrefix != "" && !strings.HasPrefix(wt.Branch, c.BranchPrefix) {
		return false
	}
	if c.MaxAge > 0 && now.Sub(wt.CreatedAt) > c.MaxAge {
		return false
	}
	if c.MaxUseCount > 0 && wt.UseCount >= c.MaxUseCount {
		return false
	}
	return true
}

// AcquireRequest describes what Acquire should hand back.
type AcquireRequest struct {
	// Name is required for Dedicated and ignored otherwise.
	Name string
	// Task labels the worktree's InUse state for observability.
	Task string
}
