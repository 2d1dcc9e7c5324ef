package worktreepool

// ResourceLimits caps the aggregated resource usage of in-use
// worktrees. A zero field means that dimension is unbounded.
type ResourceLimits struct {
	MaxDiskBytes   int64
	MaxMemoryBytes int64
	MaxCPUPercent  float64
}

// exceeds reports whether adding one more in-use worktree on top of
// the current aggregate would violate the limits. Since a freshly
// acquired worktree's own usage is not yet measured, the check is
// against the aggregate of worktrees already in use — admission is
// refused once that aggregate alone is at or past the cap.
func (l ResourceLimits) exceeds(agg ResourceUsage) bool {
	if l.MaxDiskBytes > 0 && agg.DiskBytes >= l.MaxDiskBytes {
		return true
	}
	if l.MaxMemoryBytes > 0 && agg.MemoryBytes >= l.MaxMemoryBytes {
		return true
	}
	if l.MaxCPUPercent > 0 && agg.CPUPercent >= l.MaxCPUPercent {
		return true
	}
	return false
}

// aggregateInUse sums resource usage across every worktree currently
// InUse. Callers must hold p.mu.
func (p *Pool) aggregateInUse() ResourceUsage {
	var agg ResourceUsage
	for _, wt := range p.byID {
		if wt.Status != StatusInUse {
			continue
		}
		agg.DiskBytes += wt.Usage.DiskBytes
		agg.MemoryBytes += wt.Usage.MemoryBytes
		agg.CPUPercent += wt.Usage.CPUPercent
	}
	return agg
}
