package worktreepool

import "time"

// Sweep evicts idle worktrees whose last_used exceeds IdleTimeout or
// whose age exceeds MaxAge. Both sweeps only consider worktrees that
// are Available — a worktree currently InUse is never touched, per
// spec §4.G's "cooperative, only when quiescent for that element".
// Sweep runs only when a caller invokes it; the orchestrator does not
// call it.
func (p *Pool) Sweep(now time.Time) []string {
	p.mu.Lock()
	var evicted []string
	var remainingIdle []string
	for _, id := range p.idle {
		wt := p.byID[id]
		if wt == nil || wt.Status != StatusAvailable {
			continue
		}
		if p.cfg.IdleTimeout > 0 && now.Sub(wt.LastUsed) > p.cfg.IdleTimeout {
			evicted = append(evicted, id)
			continue
		}
		if p.cfg.MaxAge > 0 && now.Sub(wt.CreatedAt) > p.cfg.MaxAge {
			evicted = append(evicted, id)
			continue
		}
		remainingIdle = append(remainingIdle, id)
	}
	p.idle = remainingIdle

	for name, id := range p.named {
		wt := p.byID[id]
		if wt == nil || wt.Status != StatusAvailable {
			continue
		}
		if p.cfg.IdleTimeout > 0 && now.Sub(wt.LastUsed) > p.cfg.IdleTimeout {
			evicted = append(evicted, id)
			delete(p.named, name)
			continue
		}
		if p.cfg.MaxAge > 0 && now.Sub(wt.CreatedAt) > p.cfg.MaxAge {
			evicted = append(evicted, id)
			delete(p.named, name)
		}
	}
	p.mu.Unlock()

	for _, id := range evicted {
		p.mu.Lock()
		wt := p.byID[id]
		if wt != nil {
			_ = p.destroyLocked(wt)
		}
		p.mu.Unlock()
	}
	return evicted
}
