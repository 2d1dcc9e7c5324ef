package worktreepool

import "sync"

// Handle is the scoped resource returned by Pool.Acquire. On Release,
// the worktree is returned to the pool; the cleanup policy decides
// whether it is reused or destroyed. A Handle must be released exactly
// once.
type Handle struct {
	pool *Pool
	id   string

	mu       sync.Mutex
	released bool
}

// Worktree returns a snapshot of the handle's worktree.
func (h *Handle) Worktree() Worktree {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return *h.pool.byID[h.id]
}

// Release returns the worktree to the pool. failed marks the agent
// that held it as having failed, which triggers the keep_failed policy
// instead of ordinary reuse/destroy handling.
func (h *Handle) Release(failed bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrAlreadyReleased
	}
	h.released = true
	return h.pool.release(h.id, failed)
}
