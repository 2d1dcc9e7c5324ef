package worktreepool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iepathos/prodigy/internal/idgen"
	"github.com/iepathos/prodigy/internal/telemetry"
	"github.com/iepathos/prodigy/internal/vcs"
)

// Config configures a Pool's allocation strategy and policies.
type Config struct {
	Strategy      Strategy
	PoolSize      int // member cap for Pooled/Reuse, created on demand; 0 = no cap
	ReuseCriteria ReuseCriteria
	IdleTimeout   time.Duration
	MaxAge        time.Duration
	KeepFailed    bool
	Limits        ResourceLimits
}

// Metrics tracks pool-lifetime counters. They are read through
// Pool.Metrics; the orchestrator does not write them into a
// checkpoint's resource_state.
type Metrics struct {
	Created   int
	Destroyed int
	Reused    int
}

// Pool bounds agent access to worktrees by parallel_worktrees (W),
// dispatching to one of the allocation strategies in spec §4.G. The
// orchestrator core depends on vcs.WorktreeService, never on git
// directly, so Pool is backend-agnostic.
type Pool struct {
	svc    vcs.WorktreeService
	cfg    Config
	sem    chan struct{}
	tracer *telemetry.Tracer

	mu      sync.Mutex
	byID    map[string]*Worktree
	idle    []string          // ids available for reuse, Pooled/Reuse only
	named   map[string]string // name -> id, Dedicated only
	metrics Metrics
}

// New builds a Pool bounded by w concurrent in-use worktrees.
func New(svc vcs.WorktreeService, w int, cfg Config) *Pool {
	return &Pool{
		svc:   svc,
		cfg:   cfg,
		sem:   make(chan struct{}, w),
		byID:  make(map[string]*Worktree),
		named: make(map[string]string),
	}
}

// WithTracer attaches an OpenTelemetry tracer around Acquire/Release. A
// nil Pool.tracer (the default) leaves both calls untraced.
func (p *Pool) WithTracer(t *telemetry.Tracer) *Pool {
	p.tracer = t
	return p
}

// Metrics returns a snapshot of lifetime created/destroyed/reused
// counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Acquire blocks on the pool's semaphore of size W, then dispatches to
// the configured strategy. Resource limits fail fast rather than
// block: if the pool is already at its aggregate cap, Acquire returns
// ErrLimitExceeded immediately after releasing the semaphore slot it
// briefly held.
func (p *Pool) Acquire(ctx context.Context, req AcquireRequest) (*Handle, error) {
	var span *telemetry.AcquireSpan
	if p.tracer != nil {
		ctx, span = p.tracer.StartAcquire(ctx, string(p.cfg.Strategy), req.Task)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		if span != nil {
			span.End(ctx.Err())
		}
		return nil, ctx.Err()
	}

	wt, err := p.acquireByStrategy(ctx, req)
	if err != nil {
		<-p.sem
		if span != nil {
			span.End(err)
		}
		return nil, err
	}

	p.mu.Lock()
	if p.cfg.Limits.exceeds(p.aggregateInUse()) {
		p.mu.Unlock()
		p.releaseLocked(wt, false)
		<-p.sem
		if span != nil {
			span.End(ErrLimitExceeded)
		}
		return nil, ErrLimitExceeded
	}
	p.mu.Unlock()

	if span != nil {
		span.SetWorktree(wt.ID, wt.Path, wt.UseCount > 0)
		span.End(nil)
	}

	return &Handle{pool: p, id: wt.ID}, nil
}

func (p *Pool) acquireByStrategy(ctx context.Context, req AcquireRequest) (*Worktree, error) {
	switch p.cfg.Strategy {
	case Dedicated:
		return p.acquireDedicated(ctx, req)
	case Pooled:
		return p.acquirePooled(ctx, req, ReuseCriteria{})
	case Reuse:
		return p.acquirePooled(ctx, req, p.cfg.ReuseCriteria)
	default: // OnDemand
		return p.create(ctx, req.Task)
	}
}

func (p *Pool) create(ctx context.Context, task string) (*Worktree, error) {
	name := "wt-" + idgen.ULID()
	session, err := p.svc.Create(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creating worktree: %w", err)
	}

	now := time.Now()
	wt := &Worktree{
		ID:        name,
		Path:      session.Path,
		Branch:    session.Branch,
		CreatedAt: now,
		LastUsed:  now,
		Status:    StatusInUse,
		Task:      task,
	}

	p.mu.Lock()
	p.byID[wt.ID] = wt
	p.metrics.Created++
	p.mu.Unlock()

	return wt, nil
}

func (p *Pool) acquirePooled(ctx context.Context, req AcquireRequest, criteria ReuseCriteria) (*Worktree, error) {
	now := time.Now()

	p.mu.Lock()
	for i, id := range p.idle {
		wt := p.byID[id]
		if wt == nil || !criteria.matches(wt, now) {
			continue
		}
		p.idle = append(p.idle[:i], p.idle[i+1:]...)
		wt.Status = StatusInUse
		wt.Task = req.Task
		wt.UseCount++
		wt.LastUsed = now
		p.metrics.Reused++
		p.mu.Unlock()
		return wt, nil
	}
	atCapacity := p.cfg.PoolSize > 0 && len(p.byID) >= p.cfg.PoolSize
	p.mu.Unlock()

	if atCapacity {
		return nil, fmt.Errorf("worktree pool: exhausted at size %d", p.cfg.PoolSize)
	}
	return p.create(ctx, req.Task)
}

func (p *Pool) acquireDedicated(ctx context.Context, req AcquireRequest) (*Worktree, error) {
	if req.Name == "" {
		return nil, ErrNameRequired
	}

	p.mu.Lock()
	if id, ok := p.named[req.Name]; ok {
		wt := p.byID[id]
		if wt.Status == StatusInUse {
			p.mu.Unlock()
			return nil, ErrDedicatedInUse
		}
		wt.Status = StatusInUse
		wt.Task = req.Task
		wt.UseCount++
		wt.LastUsed = time.Now()
		p.metrics.Reused++
		p.mu.Unlock()
		return wt, nil
	}
	p.mu.Unlock()

	session, err := p.svc.Create(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("creating dedicated worktree %s: %w", req.Name, err)
	}

	now := time.Now()
	wt := &Worktree{
		ID:        req.Name,
		Path:      session.Path,
		Branch:    session.Branch,
		CreatedAt: now,
		LastUsed:  now,
		Status:    StatusInUse,
		Task:      req.Task,
		Name:      req.Name,
	}

	p.mu.Lock()
	p.byID[wt.ID] = wt
	p.named[req.Name] = wt.ID
	p.metrics.Created++
	p.mu.Unlock()

	return wt, nil
}

// release returns a handle's worktree to the pool according to the
// configured strategy and keep_failed policy, then frees its
// semaphore slot. failed marks the worktree's last owning agent as
// Failed rather than clean.
func (p *Pool) release(id string, failed bool) error {
	var span *telemetry.ReleaseSpan
	if p.tracer != nil {
		_, span = p.tracer.StartRelease(context.Background(), id, failed)
	}

	p.mu.Lock()
	wt, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		err := fmt.Errorf("worktree pool: unknown worktree %s", id)
		if span != nil {
			span.End(err)
		}
		return err
	}
	p.mu.Unlock()

	err := p.releaseLocked(wt, failed)
	<-p.sem
	if span != nil {
		span.SetDisposition(string(wt.Status))
		span.End(err)
	}
	return err
}

func (p *Pool) releaseLocked(wt *Worktree, failed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	wt.LastUsed = time.Now()

	if failed && p.cfg.KeepFailed {
		wt.Status = StatusFailed
		return nil
	}

	switch p.cfg.Strategy {
	case OnDemand:
		return p.destroyLocked(wt)
	case Dedicated:
		wt.Status = StatusAvailable
		wt.Task = ""
		return nil
	default: // Pooled, Reuse
		wt.Status = StatusAvailable
		wt.Task = ""
		p.idle = append(p.idle, wt.ID)
		return nil
	}
}

// destroyLocked removes a worktree via the vcs service and drops it
// from the pool's bookkeeping. Callers must hold p.mu.
func (p *Pool) destroyLocked(wt *Worktree) error {
	wt.Status = StatusCleaning
	ctx := context.Background()
	if err := p.svc.Remove(ctx, wt.ID, true); err != nil {
		wt.Status = StatusFailed
		wt.Err = err.Error()
		return fmt.Errorf("destroying worktree %s: %w", wt.ID, err)
	}
	delete(p.byID, wt.ID)
	if wt.Name != "" {
		delete(p.named, wt.Name)
	}
	p.metrics.Destroyed++
	return nil
}
