package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iepathos/prodigy/internal/aggregate"
	"github.com/iepathos/prodigy/internal/checkpoint"
	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/dlq"
	"github.com/iepathos/prodigy/internal/retry"
	"github.com/iepathos/prodigy/internal/telemetry"
	"github.com/iepathos/prodigy/internal/variables"
	"github.com/iepathos/prodigy/internal/worktreepool"
)

// Phase is the job's state-machine position, per spec §4.K's
// Pending → Setup → Map → Reduce → Completed chart (with Failed and
// Paused side states).
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseSetup     Phase = "setup"
	PhaseMap       Phase = "map"
	PhaseReduce    Phase = "reduce"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhasePaused    Phase = "paused"
)

// Run is the final outcome of a job.
type Run struct {
	Phase       Phase
	Collections *WorkItemCollections
	ReduceVars  map[string]interface{}
}

// Orchestrator drives one job's workflow through setup, map, and
// reduce, wiring the Agent Pool, Command Executor, Retry Executor,
// Checkpoint Manager, Dead-Letter Queue, and Aggregator together per
// spec §4.K's Flow description.
type Orchestrator struct {
	cfg Config

	pool   *worktreepool.Pool
	exec   command.Executor
	retry  *retry.Executor
	interp *variables.Interpolator
	vars   *variables.Store
	bus    *Bus

	checkpoints      *checkpoint.Manager
	checkpointPolicy checkpoint.Policy
	dlqQueue         *dlq.Queue
	tracer           *telemetry.Tracer
	breakers         *breakerRegistry

	phase Phase
}

// New builds an Orchestrator. checkpoints and dlqQueue may be nil to
// run without durability (e.g. in tests of the scheduling algorithm
// alone).
func New(cfg Config, pool *worktreepool.Pool, exec command.Executor, retryExec *retry.Executor, interp *variables.Interpolator, vars *variables.Store, bus *Bus, checkpoints *checkpoint.Manager, checkpointPolicy checkpoint.Policy, dlqQueue *dlq.Queue) *Orchestrator {
	return &Orchestrator{
		cfg:              cfg,
		pool:             pool,
		exec:             exec,
		retry:            retryExec,
		interp:           interp,
		vars:             vars,
		bus:              bus,
		checkpoints:      checkpoints,
		checkpointPolicy: checkpointPolicy,
		dlqQueue:         dlqQueue,
		breakers:         newBreakerRegistry(cfg.Breaker),
		phase:            PhasePending,
	}
}

// WithTracer attaches an OpenTelemetry tracer around each agent task and
// checkpoint write. A nil tracer (the default) leaves Run untraced.
func (o *Orchestrator) WithTracer(t *telemetry.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

// Run drives the full job state machine to completion, or until ctx
// is cancelled (external interrupt, threshold trip) triggers the
// cancellation/shutdown sequence from spec §4.K.
func (o *Orchestrator) Run(ctx context.Context, wf Workflow) (Run, error) {
	o.transition(ctx, PhasePending, PhaseSetup)

	if err := o.runSteps(ctx, wf.Setup); err != nil {
		o.transition(ctx, PhaseSetup, PhaseFailed)
		return Run{Phase: PhaseFailed}, fmt.Errorf("setup: %w", err)
	}

	o.transition(ctx, PhaseSetup, PhaseMap)
	mapRes := o.runMapPhase(ctx, wf.Map)

	if mapRes.Cancelled {
		return o.shutdown(ctx, mapRes.Collections)
	}

	o.snapshot(ctx, mapRes.Collections, checkpoint.ReasonPhaseTransition)
	o.transition(ctx, PhaseMap, PhaseReduce)

	reduceVars, err := o.runReducePhase(ctx, wf.Reduce, mapRes.Collections)
	if err != nil {
		o.transition(ctx, PhaseReduce, PhaseFailed)
		return Run{Phase: PhaseFailed, Collections: mapRes.Collections}, fmt.Errorf("reduce: %w", err)
	}

	o.snapshotFinal(ctx, mapRes.Collections)
	o.transition(ctx, PhaseReduce, PhaseCompleted)
	return Run{Phase: PhaseCompleted, Collections: mapRes.Collections, ReduceVars: reduceVars}, nil
}

func (o *Orchestrator) runSteps(ctx context.Context, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	captured := variables.New()
	_, err := runSteps(ctx, AgentTaskParams{
		AgentID:      "setup",
		Exec:         o.exec,
		Retry:        o.retry,
		Timeouts:     o.cfg.CommandTimeouts,
		Interp:       o.interp,
		Bus:          o.bus,
		WorkflowVars: o.vars,
		JobID:        o.cfg.JobID,
		Tracer:       o.tracer,
		Breakers:     o.breakers,
	}, steps, o.vars, captured)
	if err != nil {
		return err
	}
	o.vars = variables.MergeAll(o.vars, captured)
	return nil
}

// runReducePhase runs the reduce sub-workflow with map.results,
// map.successful, map.failed, and map.total available, per spec
// §4.K's Reduce phase description. Failure here respects on_failure
// but never rewinds the map phase.
func (o *Orchestrator) runReducePhase(ctx context.Context, steps []Step, collections *WorkItemCollections) (map[string]interface{}, error) {
	results := make([]interface{}, 0, len(collections.Completed))
	for _, id := range sortedKeys(collections.Completed) {
		results = append(results, collections.Completed[id])
	}

	reduceScope := variables.FromMap(map[string]interface{}{
		"map": map[string]interface{}{
			"results":    results,
			"successful": len(collections.Completed),
			"failed":     len(collections.Failed),
			"total":      len(collections.Completed) + len(collections.Failed),
		},
	})

	if len(steps) == 0 {
		return reduceScope.Raw(), nil
	}

	captured := variables.New()
	scope := variables.MergeAll(o.vars, reduceScope)
	_, err := runSteps(ctx, AgentTaskParams{
		AgentID:      "reduce",
		Exec:         o.exec,
		Retry:        o.retry,
		Timeouts:     o.cfg.CommandTimeouts,
		Interp:       o.interp,
		Bus:          o.bus,
		WorkflowVars: o.vars,
		JobID:        o.cfg.JobID,
		Tracer:       o.tracer,
		Breakers:     o.breakers,
	}, steps, scope, captured)
	if err != nil {
		return nil, err
	}
	return captured.Raw(), nil
}

// shutdown implements spec §4.K's cancellation sequence: items still
// in_progress are requeued to pending's head preserving retry_count,
// and a BeforeShutdown checkpoint is written. shutdown releases no
// worktree: a worktree held by an agent task still in flight at
// cancellation is not released back to the Agent Pool.
func (o *Orchestrator) shutdown(ctx context.Context, collections *WorkItemCollections) (Run, error) {
	for itemID, entry := range collections.InProgress {
		collections.requeueHead(entry.Item)
		delete(collections.InProgress, itemID)
	}

	o.snapshot(ctx, collections, checkpoint.ReasonBeforeShutdown)
	o.transition(ctx, PhaseMap, PhasePaused)
	return Run{Phase: PhasePaused, Collections: collections}, nil
}

func (o *Orchestrator) transition(ctx context.Context, from, to Phase) {
	o.phase = to
	o.bus.PhaseTransitioned(ctx, string(from), string(to))
}

func (o *Orchestrator) buildSnapshot(collections *WorkItemCollections) checkpoint.Snapshot {
	pending := make([]checkpoint.WorkItemRecord, 0, len(collections.Pending))
	for _, item := range collections.Pending {
		data, _ := json.Marshal(item.Data)
		pending = append(pending, checkpoint.WorkItemRecord{ID: item.ID, Item: data})
	}

	inProgress := make(map[string]checkpoint.InProgressRecord, len(collections.InProgress))
	for id, entry := range collections.InProgress {
		inProgress[id] = checkpoint.InProgressRecord{ItemID: id, AgentID: entry.AgentID, StartedAt: entry.StartedAt, LastHeartbeat: time.Now()}
	}

	completed := make([]checkpoint.CompletedRecord, 0, len(collections.Completed))
	for _, id := range sortedKeys(collections.Completed) {
		result, _ := json.Marshal(collections.Completed[id])
		completed = append(completed, checkpoint.CompletedRecord{
			Item:        checkpoint.WorkItemRecord{ID: id},
			Result:      result,
			CompletedAt: time.Now(),
		})
	}

	failed := make([]checkpoint.FailedRecord, 0, len(collections.Failed))
	for id, errMsg := range collections.Failed {
		failed = append(failed, checkpoint.FailedRecord{
			Item:     checkpoint.WorkItemRecord{ID: id},
			Error:    errMsg,
			FailedAt: time.Now(),
		})
	}

	return checkpoint.Snapshot{
		Metadata: checkpoint.Metadata{
			JobID:          o.cfg.JobID,
			Version:        1,
			CreatedAt:      time.Now(),
			Phase:          checkpoint.PhaseMap,
			TotalItems:     len(pending) + len(inProgress) + len(completed) + len(failed),
			CompletedItems: len(completed),
		},
		ExecutionState: checkpoint.ExecutionState{
			CurrentPhase:   checkpoint.PhaseMap,
			PhaseStartedAt: time.Now(),
			PhaseResults:   map[checkpoint.Phase]json.RawMessage{},
			ScopeVariables: map[string]json.RawMessage{},
		},
		WorkItemState: checkpoint.WorkItemState{
			Pending:    pending,
			InProgress: inProgress,
			Completed:  completed,
			Failed:     failed,
		},
		VariableState: checkpoint.VariableState{
			WorkflowVariables: map[string]json.RawMessage{},
			CapturedOutputs:   map[string]json.RawMessage{},
		},
		ResourceState: checkpoint.ResourceState{
			AllowedAgents: o.cfg.ParallelWorktrees,
		},
		ErrorState: checkpoint.ErrorState{
			ErrorCount: len(failed),
		},
	}
}

func (o *Orchestrator) snapshotFinal(ctx context.Context, collections *WorkItemCollections) {
	if o.checkpoints == nil {
		return
	}
	snap := o.buildSnapshot(collections)
	snap.ExecutionState.CurrentPhase = checkpoint.PhaseReduce
	snap.Metadata.Phase = checkpoint.PhaseReduce
	id, err := o.checkpoints.Create(ctx, o.cfg.JobID, snap, checkpoint.ReasonPhaseTransition, true)
	if err == nil {
		o.bus.CheckpointCreated(ctx, id, string(checkpoint.ReasonPhaseTransition))
		if o.tracer != nil {
			o.tracer.RecordCheckpoint(ctx, id, string(checkpoint.ReasonPhaseTransition))
		}
	}
}

// Resume loads a prior checkpoint, applies the chosen resume strategy,
// and returns the reconstructed collections ready to feed back into
// runMapPhase. Any in_progress item the strategy doesn't reclaim with
// a live agent lands in Pending with retry_count untouched, per spec
// §4.K's Resume section.
func (o *Orchestrator) Resume(ctx context.Context, checkpointID string, strategy checkpoint.ResumeStrategy) (*WorkItemCollections, error) {
	snap, err := o.checkpoints.Resume(ctx, o.cfg.JobID, checkpointID, strategy)
	if err != nil {
		return nil, fmt.Errorf("resuming from %s: %w", checkpointID, err)
	}

	var items []WorkItem
	for _, rec := range snap.WorkItemState.Pending {
		var data map[string]interface{}
		_ = json.Unmarshal(rec.Item, &data)
		items = append(items, WorkItem{ID: rec.ID, Data: data})
	}

	collections := newCollections(items)
	for _, rec := range snap.WorkItemState.Completed {
		var result map[string]interface{}
		_ = json.Unmarshal(rec.Result, &result)
		collections.Completed[rec.Item.ID] = result
	}
	for _, rec := range snap.WorkItemState.Failed {
		collections.Failed[rec.Item.ID] = rec.Error
	}
	return collections, nil
}

// Aggregate reduces the map phase's per-item aggregate.Values with
// the aggregator (component J), presenting inputs sorted by the
// stable item id so order-sensitive variants (Concat/Sort/Flatten)
// are deterministic across runs, per spec §5's ordering guarantees.
func Aggregate(perItem map[string]aggregate.Value) (aggregate.Value, []error) {
	values := make([]aggregate.Value, 0, len(perItem))
	for _, id := range sortedKeys(perItem) {
		values = append(values, perItem[id])
	}
	return aggregate.CombineAll(values)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
