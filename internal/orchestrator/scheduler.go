package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iepathos/prodigy/internal/checkpoint"
	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/dlq"
	"github.com/iepathos/prodigy/internal/idgen"
	"github.com/iepathos/prodigy/internal/worktreepool"
)

// mapResult is what runMapPhase hands back to the orchestrator for
// the reduce phase and final reporting.
type mapResult struct {
	Collections *WorkItemCollections
	Cancelled   bool
}

// taskResult travels on the completion channel from a spawned agent
// goroutine back to the scheduling loop.
type taskResult struct {
	outcome Outcome
	handle  *worktreepool.Handle
}

// runMapPhase implements spec §4.K's Map phase scheduling algorithm:
// pull up to W items into flight at once, await any completion, route
// the outcome, and checkpoint on the configured interval.
func (o *Orchestrator) runMapPhase(ctx context.Context, spec MapSpec) mapResult {
	collections := newCollections(spec.Items)
	done := make(chan taskResult)
	inFlight := 0
	completedSinceCheckpoint := 0
	lastCheckpoint := time.Now()

	for !collections.isDrained() {
		select {
		case <-ctx.Done():
			return mapResult{Collections: collections, Cancelled: true}
		default:
		}

		for inFlight < o.cfg.ParallelWorktrees {
			item, ok := collections.popPending()
			if !ok {
				break
			}

			handle, err := o.pool.Acquire(ctx, worktreepool.AcquireRequest{Task: item.ID})
			if err != nil {
				collections.requeueHead(item)
				break
			}

			agentID := "agent-" + idgen.ULID()
			collections.InProgress[item.ID] = InProgressEntry{Item: item, AgentID: agentID, StartedAt: time.Now()}
			inFlight++

			go func(item WorkItem, handle *worktreepool.Handle, agentID string) {
				outcome := RunAgentTask(ctx, AgentTaskParams{
					AgentID:        agentID,
					Item:           item,
					WorktreePath:   handle.Worktree().Path,
					Steps:          spec.AgentWorkflow,
					WorkflowVars:   o.vars,
					Exec:           o.exec,
					Retry:          o.retry,
					Timeouts:       o.cfg.CommandTimeouts,
					Interp:         o.interp,
					Bus:            o.bus,
					JobID:          o.cfg.JobID,
					Tracer:         o.tracer,
					MapRetryPolicy: spec.RetryPolicy,
					Breakers:       o.breakers,
				})
				select {
				case done <- taskResult{outcome: outcome, handle: handle}:
				case <-ctx.Done():
				}
			}(item, handle, agentID)
		}

		if inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return mapResult{Collections: collections, Cancelled: true}
		case tr := <-done:
			inFlight--
			o.routeOutcome(ctx, collections, tr, spec)
			completedSinceCheckpoint++
		}

		if o.checkpoints != nil && o.checkpointPolicy.ShouldCheckpoint(completedSinceCheckpoint, lastCheckpoint, time.Now()) {
			o.snapshot(ctx, collections, checkpoint.ReasonInterval)
			completedSinceCheckpoint = 0
			lastCheckpoint = time.Now()
		}

		if thresholdTripped(collections, o.cfg.ErrorThreshold) {
			switch spec.OnFailure.Action {
			case OnFailureFailJob:
				return mapResult{Collections: collections, Cancelled: true}
			case OnFailureFallbackJob:
				o.runFallback(ctx, spec.OnFailure.Command)
				return mapResult{Collections: collections, Cancelled: true}
			}
		}
	}

	return mapResult{Collections: collections}
}

// thresholdTripped reports whether the map phase's cumulative failure
// count has crossed its configured ErrorThreshold (0 disables it).
func thresholdTripped(collections *WorkItemCollections, threshold int) bool {
	return threshold > 0 && len(collections.Failed) >= threshold
}

// runFallback executes a job-level fallback recovery command declared
// by on_failure: {action: fallback, command: ...} (spec §7's
// Fallback{command}) once the map phase's failure threshold trips.
func (o *Orchestrator) runFallback(ctx context.Context, cmd string) {
	if cmd == "" {
		return
	}
	req := command.StepRequest(cmd, nil, "", 0)
	_, _ = o.exec.Execute(ctx, req)
}

func (o *Orchestrator) routeOutcome(ctx context.Context, collections *WorkItemCollections, tr taskResult, spec MapSpec) {
	item := tr.outcome.Item
	delete(collections.InProgress, item.ID)

	switch tr.outcome.Kind {
	case OutcomeSuccess:
		collections.Completed[item.ID] = tr.outcome.Result
		_ = tr.handle.Release(false)

	case OutcomeTransientFailure:
		if item.RetryCount+1 < spec.RetryPolicy.Attempts {
			item.RetryCount++
			collections.requeueTail(item)
			_ = tr.handle.Release(false)
			return
		}
		o.terminalFail(ctx, collections, item, tr.outcome.Err)
		_ = tr.handle.Release(true)

	case OutcomeTerminalFailure:
		o.terminalFail(ctx, collections, item, tr.outcome.Err)
		_ = tr.handle.Release(true)
	}
}

func (o *Orchestrator) terminalFail(ctx context.Context, collections *WorkItemCollections, item WorkItem, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	collections.Failed[item.ID] = msg

	if o.dlqQueue != nil {
		itemJSON, _ := json.Marshal(item.Data)
		entry := dlq.Entry{
			EntryID:           idgen.ULID(),
			JobID:             o.cfg.JobID,
			Item:              itemJSON,
			ItemID:            item.ID,
			TerminalError:     msg,
			Attempts:          item.RetryCount + 1,
			FirstFailedAt:     time.Now(),
			LastFailedAt:      time.Now(),
			ReprocessEligible: true,
		}
		_, _ = o.dlqQueue.Enqueue(ctx, entry)
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, collections *WorkItemCollections, reason checkpoint.Reason) {
	if o.checkpoints == nil {
		return
	}
	snap := o.buildSnapshot(collections)
	id, err := o.checkpoints.Create(ctx, o.cfg.JobID, snap, reason, false)
	if err == nil {
		o.bus.CheckpointCreated(ctx, id, string(reason))
		if o.tracer != nil {
			o.tracer.RecordCheckpoint(ctx, id, string(reason))
		}
	}
}
