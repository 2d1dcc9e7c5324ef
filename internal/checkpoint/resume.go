package checkpoint

import "sort"

// ResumeStrategy selects how a loaded Snapshot's work-item collections
// are adjusted before the orchestrator resumes its loop.
type ResumeStrategy string

const (
	// ContinueFromCheckpoint keeps all four collections as-is; the
	// caller is responsible for reclaiming or requeuing in_progress
	// items bound to agents that are no longer live.
	ContinueFromCheckpoint ResumeStrategy = "continue_from_checkpoint"

	// ValidateAndContinue moves every in_progress item back to the head
	// of pending, preserving retry_count.
	ValidateAndContinue ResumeStrategy = "validate_and_continue"

	// RestartCurrentPhase moves every item belonging to the current
	// phase back to pending and drops that phase's partial results.
	RestartCurrentPhase ResumeStrategy = "restart_current_phase"

	// RestartFromMapPhase resets the Map phase: every non-failed item
	// returns to pending, and Map/Reduce results are dropped.
	RestartFromMapPhase ResumeStrategy = "restart_from_map_phase"
)

// Apply adjusts the snapshot (received by value) per the chosen strategy
// and returns it. Its maps are shared with the caller's Snapshot: the
// restart strategies delete entries from ExecutionState.PhaseResults in
// place. It never touches the failed collection — failed items only
// move via explicit DLQ retry.
func Apply(strategy ResumeStrategy, snap Snapshot) Snapshot {
	switch strategy {
	case ValidateAndContinue:
		return validateAndContinue(snap)
	case RestartCurrentPhase:
		return restartCurrentPhase(snap)
	case RestartFromMapPhase:
		return restartFromMapPhase(snap)
	default: // ContinueFromCheckpoint
		return snap
	}
}

func validateAndContinue(snap Snapshot) Snapshot {
	items := snap.WorkItemState
	requeued := make([]WorkItemRecord, 0, len(items.InProgress))
	for _, rec := range orderedInProgress(items) {
		requeued = append(requeued, rec.item)
	}
	items.Pending = append(requeued, items.Pending...)
	items.InProgress = map[string]InProgressRecord{}
	snap.WorkItemState = items
	return snap
}

func restartCurrentPhase(snap Snapshot) Snapshot {
	switch snap.ExecutionState.CurrentPhase {
	case PhaseMap:
		return restartFromMapPhase(snap)
	default:
		items := snap.WorkItemState
		requeued := make([]WorkItemRecord, 0, len(items.InProgress))
		for _, rec := range orderedInProgress(items) {
			requeued = append(requeued, rec.item)
		}
		items.Pending = append(requeued, items.Pending...)
		items.InProgress = map[string]InProgressRecord{}
		snap.WorkItemState = items

		if snap.ExecutionState.PhaseResults != nil {
			delete(snap.ExecutionState.PhaseResults, snap.ExecutionState.CurrentPhase)
		}
		return snap
	}
}

func restartFromMapPhase(snap Snapshot) Snapshot {
	items := snap.WorkItemState

	var requeued []WorkItemRecord
	for _, rec := range orderedInProgress(items) {
		requeued = append(requeued, rec.item)
	}
	for _, c := range items.Completed {
		requeued = append(requeued, c.Item)
	}

	items.Pending = append(requeued, items.Pending...)
	items.InProgress = map[string]InProgressRecord{}
	items.Completed = nil
	snap.WorkItemState = items

	snap.ExecutionState.CurrentPhase = PhaseMap
	if snap.ExecutionState.PhaseResults != nil {
		delete(snap.ExecutionState.PhaseResults, PhaseMap)
		delete(snap.ExecutionState.PhaseResults, PhaseReduce)
	}
	return snap
}

type inProgressWithID struct {
	id   string
	item WorkItemRecord
}

// orderedInProgress gives a deterministic traversal of the in_progress
// map so requeued order doesn't depend on map iteration order. The
// work item itself isn't embedded in InProgressRecord (only its id and
// agent assignment are), so callers resolving the original item must
// look it up elsewhere; here we only have the id to synthesize a stub
// record.
func orderedInProgress(items WorkItemState) []inProgressWithID {
	ids := make([]string, 0, len(items.InProgress))
	for id := range items.InProgress {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]inProgressWithID, 0, len(ids))
	for _, id := range ids {
		out = append(out, inProgressWithID{id: id, item: WorkItemRecord{ID: id}})
	}
	return out
}
