package checkpoint

import (
	"encoding/json"
	"testing"
)

func stateFixture() Snapshot {
	return Snapshot{
		ExecutionState: ExecutionState{
			CurrentPhase: PhaseMap,
			PhaseResults: map[Phase]json.RawMessage{
				PhaseMap: json.RawMessage(`{"partial":true}`),
			},
		},
		WorkItemState: WorkItemState{
			Pending: []WorkItemRecord{{ID: "p1"}},
			InProgress: map[string]InProgressRecord{
				"ip1": {ItemID: "ip1", AgentID: "agent-a"},
				"ip2": {ItemID: "ip2", AgentID: "agent-b"},
			},
			Completed: []CompletedRecord{
				{Item: WorkItemRecord{ID: "c1"}},
			},
			Failed: []FailedRecord{
				{Item: WorkItemRecord{ID: "f1"}},
			},
		},
	}
}

func TestApply_ContinueFromCheckpointIsNoop(t *testing.T) {
	snap := stateFixture()
	out := Apply(ContinueFromCheckpoint, snap)
	if len(out.WorkItemState.InProgress) != 2 {
		t.Errorf("expected in_progress untouched, got %d", len(out.WorkItemState.InProgress))
	}
}

func TestApply_ValidateAndContinueRequeuesInProgress(t *testing.T) {
	snap := stateFixture()
	out := Apply(ValidateAndContinue, snap)

	if len(out.WorkItemState.InProgress) != 0 {
		t.Errorf("expected in_progress cleared, got %d", len(out.WorkItemState.InProgress))
	}
	if len(out.WorkItemState.Pending) != 3 {
		t.Errorf("expected pending to grow by 2 (requeued) + 1 original, got %d", len(out.WorkItemState.Pending))
	}
	if len(out.WorkItemState.Failed) != 1 {
		t.Errorf("failed collection must be untouched")
	}
}

func TestApply_RestartCurrentPhaseDropsPartialResults(t *testing.T) {
	snap := stateFixture()
	out := Apply(RestartCurrentPhase, snap)

	if _, ok := out.ExecutionState.PhaseResults[PhaseMap]; ok {
		t.Error("expected Map phase results dropped")
	}
	if len(out.WorkItemState.Completed) != 0 {
		t.Errorf("RestartCurrentPhase on Map phase should clear completed, got %d", len(out.WorkItemState.Completed))
	}
}

func TestApply_RestartFromMapPhaseResetsMapAndReduce(t *testing.T) {
	snap := stateFixture()
	snap.ExecutionState.PhaseResults[PhaseReduce] = json.RawMessage(`{"x":1}`)

	out := Apply(RestartFromMapPhase, snap)

	if out.ExecutionState.CurrentPhase != PhaseMap {
		t.Errorf("expected phase reset to Map, got %s", out.ExecutionState.CurrentPhase)
	}
	if _, ok := out.ExecutionState.PhaseResults[PhaseMap]; ok {
		t.Error("expected Map results dropped")
	}
	if _, ok := out.ExecutionState.PhaseResults[PhaseReduce]; ok {
		t.Error("expected Reduce results dropped")
	}
	if len(out.WorkItemState.Completed) != 0 {
		t.Error("expected completed items requeued, not retained")
	}
	if len(out.WorkItemState.Failed) != 1 {
		t.Error("failed collection must be untouched")
	}
	// pending = original 1 + 2 in_progress + 1 completed = 4
	if len(out.WorkItemState.Pending) != 4 {
		t.Errorf("expected 4 pending items, got %d", len(out.WorkItemState.Pending))
	}
}
