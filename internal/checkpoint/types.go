// Package checkpoint implements the Checkpoint Manager (component F): it
// snapshots live job state into durable, integrity-checked blobs via a
// storage.Backend, and knows how to resume a job from one under a chosen
// strategy.
package checkpoint

import (
	"encoding/json"
	"time"
)

// Reason names why a checkpoint was created.
type Reason string

const (
	ReasonInterval        Reason = "interval"
	ReasonPhaseTransition  Reason = "phase_transition"
	ReasonBeforeShutdown   Reason = "before_shutdown"
	ReasonManual           Reason = "manual"
	ReasonErrorRecovery    Reason = "error_recovery"
)

// Phase is the job phase a checkpoint was taken in.
type Phase string

const (
	PhaseSetup  Phase = "setup"
	PhaseMap    Phase = "map"
	PhaseReduce Phase = "reduce"
)

// Compression selects how a checkpoint's encoded payload is stored.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLz4  Compression = "lz4"
)

// Metadata is the header stored alongside every checkpoint's payload.
type Metadata struct {
	CheckpointID   string      `json:"checkpoint_id"`
	JobID          string      `json:"job_id"`
	Version        int         `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	Phase          Phase       `json:"phase"`
	TotalItems     int         `json:"total_items"`
	CompletedItems int         `json:"completed_items"`
	Reason         Reason      `json:"reason"`
	IntegrityHash  string      `json:"integrity_hash"`
	Compression    Compression `json:"compression"`
	Final          bool        `json:"final"`
}

// WorkItemRecord wraps an opaque work item with its stable id.
type WorkItemRecord struct {
	ID   string          `json:"id"`
	Item json.RawMessage `json:"item"`
}

// InProgressRecord tracks one item currently assigned to an agent.
type InProgressRecord struct {
	ItemID        string    `json:"item_id"`
	AgentID       string    `json:"agent_id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// CompletedRecord is a finished item with its result.
type CompletedRecord struct {
	Item        WorkItemRecord  `json:"item"`
	Result      json.RawMessage `json:"result"`
	CompletedAt time.Time       `json:"completed_at"`
}

// FailedRecord is an item that exhausted retries within the map phase
// (but has not necessarily been DLQ'd yet at checkpoint time).
type FailedRecord struct {
	Item       WorkItemRecord `json:"item"`
	Error      string         `json:"error"`
	FailedAt   time.Time      `json:"failed_at"`
	RetryCount int            `json:"retry_count"`
}

// WorkItemState is the four-way partition of a job's work items,
// matching spec §3's invariant that each item appears in exactly one
// collection.
type WorkItemState struct {
	Pending       []WorkItemRecord            `json:"pending"`
	InProgress    map[string]InProgressRecord `json:"in_progress"`
	Completed     []CompletedRecord           `json:"completed"`
	Failed        []FailedRecord              `json:"failed"`
	CurrentBatch  []string                    `json:"current_batch,omitempty"`
}

// TotalCount sums every collection's cardinality.
func (s WorkItemState) TotalCount() int {
	return len(s.Pending) + len(s.InProgress) + len(s.Completed) + len(s.Failed)
}

// AgentRecord is one active agent's assignment and accumulated state.
type AgentRecord struct {
	AgentID    string          `json:"agent_id"`
	ItemID     string          `json:"item_id"`
	WorktreeID string          `json:"worktree_id"`
	State      string          `json:"state"`
	Results    json.RawMessage `json:"results,omitempty"`
}

// ExecutionState is the job's phase progress and accumulated results.
type ExecutionState struct {
	CurrentPhase   Phase                      `json:"current_phase"`
	PhaseStartedAt time.Time                  `json:"phase_started_at"`
	PhaseResults   map[Phase]json.RawMessage  `json:"phase_results"`
	ScopeVariables map[string]json.RawMessage `json:"scope_variables"`
}

// VariableState carries the variable store's contents at checkpoint
// time, separated by scope.
type VariableState struct {
	WorkflowVariables map[string]json.RawMessage `json:"workflow_variables"`
	CapturedOutputs   map[string]json.RawMessage `json:"captured_outputs"`
	EnvironmentSnapshot map[string]string        `json:"environment_snapshot"`
	PerItemBindings   map[string]map[string]json.RawMessage `json:"per_item_bindings"`
}

// ResourceState tracks agent/worktree accounting at checkpoint time.
type ResourceState struct {
	AllowedAgents    int   `json:"allowed_agents"`
	ActiveAgents     int   `json:"active_agents"`
	WorktreesCreated int   `json:"worktrees_created"`
	WorktreesCleaned int   `json:"worktrees_cleaned"`
	DiskUsageBytes   int64 `json:"disk_usage_bytes"`
}

// ErrorState is the cumulative error bookkeeping for the job.
type ErrorState struct {
	ErrorCount      int      `json:"error_count"`
	DLQReferences   []string `json:"dlq_references"`
	LastError       string   `json:"last_error"`
	ThresholdTripped bool    `json:"threshold_tripped"`
}

// Snapshot is the full, self-contained checkpoint payload.
type Snapshot struct {
	Metadata       Metadata        `json:"metadata"`
	ExecutionState ExecutionState  `json:"execution_state"`
	WorkItemState  WorkItemState   `json:"work_item_state"`
	AgentState     []AgentRecord   `json:"agent_state"`
	VariableState  VariableState   `json:"variable_state"`
	ResourceState  ResourceState   `json:"resource_state"`
	ErrorState     ErrorState      `json:"error_state"`
}

// IndexEntry is one row of a job's checkpoints/{job_id}/_index blob.
type IndexEntry struct {
	CheckpointID string    `json:"checkpoint_id"`
	CreatedAt    time.Time `json:"created_at"`
	Reason       Reason    `json:"reason"`
	Final        bool      `json:"final"`
}
