// Package orchestrator implements the MapReduce Orchestrator (component
// K): the state machine that drives validated work items through an
// agent sub-workflow under a bounded worker pool, checkpointing,
// reducing, and emitting events throughout.
package orchestrator

import (
	"time"

	"github.com/iepathos/prodigy/internal/retry"
)

// StepKind is the tag of a Workflow step's variant.
type StepKind string

const (
	StepShell      StepKind = "shell"
	StepClaude     StepKind = "claude"
	StepGoalSeek   StepKind = "goal_seek"
	StepValidation StepKind = "validation"
)

// HandlerStrategy names what an on_failure handler does once it runs.
type HandlerStrategy string

const (
	Recover       HandlerStrategy = "recover"
	Fallback      HandlerStrategy = "fallback"
	Propagate     HandlerStrategy = "propagate"
	RetryOriginal HandlerStrategy = "retry_original"
)

// FailureHandler runs when a step fails, with an extended scope
// carrying error.message / error.attempt / error.correlation_id.
type FailureHandler struct {
	Strategy HandlerStrategy
	MaxRetry int // for RetryOriginal
	Steps    []Step
}

// Step is one unit of work inside a sub-workflow (the agent workflow A,
// or the setup/reduce sub-workflows), per spec §6.
type Step struct {
	ID   string
	Kind StepKind

	Cmd     string            // Shell, Claude
	Env     map[string]string // Shell, Claude
	Goal    string            // GoalSeek
	Validate string           // GoalSeek: command used to check the goal
	MaxAttempts int           // GoalSeek

	ValidationCmd string  // Validation
	Threshold     float64 // Validation
	OnIncomplete  string  // Validation: what to do if below threshold

	Timeout        time.Duration
	Capture        []string
	OnFailure      []FailureHandler
	CommitRequired bool
}

// MapSpec configures the map phase: the work items (already validated
// by component H upstream), the per-item agent sub-workflow, and the
// phase's own concurrency/retry/failure policy.
//
// RetryPolicy is the map phase's declared retry_policy (spec §4.E/§6),
// threaded straight through to the Retry Executor that wraps each step
// of the agent sub-workflow, rather than collapsed to an attempt count.
type MapSpec struct {
	Items         []WorkItem
	AgentWorkflow []Step
	MaxParallel   int
	RetryPolicy   retry.Policy
	OnFailure     OnFailurePolicy
	Timeout       time.Duration
}

// OnFailureAction names what the map phase does once cumulative
// failures cross ErrorThreshold.
type OnFailureAction string

const (
	OnFailureContinueJob OnFailureAction = "continue"
	OnFailureFailJob     OnFailureAction = "fail"
	OnFailureFallbackJob OnFailureAction = "fallback"
)

// OnFailurePolicy is the map phase's job-level on_failure declaration:
// an action, plus (for Fallback) the recovery command to run.
type OnFailurePolicy struct {
	Action  OnFailureAction
	Command string
}

// Workflow is the normalized job input per spec §6: setup steps, the
// map phase, and reduce steps.
type Workflow struct {
	Setup  []Step
	Map    MapSpec
	Reduce []Step
}
