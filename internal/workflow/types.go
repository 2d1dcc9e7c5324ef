// Package workflow defines the in-memory workflow tree the orchestrator
// executes: a setup phase, a map phase over a work-item collection, and a
// reduce phase, each a list of steps drawn from a small closed set of step
// kinds (component section 6 of the design).
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Definition is a normalized workflow: setup runs once, map runs once per
// work item across a bounded pool of agents, reduce runs once over the
// aggregated map results.
type Definition struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Setup  []Step     `json:"setup,omitempty" yaml:"setup,omitempty"`
	Map    *MapPhase  `json:"map,omitempty" yaml:"map,omitempty"`
	Reduce []Step     `json:"reduce,omitempty" yaml:"reduce,omitempty"`
}

// MapPhase describes the work-item source and the per-item sub-workflow.
type MapPhase struct {
	// Items is either a literal JSON array of work items or, when
	// ItemsFromCommand is set, produced by running that command and
	// parsing its stdout as a JSON array.
	Items            []json.RawMessage `json:"items,omitempty" yaml:"items,omitempty"`
	ItemsFromCommand string            `json:"items_from_command,omitempty" yaml:"items_from_command,omitempty"`

	AgentWorkflow []Step       `json:"agent_workflow" yaml:"agent_workflow"`
	MaxParallel   int          `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
	RetryPolicy   *RetryPolicy `json:"retry_policy,omitempty" yaml:"retry_policy,omitempty"`
	OnFailure     *OnFailure   `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Timeout       *Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// StepKind discriminates the Step sum type.
type StepKind string

const (
	StepShell      StepKind = "shell"
	StepClaude     StepKind = "claude"
	StepGoalSeek   StepKind = "goal_seek"
	StepValidation StepKind = "validation"
)

// Step is a tagged union over the four step kinds the workflow tree
// supports. Exactly one of the kind-specific fields is populated,
// matching Kind. Every step may declare Capture, OnFailure, and
// CommitRequired regardless of kind.
type Step struct {
	Kind StepKind `json:"kind" yaml:"kind"`

	Shell      *ShellStep      `json:"shell,omitempty" yaml:"shell,omitempty"`
	Claude     *ClaudeStep     `json:"claude,omitempty" yaml:"claude,omitempty"`
	GoalSeek   *GoalSeekStep   `json:"goal_seek,omitempty" yaml:"goal_seek,omitempty"`
	Validation *ValidationStep `json:"validation,omitempty" yaml:"validation,omitempty"`

	// Capture names the variable this step's output is bound to, visible
	// to later steps in the same sub-workflow via the variable store.
	Capture string `json:"capture,omitempty" yaml:"capture,omitempty"`

	OnFailure *FailureHandler `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`

	// CommitRequired is carried onto the orchestrator's Step; the agent
	// task does not check whether the step produced a VCS commit.
	CommitRequired bool `json:"commit_required,omitempty" yaml:"commit_required,omitempty"`
}

// ShellStep runs an arbitrary command through the Command Executor.
type ShellStep struct {
	Cmd     string            `json:"cmd" yaml:"cmd"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout *Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ClaudeStep runs an LLM-CLI command; otherwise identical in shape to
// ShellStep because it is dispatched through the same Command Executor
// surface with a different backend resolver.
type ClaudeStep struct {
	Cmd     string            `json:"cmd" yaml:"cmd"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout *Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// GoalSeekStep declares a Goal, a Validate command, and MaxAttempts.
// Lowering copies these onto the orchestrator's Step but leaves its Cmd
// empty, and the agent task runs only Cmd: no goal-seek loop runs and
// Validate is not executed.
type GoalSeekStep struct {
	Goal        string `json:"goal" yaml:"goal"`
	Validate    string `json:"validate" yaml:"validate"`
	MaxAttempts int    `json:"max_attempts" yaml:"max_attempts"`
}

// OnIncomplete names the strategy a Validation step applies when its score
// is below Threshold but above zero.
type OnIncomplete string

const (
	OnIncompleteFail  OnIncomplete = "fail"
	OnIncompleteRetry OnIncomplete = "retry"
	OnIncompleteSkip  OnIncomplete = "skip"
)

// ValidationStep declares a Command, a Threshold score in [0,1], and an
// OnIncomplete strategy. Lowering copies Command and Threshold onto the
// orchestrator's Step but leaves its Cmd empty, and the agent task runs
// only Cmd: Command is not executed, no score is parsed or compared
// with Threshold, and OnIncomplete is not applied.
type ValidationStep struct {
	Command      string       `json:"command" yaml:"command"`
	Threshold    float64      `json:"threshold" yaml:"threshold"`
	OnIncomplete OnIncomplete `json:"on_incomplete,omitempty" yaml:"on_incomplete,omitempty"`
}

// HandlerStrategy names how a FailureHandler disposes of a failed step.
type HandlerStrategy string

const (
	HandlerRecover      HandlerStrategy = "recover"
	HandlerFallback     HandlerStrategy = "fallback"
	HandlerPropagate    HandlerStrategy = "propagate"
	HandlerRetryOriginal HandlerStrategy = "retry_original"
)

// FailureHandler runs when a step fails, with an extended scope exposing
// error.message, error.attempt, and error.correlation_id.
type FailureHandler struct {
	Strategy            HandlerStrategy `json:"strategy" yaml:"strategy"`
	Steps               []Step          `json:"steps,omitempty" yaml:"steps,omitempty"`
	MaxAttempts         int             `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	HandlerFailureFatal bool            `json:"handler_failure_fatal,omitempty" yaml:"handler_failure_fatal,omitempty"`
}

// OnFailureAction names the job-level disposition after an item exhausts
// local recovery and lands in the DLQ.
type OnFailureAction string

const (
	OnFailureStop     OnFailureAction = "stop"
	OnFailureContinue OnFailureAction = "continue"
	OnFailureFallback OnFailureAction = "fallback"
)

// OnFailure is the map-phase job-level failure policy.
type OnFailure struct {
	Action  OnFailureAction `json:"action" yaml:"action"`
	Command string          `json:"command,omitempty" yaml:"command,omitempty"`
}

// RetryPolicy configures the Retry Executor for a phase or step.
type RetryPolicy struct {
	MaxAttempts int       `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Backoff     string    `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	RetryOn     []string  `json:"retry_on,omitempty" yaml:"retry_on,omitempty"`
	Budget      *Duration `json:"budget,omitempty" yaml:"budget,omitempty"`
}

// Duration wraps time.Duration with YAML/JSON string marshalling such as
// "30s" or "5m", the form the rest of the corpus's config structs use.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ValidationIssue is a structured validation error or warning surfaced
// through the work-item validator and the CLI's accumulated-error report.
type ValidationIssue struct {
	Code     string      `json:"code"`
	Path     string      `json:"path"`
	Message  string      `json:"message"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
}

// ValidationResult aggregates validation errors across a work-item batch,
// reported together rather than one at a time (spec §7: "Always —
// reported as a single list of accumulated errors").
type ValidationResult struct {
	Errors []ValidationIssue `json:"errors"`
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// ErrValidation indicates a definition or work-item batch failed validation.
var ErrValidation = errors.New("workflow validation failed")

// MarshalDefinition re-serializes a parsed definition for persistence or
// checkpoint embedding.
func MarshalDefinition(def *Definition) (json.RawMessage, error) {
	if def == nil {
		return nil, nil
	}
	data, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
