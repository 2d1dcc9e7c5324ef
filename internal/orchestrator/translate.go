package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/retry"
	"github.com/iepathos/prodigy/internal/workflow"
)

// FromDefinition lowers a parsed workflow.Definition into the flat,
// execution-ready Workflow this package's scheduler runs. It compiles
// each phase's steps through workflow.CompileAgentWorkflow first so every
// step carries the same deterministic ID across a checkpoint resume.
func FromDefinition(def *workflow.Definition, jobID string, items []WorkItem) (Workflow, error) {
	setup, err := lowerSteps(def.Setup, jobID)
	if err != nil {
		return Workflow{}, fmt.Errorf("setup: %w", err)
	}

	reduce, err := lowerSteps(def.Reduce, jobID)
	if err != nil {
		return Workflow{}, fmt.Errorf("reduce: %w", err)
	}

	wf := Workflow{Setup: setup, Reduce: reduce}

	if def.Map != nil {
		agentWorkflow, err := lowerSteps(def.Map.AgentWorkflow, jobID)
		if err != nil {
			return Workflow{}, fmt.Errorf("map.agent_workflow: %w", err)
		}

		wf.Map = MapSpec{
			Items:         items,
			AgentWorkflow: agentWorkflow,
			MaxParallel:   def.Map.MaxParallel,
			RetryPolicy:   lowerMapRetryPolicy(def.Map.RetryPolicy),
			OnFailure:     lowerOnFailure(def.Map.OnFailure),
		}
		if def.Map.Timeout != nil {
			wf.Map.Timeout = def.Map.Timeout.Duration
		}
	}

	return wf, nil
}

// ResolveMapItems turns a map phase's work-item source into WorkItems: a
// literal JSON array is parsed directly, and items_from_command is run
// through exec and its stdout parsed as a JSON array, per the workflow
// definition's two supported item sources.
func ResolveMapItems(ctx context.Context, def *workflow.Definition, exec command.Executor, dir string) ([]WorkItem, error) {
	if def.Map == nil {
		return nil, nil
	}

	raw := def.Map.Items
	if def.Map.ItemsFromCommand != "" {
		req := command.StepRequest(def.Map.ItemsFromCommand, nil, dir, 0)
		res, err := exec.Execute(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("items_from_command: %w", err)
		}
		if !res.Success {
			return nil, fmt.Errorf("items_from_command exited %d", res.ExitCode)
		}
		var parsed []json.RawMessage
		if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
			return nil, fmt.Errorf("items_from_command: parsing stdout as a JSON array: %w", err)
		}
		raw = parsed
	}

	items := make([]WorkItem, 0, len(raw))
	for i, r := range raw {
		var data map[string]interface{}
		if err := json.Unmarshal(r, &data); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		id := fmt.Sprintf("item-%d", i)
		if v, ok := data["id"]; ok {
			if s, ok := v.(string); ok && s != "" {
				id = s
			}
		}
		items = append(items, WorkItem{ID: id, Data: data})
	}
	return items, nil
}

func lowerSteps(steps []workflow.Step, jobID string) ([]Step, error) {
	if len(steps) == 0 {
		return nil, nil
	}
	compiled, err := workflow.CompileAgentWorkflow(steps, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]Step, 0, len(compiled))
	for _, c := range compiled {
		step, err := lowerStep(c.ID, c.Step)
		if err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, nil
}

func lowerStep(id string, s workflow.Step) (Step, error) {
	step := Step{
		ID:             id,
		Kind:           StepKind(s.Kind),
		CommitRequired: s.CommitRequired,
	}
	if s.Capture != "" {
		step.Capture = []string{s.Capture}
	}

	switch s.Kind {
	case workflow.StepShell:
		if s.Shell == nil {
			return Step{}, fmt.Errorf("step %s: shell kind missing shell payload", id)
		}
		step.Cmd = s.Shell.Cmd
		step.Env = s.Shell.Env
		if s.Shell.Timeout != nil {
			step.Timeout = s.Shell.Timeout.Duration
		}
	case workflow.StepClaude:
		if s.Claude == nil {
			return Step{}, fmt.Errorf("step %s: claude kind missing claude payload", id)
		}
		step.Cmd = s.Claude.Cmd
		step.Env = s.Claude.Env
		if s.Claude.Timeout != nil {
			step.Timeout = s.Claude.Timeout.Duration
		}
	case workflow.StepGoalSeek:
		if s.GoalSeek == nil {
			return Step{}, fmt.Errorf("step %s: goal_seek kind missing goal_seek payload", id)
		}
		step.Goal = s.GoalSeek.Goal
		step.Validate = s.GoalSeek.Validate
		step.MaxAttempts = s.GoalSeek.MaxAttempts
	case workflow.StepValidation:
		if s.Validation == nil {
			return Step{}, fmt.Errorf("step %s: validation kind missing validation payload", id)
		}
		step.ValidationCmd = s.Validation.Command
		step.Threshold = s.Validation.Threshold
		step.OnIncomplete = string(s.Validation.OnIncomplete)
	default:
		return Step{}, fmt.Errorf("step %s: unknown kind %q", id, s.Kind)
	}

	if s.OnFailure != nil {
		handler, err := lowerHandler(*s.OnFailure)
		if err != nil {
			return Step{}, err
		}
		step.OnFailure = []FailureHandler{handler}
	}

	return step, nil
}

func lowerHandler(h workflow.FailureHandler) (FailureHandler, error) {
	steps := make([]Step, 0, len(h.Steps))
	for i, s := range h.Steps {
		// Handler steps are ad hoc recovery actions, not resumable
		// agent-workflow steps, so they get a locally-scoped id rather
		// than a job-correlated one via CompileAgentWorkflow.
		step, err := lowerStep(fmt.Sprintf("handler-%d", i), s)
		if err != nil {
			return FailureHandler{}, err
		}
		steps = append(steps, step)
	}
	return FailureHandler{
		Strategy: HandlerStrategy(h.Strategy),
		MaxRetry: h.MaxAttempts,
		Steps:    steps,
	}, nil
}

// lowerMapRetryPolicy threads a workflow's declared map.retry_policy
// through to a full retry.Policy: attempts, backoff kind, retry_on
// matchers, and budget, instead of collapsing it to an attempt count.
func lowerMapRetryPolicy(p *workflow.RetryPolicy) retry.Policy {
	policy := retry.DefaultPolicy()
	if p == nil {
		return policy
	}

	if p.MaxAttempts > 0 {
		policy.Attempts = p.MaxAttempts
	}
	if p.Backoff != "" {
		policy.Backoff = retry.BackoffKind(p.Backoff)
	}
	policy.RetryOn = lowerRetryOn(p.RetryOn)
	if p.Budget != nil {
		policy.RetryBudget = p.Budget.Duration
	}
	return policy
}

// lowerRetryOn turns a workflow's retry_on string list into Matchers:
// a recognized ErrorClass name (network, timeout, server_error,
// rate_limit) becomes a ClassMatcher, anything else is compiled as a
// literal-text PatternMatcher against the error's message.
func lowerRetryOn(names []string) []retry.Matcher {
	if len(names) == 0 {
		return nil
	}
	classes := map[string]retry.ErrorClass{
		string(retry.ErrorNetwork):     retry.ErrorNetwork,
		string(retry.ErrorTimeout):     retry.ErrorTimeout,
		string(retry.ErrorServerError): retry.ErrorServerError,
		string(retry.ErrorRateLimit):   retry.ErrorRateLimit,
	}
	matchers := make([]retry.Matcher, 0, len(names))
	for _, name := range names {
		if class, ok := classes[name]; ok {
			matchers = append(matchers, retry.ClassMatcher(class))
			continue
		}
		matchers = append(matchers, retry.PatternMatcher(regexp.MustCompile(regexp.QuoteMeta(name))))
	}
	return matchers
}

// lowerOnFailure preserves both the job-level on_failure action and,
// for Fallback, the recovery command to run, per spec §7's
// Fallback{command}.
func lowerOnFailure(of *workflow.OnFailure) OnFailurePolicy {
	if of == nil {
		return OnFailurePolicy{Action: OnFailureContinueJob}
	}
	switch of.Action {
	case workflow.OnFailureStop:
		return OnFailurePolicy{Action: OnFailureFailJob}
	case workflow.OnFailureFallback:
		return OnFailurePolicy{Action: OnFailureFallbackJob, Command: of.Command}
	default:
		return OnFailurePolicy{Action: OnFailureContinueJob}
	}
}
