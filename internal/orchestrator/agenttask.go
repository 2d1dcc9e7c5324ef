package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iepathos/prodigy/internal/command"
	"github.com/iepathos/prodigy/internal/retry"
	"github.com/iepathos/prodigy/internal/telemetry"
	"github.com/iepathos/prodigy/internal/variables"
)

// AgentTaskParams bundles everything RunAgentTask needs to drive one
// work item through the agent sub-workflow A.
type AgentTaskParams struct {
	AgentID      string
	Item         WorkItem
	WorktreePath string
	Steps        []Step
	WorkflowVars *variables.Store
	Exec         command.Executor
	Retry        *retry.Executor
	Timeouts     CommandTimeouts
	Interp       *variables.Interpolator
	Bus          *Bus
	JobID        string
	Tracer       *telemetry.Tracer

	// MapRetryPolicy is the map phase's declared retry_policy (spec
	// §4.E/§6). A zero value (Attempts == 0) means the workflow didn't
	// declare one, so runStep falls back to policyForKind's per-kind
	// defaults.
	MapRetryPolicy retry.Policy
	// Breakers shares one circuit breaker per step ID across every
	// work item's agent task. May be nil to disable circuit-breaking.
	Breakers *breakerRegistry
}

// RunAgentTask implements agent task T(i, w) from spec §4.K: layer a
// per-agent variable scope, run each step through the Retry Executor
// with a command-type-appropriate policy, run on_failure handlers on
// step failure, and report the final outcome.
func RunAgentTask(ctx context.Context, p AgentTaskParams) Outcome {
	var span *telemetry.AgentTaskSpan
	if p.Tracer != nil {
		ctx, span = p.Tracer.StartAgentTask(ctx, p.JobID, p.AgentID, p.Item.ID)
	}

	p.Bus.AgentStarted(ctx, p.AgentID, p.Item.ID)

	captured := variables.New()
	itemScope := variables.FromMap(map[string]interface{}{
		"item":    p.Item.Data,
		"item_id": p.Item.ID,
	})

	for _, step := range p.Steps {
		if span != nil {
			span.SetStep(step.ID, string(step.Kind))
		}
		scope := variables.MergeAll(p.WorkflowVars, captured, itemScope)

		result, err := runStepWithHandlers(ctx, p, step, scope, captured)
		if err != nil {
			outcome := classifyStepFailure(err, p.MapRetryPolicy)
			p.Bus.AgentCompleted(ctx, p.AgentID, p.Item.ID, outcome.Kind)
			outcome.Item = p.Item
			if span != nil {
				span.SetOutcome(string(outcome.Kind), 0)
				span.End(err)
			}
			return outcome
		}

		for _, name := range step.Capture {
			if v, ok := result[name]; ok {
				captured.Set(name, v)
			}
		}
	}

	p.Bus.AgentCompleted(ctx, p.AgentID, p.Item.ID, OutcomeSuccess)
	if span != nil {
		span.SetOutcome(string(OutcomeSuccess), 0)
		span.End(nil)
	}
	return Outcome{Kind: OutcomeSuccess, Item: p.Item, Result: captured.Raw()}
}

// runStepWithHandlers runs one step; on failure, walks its on_failure
// handlers in declaration order until one resolves the failure or
// all are exhausted.
func runStepWithHandlers(ctx context.Context, p AgentTaskParams, step Step, scope *variables.Store, captured *variables.Store) (map[string]interface{}, error) {
	result, err := runStep(ctx, p, step, scope)
	if err == nil {
		return result, nil
	}

	// Each failure gets its own correlation id, distinct from the item's
	// sortable id, so repeated failures on the same item can still be
	// told apart in handler logs and downstream error reports.
	correlationID := uuid.NewString()

	for _, handler := range step.OnFailure {
		handlerScope := variables.MergeAll(scope, variables.FromMap(map[string]interface{}{
			"error": map[string]interface{}{
				"message":        err.Error(),
				"attempt":        1,
				"correlation_id": correlationID,
			},
		}))

		switch handler.Strategy {
		case Recover:
			if _, herr := runSteps(ctx, p, handler.Steps, handlerScope, captured); herr == nil {
				return map[string]interface{}{}, nil
			}
		case Fallback:
			out, herr := runSteps(ctx, p, handler.Steps, handlerScope, captured)
			if herr == nil {
				return out, nil
			}
		case RetryOriginal:
			for attempt := 0; attempt < handler.MaxRetry; attempt++ {
				if result, rerr := runStep(ctx, p, step, scope); rerr == nil {
					return result, nil
				} else {
					err = rerr
				}
			}
		case Propagate:
			return nil, err
		}
	}

	return nil, err
}

func runSteps(ctx context.Context, p AgentTaskParams, steps []Step, scope *variables.Store, captured *variables.Store) (map[string]interface{}, error) {
	var out map[string]interface{}
	for _, step := range steps {
		result, err := runStep(ctx, p, step, scope)
		if err != nil {
			return nil, err
		}
		out = result
		for _, name := range step.Capture {
			if v, ok := result[name]; ok {
				captured.Set(name, v)
			}
		}
	}
	return out, nil
}

func runStep(ctx context.Context, p AgentTaskParams, step Step, scope *variables.Store) (map[string]interface{}, error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = p.Timeouts.forKind(step.Kind)
	}

	rendered, _, err := p.Interp.Render(step.Cmd, scope)
	if err != nil {
		return nil, fmt.Errorf("step %s: interpolating: %w", step.ID, err)
	}

	p.Bus.CommandStarted(ctx, p.AgentID, p.Item.ID, step.ID)

	policy := policyForKind(step.Kind, p.MapRetryPolicy)
	breaker := p.Breakers.forCommand(step.ID)
	res, _, err := retry.Do(ctx, p.Retry, policy, breaker, func(stepCtx context.Context) (command.Result, error) {
		req := command.StepRequest(rendered, step.Env, p.WorktreePath, timeout)
		res, execErr := p.Exec.Execute(stepCtx, req)
		if execErr != nil {
			return res, execErr
		}
		if !res.Success {
			return res, &command.NonZeroExitError{Code: res.ExitCode}
		}
		return res, nil
	})

	p.Bus.CommandCompleted(ctx, p.AgentID, p.Item.ID, step.ID, err == nil)

	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, err)
	}

	out := make(map[string]interface{}, len(step.Capture))
	for _, name := range step.Capture {
		out[name] = res.Stdout
	}
	return out, nil
}

// policyForKind gives each step kind a retry posture grounded in spec
// §4.K's stated command timeout defaults: shell commands fail fast
// with a short fixed backoff, Claude invocations get more attempts
// with exponential backoff (they commonly fail on transient rate
// limits), and goal-seek steps get the policy set below (a Step's
// MaxAttempts is not consulted). A workflow that declares its own
// map.retry_policy overrides all of that uniformly across the agent
// sub-workflow's steps.
func policyForKind(kind StepKind, override retry.Policy) retry.Policy {
	if override.Attempts > 0 {
		return override
	}
	switch kind {
	case StepClaude:
		p := retry.DefaultPolicy()
		p.Attempts = 4
		p.Backoff = retry.BackoffExponential
		p.InitialDelay = 2 * time.Second
		p.MaxDelay = 30 * time.Second
		p.Jitter = true
		p.JitterFactor = 0.2
		return p
	case StepGoalSeek:
		p := retry.DefaultPolicy()
		p.Attempts = 1
		return p
	default:
		p := retry.DefaultPolicy()
		p.Attempts = 2
		p.Backoff = retry.BackoffFixed
		p.InitialDelay = time.Second
		return p
	}
}

// classifyStepFailure decides whether the item-level scheduler in
// scheduler.go should retry the whole item (TransientFailure) or send
// it straight to the DLQ (TerminalFailure). Command timeouts are
// always transient; beyond that, a workflow's declared retry_on
// matchers (spec §4.E's Network/Timeout/ServerError/RateLimit/Pattern
// classes) decide, same as they do for the per-step Retry Executor.
func classifyStepFailure(err error, policy retry.Policy) Outcome {
	var timedOut *command.TimedOutError
	if errors.As(err, &timedOut) {
		return Outcome{Kind: OutcomeTransientFailure, Err: err}
	}
	if len(policy.RetryOn) > 0 && policy.MatchesAny(err) {
		return Outcome{Kind: OutcomeTransientFailure, Err: err}
	}
	return Outcome{Kind: OutcomeTerminalFailure, Err: err}
}
