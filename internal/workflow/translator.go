package workflow

import "fmt"

// ExecutionStep pairs a Step with the deterministic ID the orchestrator
// uses to correlate retries, on_failure handler invocations, and
// checkpoint entries for that step across a resume.
type ExecutionStep struct {
	ID   string
	Step Step
}

// CompileAgentWorkflow validates each step's kind-specific payload is
// present and assigns deterministic step IDs scoped to jobID, so that
// resuming a job from a checkpoint recomputes identical IDs without
// persisting an ID table of its own.
func CompileAgentWorkflow(steps []Step, jobID string) ([]ExecutionStep, error) {
	compiled := make([]ExecutionStep, 0, len(steps))

	for i, step := range steps {
		if err := validateStepPayload(step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		ctx := NewStepContext(jobID, fmt.Sprintf("step-%d", i))
		compiled = append(compiled, ExecutionStep{
			ID:   GenerateStepID(ctx),
			Step: step,
		})
	}

	return compiled, nil
}

func validateStepPayload(step Step) error {
	switch step.Kind {
	case StepShell:
		if step.Shell == nil {
			return fmt.Errorf("kind %q requires a shell payload", step.Kind)
		}
		if step.Shell.Cmd == "" {
			return fmt.Errorf("shell step requires cmd")
		}
	case StepClaude:
		if step.Claude == nil {
			return fmt.Errorf("kind %q requires a claude payload", step.Kind)
		}
		if step.Claude.Cmd == "" {
			return fmt.Errorf("claude step requires cmd")
		}
	case StepGoalSeek:
		if step.GoalSeek == nil {
			return fmt.Errorf("kind %q requires a goal_seek payload", step.Kind)
		}
		if step.GoalSeek.MaxAttempts <= 0 {
			return fmt.Errorf("goal_seek step requires max_attempts > 0")
		}
	case StepValidation:
		if step.Validation == nil {
			return fmt.Errorf("kind %q requires a validation payload", step.Kind)
		}
		if step.Validation.Command == "" {
			return fmt.Errorf("validation step requires command")
		}
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
	return nil
}
