package workflow

import "testing"

func TestCompileAgentWorkflowAssignsDeterministicIDs(t *testing.T) {
	steps := []Step{
		{Kind: StepShell, Shell: &ShellStep{Cmd: "echo hi"}},
		{Kind: StepClaude, Claude: &ClaudeStep{Cmd: "claude -p fix"}},
	}

	compiled, err := CompileAgentWorkflow(steps, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled) != 2 {
		t.Fatalf("expected 2 compiled steps, got %d", len(compiled))
	}

	again, err := CompileAgentWorkflow(steps, "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compiled[0].ID != again[0].ID || compiled[1].ID != again[1].ID {
		t.Error("expected deterministic step IDs across recompilation")
	}
	if compiled[0].ID == compiled[1].ID {
		t.Error("expected distinct IDs for distinct steps")
	}
}

func TestCompileAgentWorkflowRejectsMismatchedPayload(t *testing.T) {
	steps := []Step{
		{Kind: StepShell, Claude: &ClaudeStep{Cmd: "x"}},
	}

	if _, err := CompileAgentWorkflow(steps, "job-1"); err == nil {
		t.Fatal("expected error for missing shell payload")
	}
}

func TestCompileAgentWorkflowRejectsUnknownKind(t *testing.T) {
	steps := []Step{{Kind: "bogus"}}

	if _, err := CompileAgentWorkflow(steps, "job-1"); err == nil {
		t.Fatal("expected error for unknown step kind")
	}
}

func TestCompileAgentWorkflowValidatesGoalSeekAttempts(t *testing.T) {
	steps := []Step{
		{Kind: StepGoalSeek, GoalSeek: &GoalSeekStep{Goal: "g", Validate: "v", MaxAttempts: 0}},
	}

	if _, err := CompileAgentWorkflow(steps, "job-1"); err == nil {
		t.Fatal("expected error for non-positive max_attempts")
	}
}
