package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// StepContext contains the execution context needed to generate a
// deterministic step ID, used to correlate retries, handler invocations,
// and checkpoint entries for the same logical step across resumes.
type StepContext struct {
	JobID        string   // job (workflow run) ID
	StepName     string   // step name within the agent sub-workflow
	BranchPath   []string // item/agent path this step ran under, e.g. ["item-42"]
	ForeachIndex int      // index in a foreach iteration (-1 if not in one)
}

// GenerateStepID derives a deterministic step ID from execution context.
// Formula: sha256(job_id + step_name + branch_path + foreach_index)[:16].
//
// Same context always yields the same ID, so a checkpoint resume recomputes
// identical step IDs without needing to persist a separate ID table, and a
// retry of the same step correlates its attempts under one ID.
func GenerateStepID(ctx StepContext) string {
	var parts []string

	parts = append(parts, ctx.JobID)
	parts = append(parts, ctx.StepName)

	if len(ctx.BranchPath) > 0 {
		parts = append(parts, strings.Join(ctx.BranchPath, "/"))
	}

	if ctx.ForeachIndex >= 0 {
		parts = append(parts, fmt.Sprintf("foreach[%d]", ctx.ForeachIndex))
	}

	input := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(input))

	return hex.EncodeToString(hash[:])[:16]
}

// NewStepContext creates a StepContext for a step not under any foreach.
func NewStepContext(jobID, stepName string) StepContext {
	return StepContext{
		JobID:        jobID,
		StepName:     stepName,
		ForeachIndex: -1,
	}
}

// WithBranchPath returns a copy of ctx scoped to the given item/agent path.
func (ctx StepContext) WithBranchPath(path ...string) StepContext {
	ctx.BranchPath = path
	return ctx
}

// WithForeachIndex returns a copy of ctx scoped to the given foreach index.
func (ctx StepContext) WithForeachIndex(index int) StepContext {
	ctx.ForeachIndex = index
	return ctx
}

// AttemptKey formats a step ID and retry attempt number into a single token
// suitable for event correlation IDs and DLQ entry keys.
func AttemptKey(stepID string, attempt int64) string {
	return fmt.Sprintf("%s:%d", stepID, attempt)
}

// ParseAttemptKey extracts the step ID and attempt number from a key
// produced by AttemptKey.
func ParseAttemptKey(key string) (stepID string, attempt int64, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}

	stepID = parts[0]

	if _, err := fmt.Sscanf(parts[1], "%d", &attempt); err != nil {
		return "", 0, false
	}

	return stepID, attempt, true
}
