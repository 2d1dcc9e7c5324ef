package dlq

import (
	"context"
	"fmt"
)

// RetryRequest configures lifting DLQ entries back into a fresh job
// run.
type RetryRequest struct {
	Filter     Filter
	Parallel   int
	MaxRetries int
}

// RetryResult reports which entries were lifted back to pending and
// which were skipped as ineligible.
type RetryResult struct {
	Lifted  []Entry
	Skipped []Entry
}

// Retry selects entries matching req.Filter and ReprocessEligible,
// removing them from the DLQ and returning them for the orchestrator
// to requeue as pending work items in a fresh job run. It does not
// itself dispatch work — lifting entries back into execution is the
// orchestrator's responsibility (component K), since only it can
// allocate agents and worktrees.
func (q *Queue) Retry(ctx context.Context, jobID string, req RetryRequest) (RetryResult, error) {
	eligible := true
	filter := req.Filter
	filter.ReprocessEligible = &eligible

	entries, err := q.List(ctx, jobID, filter)
	if err != nil {
		return RetryResult{}, err
	}

	var result RetryResult
	for _, e := range entries {
		if req.MaxRetries > 0 && e.Attempts >= req.MaxRetries {
			result.Skipped = append(result.Skipped, e)
			continue
		}
		if err := q.backend.Delete(ctx, entryKey(jobID, e.EntryID)); err != nil {
			return result, fmt.Errorf("lifting DLQ entry %s: %w", e.EntryID, err)
		}
		result.Lifted = append(result.Lifted, e)
	}
	return result, nil
}
