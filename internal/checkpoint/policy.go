package checkpoint

import "time"

// Policy configures when the orchestrator should take an interval
// checkpoint, and how many/how long finished checkpoints are retained.
type Policy struct {
	IntervalItems    int           // checkpoint after N completed items
	IntervalDuration time.Duration // or after this much wall clock since last checkpoint

	MaxCheckpoints int           // 0 means unbounded
	MaxAge         time.Duration // 0 means unbounded
}

// ShouldCheckpoint reports whether the orchestrator should take an
// interval checkpoint now, given how many items have completed and how
// long it's been since the last checkpoint.
func (p Policy) ShouldCheckpoint(itemsSince int, lastCheckpointAt time.Time, now time.Time) bool {
	if p.IntervalItems > 0 && itemsSince >= p.IntervalItems {
		return true
	}
	if p.IntervalDuration > 0 && !lastCheckpointAt.IsZero() && now.Sub(lastCheckpointAt) >= p.IntervalDuration {
		return true
	}
	return false
}
