// Package dlq implements the Dead-Letter Queue (component I): an
// append-only durable log of terminally-failed work items, one entry
// per item, stored under dlq/{job_id}/ via the storage backend.
package dlq

import (
	"encoding/json"
	"strings"
	"time"
)

// Entry is a terminally-failed item, matching spec §3's DLQ entry
// shape.
type Entry struct {
	EntryID           string          `json:"entry_id"`
	JobID             string          `json:"job_id"`
	Item              json.RawMessage `json:"item"`
	ItemID            string          `json:"item_id"`
	TerminalError     string          `json:"terminal_error"`
	Attempts          int             `json:"attempts"`
	FirstFailedAt     time.Time       `json:"first_failed_at"`
	LastFailedAt      time.Time       `json:"last_failed_at"`
	ReprocessEligible bool            `json:"reprocess_eligible"`
}

// Filter narrows List/Retry/Purge to a subset of entries.
type Filter struct {
	ItemID            string
	ErrorContains     string
	ReprocessEligible *bool
	FailedAfter       time.Time
	FailedBefore      time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.ItemID != "" && e.ItemID != f.ItemID {
		return false
	}
	if f.ErrorContains != "" && !strings.Contains(strings.ToLower(e.TerminalError), strings.ToLower(f.ErrorContains)) {
		return false
	}
	if f.ReprocessEligible != nil && e.ReprocessEligible != *f.ReprocessEligible {
		return false
	}
	if !f.FailedAfter.IsZero() && e.LastFailedAt.Before(f.FailedAfter) {
		return false
	}
	if !f.FailedBefore.IsZero() && e.LastFailedAt.After(f.FailedBefore) {
		return false
	}
	return true
}
