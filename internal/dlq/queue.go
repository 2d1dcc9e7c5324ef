package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iepathos/prodigy/internal/idgen"
	"github.com/iepathos/prodigy/internal/storage"
)

// Queue is the Dead-Letter Queue (component I), backed by a
// storage.Backend.
type Queue struct {
	backend storage.Backend
}

// NewQueue constructs a Queue.
func NewQueue(backend storage.Backend) *Queue {
	return &Queue{backend: backend}
}

func entryKey(jobID, entryID string) string {
	return fmt.Sprintf("dlq/%s/%s", jobID, entryID)
}

func entryPrefix(jobID string) string {
	return fmt.Sprintf("dlq/%s/", jobID)
}

// Enqueue durably records a terminally-failed item. It assigns
// EntryID if the caller left it blank.
func (q *Queue) Enqueue(ctx context.Context, entry Entry) (string, error) {
	if entry.EntryID == "" {
		entry.EntryID = idgen.ULID()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding DLQ entry: %w", err)
	}
	if err := q.backend.Put(ctx, entryKey(entry.JobID, entry.EntryID), data); err != nil {
		return "", fmt.Errorf("writing DLQ entry: %w", err)
	}
	return entry.EntryID, nil
}

// List returns every entry for a job matching filter, oldest first. A
// zero-value Filter matches everything.
func (q *Queue) List(ctx context.Context, jobID string, filter Filter) ([]Entry, error) {
	keys, err := q.backend.List(ctx, entryPrefix(jobID))
	if err != nil {
		return nil, fmt.Errorf("listing DLQ entries: %w", err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		raw, err := q.backend.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading DLQ entry %s: %w", key, err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decoding DLQ entry %s: %w", key, err)
		}
		if filter.matches(e) {
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FirstFailedAt.Before(entries[j].FirstFailedAt)
	})
	return entries, nil
}

// Inspect fetches one entry by item ID. If more than one entry shares
// an item ID (re-enqueued after a retry that failed again), the most
// recently failed is returned.
func (q *Queue) Inspect(ctx context.Context, jobID, itemID string) (Entry, error) {
	entries, err := q.List(ctx, jobID, Filter{ItemID: itemID})
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("no DLQ entry for item %s", itemID)
	}
	latest := entries[0]
	for _, e := range entries[1:] {
		if e.LastFailedAt.After(latest.LastFailedAt) {
			latest = e
		}
	}
	return latest, nil
}

// Purge deletes every entry last-failed before olderThan and returns
// how many were removed.
func (q *Queue) Purge(ctx context.Context, jobID string, olderThan time.Time) (int, error) {
	entries, err := q.List(ctx, jobID, Filter{FailedBefore: olderThan})
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := q.backend.Delete(ctx, entryKey(jobID, e.EntryID)); err != nil {
			return 0, fmt.Errorf("deleting DLQ entry %s: %w", e.EntryID, err)
		}
	}
	return len(entries), nil
}

// ExportFormat selects the output shape Export produces.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// Export renders a job's DLQ entries in the requested format.
func (q *Queue) Export(ctx context.Context, jobID string, filter Filter, format ExportFormat) ([]byte, error) {
	entries, err := q.List(ctx, jobID, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportCSV:
		var b strings.Builder
		b.WriteString("entry_id,item_id,terminal_error,attempts,first_failed_at,last_failed_at,reprocess_eligible\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "%s,%s,%q,%d,%s,%s,%t\n",
				e.EntryID, e.ItemID, e.TerminalError, e.Attempts,
				e.FirstFailedAt.Format(time.RFC3339), e.LastFailedAt.Format(time.RFC3339),
				e.ReprocessEligible)
		}
		return []byte(b.String()), nil
	default:
		return json.MarshalIndent(entries, "", "  ")
	}
}
