package dlq

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/iepathos/prodigy/internal/storage"
)

func testQueue() *Queue {
	return NewQueue(storage.NewLocalFS(afero.NewMemMapFs(), "/data"))
}

func TestQueue_EnqueueAndList(t *testing.T) {
	ctx := context.Background()
	q := testQueue()

	id, err := q.Enqueue(ctx, Entry{
		JobID:         "job-1",
		ItemID:        "item-1",
		TerminalError: "syntax error",
		Attempts:      1,
		FirstFailedAt: time.Now(),
		LastFailedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := q.List(ctx, "job-1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "item-1", entries[0].ItemID)
}

func TestQueue_ListFiltersByReprocessEligible(t *testing.T) {
	ctx := context.Background()
	q := testQueue()

	_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "a", ReprocessEligible: true})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "b", ReprocessEligible: false})
	require.NoError(t, err)

	eligible := true
	entries, err := q.List(ctx, "job-1", Filter{ReprocessEligible: &eligible})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].ItemID)
}

func TestQueue_InspectReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	q := testQueue()

	_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "x", LastFailedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "x", LastFailedAt: time.Now()})
	require.NoError(t, err)

	entry, err := q.Inspect(ctx, "job-1", "x")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), entry.LastFailedAt, time.Minute)
}

func TestQueue_InspectUnknownItemErrors(t *testing.T) {
	ctx := context.Background()
	q := testQueue()
	_, err := q.Inspect(ctx, "job-1", "missing")
	require.Error(t, err)
}

func TestQueue_PurgeRemovesOlderEntries(t *testing.T) {
	ctx := context.Background()
	q := testQueue()

	_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "old", LastFailedAt: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "new", LastFailedAt: time.Now()})
	require.NoError(t, err)

	n, err := q.Purge(ctx, "job-1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	entries, err := q.List(ctx, "job-1", Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].ItemID)
}

func TestQueue_ExportJSON(t *testing.T) {
	ctx := context.Background()
	q := testQueue()
	_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "a", TerminalError: "boom"})
	require.NoError(t, err)

	data, err := q.Export(ctx, "job-1", Filter{}, ExportJSON)
	require.NoError(t, err)
	require.Contains(t, string(data), "boom")
}

func TestQueue_ExportCSV(t *testing.T) {
	ctx := context.Background()
	q := testQueue()
	_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: "a", TerminalError: "boom"})
	require.NoError(t, err)

	data, err := q.Export(ctx, "job-1", Filter{}, ExportCSV)
	require.NoError(t, err)
	require.Contains(t, string(data), "entry_id,item_id")
	require.Contains(t, string(data), "\"boom\"")
}
