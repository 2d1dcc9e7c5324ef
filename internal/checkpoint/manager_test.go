package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/iepathos/prodigy/internal/storage"
)

func testBackend() storage.Backend {
	return storage.NewLocalFS(afero.NewMemMapFs(), "/data")
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		ExecutionState: ExecutionState{
			CurrentPhase:   PhaseMap,
			PhaseStartedAt: time.Now(),
			PhaseResults:   map[Phase]json.RawMessage{},
		},
		WorkItemState: WorkItemState{
			Pending: []WorkItemRecord{{ID: "a"}, {ID: "b"}},
			InProgress: map[string]InProgressRecord{
				"c": {ItemID: "c", AgentID: "agent-1", StartedAt: time.Now()},
			},
			Completed: []CompletedRecord{
				{Item: WorkItemRecord{ID: "d"}, CompletedAt: time.Now()},
			},
		},
	}
}

func TestManager_CreateAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testBackend(), CompressionGzip, Policy{})

	snap := sampleSnapshot()
	id, err := m.Create(ctx, "job-1", snap, ReasonManual, false)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := m.Load(ctx, "job-1", id)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Metadata.TotalItems)
	require.Equal(t, 1, loaded.Metadata.CompletedItems)
	require.Equal(t, PhaseMap, loaded.ExecutionState.CurrentPhase)
	require.NotEmpty(t, loaded.Metadata.IntegrityHash)
}

func TestManager_LoadUnknownCheckpointReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testBackend(), CompressionNone, Policy{})

	_, err := m.Load(ctx, "job-1", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_LoadDetectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	backend := testBackend()
	m := NewManager(backend, CompressionNone, Policy{})

	id, err := m.Create(ctx, "job-1", sampleSnapshot(), ReasonManual, false)
	require.NoError(t, err)

	raw, err := backend.Get(ctx, checkpointKey("job-1", id))
	require.NoError(t, err)
	tampered := append([]byte{}, raw...)
	tampered = append(tampered, byte('x'))
	require.NoError(t, backend.Put(ctx, checkpointKey("job-1", id), tampered))

	_, err = m.Load(ctx, "job-1", id)
	require.Error(t, err)
}

func TestManager_IndexSortedMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testBackend(), CompressionNone, Policy{})

	snap := sampleSnapshot()
	snap.Metadata.CreatedAt = time.Now().Add(-time.Hour)
	_, err := m.Create(ctx, "job-1", snap, ReasonInterval, false)
	require.NoError(t, err)

	snap2 := sampleSnapshot()
	snap2.Metadata.CreatedAt = time.Now()
	id2, err := m.Create(ctx, "job-1", snap2, ReasonManual, false)
	require.NoError(t, err)

	entries, err := m.Index(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, id2, entries[0].CheckpointID)
}

func TestManager_RetentionEvictsOldestExceptFinal(t *testing.T) {
	ctx := context.Background()
	backend := testBackend()
	m := NewManager(backend, CompressionNone, Policy{MaxCheckpoints: 2})

	var ids []string
	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		snap := sampleSnapshot()
		snap.Metadata.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		final := i == 0
		id, err := m.Create(ctx, "job-1", snap, ReasonInterval, final)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := m.Index(ctx, "job-1")
	require.NoError(t, err)

	// The oldest (marked final) must survive even though retention
	// would otherwise evict it for being past MaxCheckpoints.
	found := map[string]bool{}
	for _, e := range entries {
		found[e.CheckpointID] = true
	}
	require.True(t, found[ids[0]], "final checkpoint must be retained")
}

func TestManager_ResumeAppliesStrategy(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testBackend(), CompressionNone, Policy{})

	snap := sampleSnapshot()
	id, err := m.Create(ctx, "job-1", snap, ReasonManual, false)
	require.NoError(t, err)

	resumed, err := m.Resume(ctx, "job-1", id, ValidateAndContinue)
	require.NoError(t, err)
	require.Empty(t, resumed.WorkItemState.InProgress)
	require.Len(t, resumed.WorkItemState.Pending, 3)
}

func TestManager_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := testBackend()
	m := NewManager(backend, CompressionZstd, Policy{})
	fs := afero.NewMemMapFs()

	id, err := m.Create(ctx, "job-1", sampleSnapshot(), ReasonBeforeShutdown, true)
	require.NoError(t, err)

	require.NoError(t, m.Export(ctx, fs, "job-1", id, "/exports/job-1.ckpt"))

	newID, err := m.Import(ctx, fs, "job-2", "/exports/job-1.ckpt")
	require.NoError(t, err)
	require.NotEqual(t, id, newID)

	loaded, err := m.Load(ctx, "job-2", newID)
	require.NoError(t, err)
	require.Equal(t, "job-2", loaded.Metadata.JobID)
	require.Equal(t, newID, loaded.Metadata.CheckpointID)
}
