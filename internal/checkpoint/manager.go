package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/iepathos/prodigy/internal/idgen"
	"github.com/iepathos/prodigy/internal/storage"
)

const schemaVersion = 1

// Manager is the Checkpoint Manager (component F), backed by a
// storage.Backend. It never interprets the orchestrator's live state
// beyond the Snapshot shape — callers assemble the Snapshot and hand it
// to Create.
type Manager struct {
	backend     storage.Backend
	compression Compression
	policy      Policy
}

// NewManager constructs a Manager. compression is applied to every
// checkpoint this Manager creates; pass CompressionNone to disable it.
func NewManager(backend storage.Backend, compression Compression, policy Policy) *Manager {
	return &Manager{backend: backend, compression: compression, policy: policy}
}

func checkpointKey(jobID, checkpointID string) string {
	return fmt.Sprintf("checkpoints/%s/%s", jobID, checkpointID)
}

func indexKey(jobID string) string {
	return fmt.Sprintf("checkpoints/%s/_index", jobID)
}

// Create serializes snap, computes its integrity hash, compresses it,
// writes it under checkpoints/{job_id}/{checkpoint_id}, and updates the
// job's index. It then applies retention and returns the new
// checkpoint's ID.
func (m *Manager) Create(ctx context.Context, jobID string, snap Snapshot, reason Reason, final bool) (string, error) {
	checkpointID := idgen.ULID()
	now := snap.Metadata.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	snap.Metadata.CheckpointID = checkpointID
	snap.Metadata.JobID = jobID
	snap.Metadata.Version = schemaVersion
	snap.Metadata.CreatedAt = now
	snap.Metadata.Reason = reason
	snap.Metadata.Compression = m.compression
	snap.Metadata.Final = final
	snap.Metadata.CompletedItems = len(snap.WorkItemState.Completed)
	snap.Metadata.TotalItems = snap.WorkItemState.TotalCount()

	if err := validateInvariants(snap); err != nil {
		return "", err
	}

	// Hash is computed with IntegrityHash cleared so the stored hash
	// doesn't include itself.
	snap.Metadata.IntegrityHash = ""
	encoded, err := encode(snap)
	if err != nil {
		return "", fmt.Errorf("encoding checkpoint: %w", err)
	}
	hash := integrityHash(encoded)
	snap.Metadata.IntegrityHash = hash

	encoded, err = encode(snap)
	if err != nil {
		return "", fmt.Errorf("encoding checkpoint: %w", err)
	}

	payload, err := compress(m.compression, encoded)
	if err != nil {
		return "", fmt.Errorf("compressing checkpoint: %w", err)
	}

	if err := m.backend.Put(ctx, checkpointKey(jobID, checkpointID), payload); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}

	if err := m.appendIndex(ctx, jobID, IndexEntry{
		CheckpointID: checkpointID,
		CreatedAt:    now,
		Reason:       reason,
		Final:        final,
	}); err != nil {
		return "", fmt.Errorf("updating checkpoint index: %w", err)
	}

	if err := m.evict(ctx, jobID); err != nil {
		return "", fmt.Errorf("evicting checkpoints: %w", err)
	}

	return checkpointID, nil
}

// Load fetches, decompresses, decodes, and verifies a checkpoint's
// integrity hash and invariants.
func (m *Manager) Load(ctx context.Context, jobID, checkpointID string) (Snapshot, error) {
	raw, err := m.backend.Get(ctx, checkpointKey(jobID, checkpointID))
	if err != nil {
		if storage.IsNotFound(err) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("loading checkpoint: %w", err)
	}

	// The leading byte of raw is the compression tag (spec §6); decompress
	// reads it directly, so the blob is self-describing regardless of
	// this Manager's currently configured compression.
	decoded, err := decompress(m.compression, raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var snap Snapshot
	if err := decode(decoded, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if snap.Metadata.Version != schemaVersion {
		return Snapshot{}, fmt.Errorf("%w: schema version %d unsupported (want %d)", ErrCorrupted, snap.Metadata.Version, schemaVersion)
	}

	wantHash := snap.Metadata.IntegrityHash
	snap.Metadata.IntegrityHash = ""
	reencoded, err := encode(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if integrityHash(reencoded) != wantHash {
		return Snapshot{}, fmt.Errorf("%w: integrity hash mismatch", ErrCorrupted)
	}
	snap.Metadata.IntegrityHash = wantHash

	if err := validateInvariants(snap); err != nil {
		return Snapshot{}, err
	}

	return snap, nil
}

// Resume loads a checkpoint and applies a ResumeStrategy to its work
// item state before handing it back to the orchestrator.
func (m *Manager) Resume(ctx context.Context, jobID, checkpointID string, strategy ResumeStrategy) (Snapshot, error) {
	snap, err := m.Load(ctx, jobID, checkpointID)
	if err != nil {
		return Snapshot{}, err
	}
	return Apply(strategy, snap), nil
}

// Index returns a job's checkpoint index, most recent first.
func (m *Manager) Index(ctx context.Context, jobID string) ([]IndexEntry, error) {
	raw, err := m.backend.Get(ctx, indexKey(jobID))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint index: %w", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding checkpoint index: %w", err)
	}
	return entries, nil
}

func (m *Manager) appendIndex(ctx context.Context, jobID string, entry IndexEntry) error {
	entries, err := m.Index(ctx, jobID)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return m.putIndex(ctx, jobID, entries)
}

func (m *Manager) putIndex(ctx context.Context, jobID string, entries []IndexEntry) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return m.backend.Put(ctx, indexKey(jobID), encoded)
}

// evict applies MaxCheckpoints/MaxAge retention. Eviction runs on
// create only, never implicitly on read, per spec §4.F. The final
// checkpoint (if marked) is always kept.
func (m *Manager) evict(ctx context.Context, jobID string) error {
	if m.policy.MaxCheckpoints <= 0 && m.policy.MaxAge <= 0 {
		return nil
	}

	entries, err := m.Index(ctx, jobID)
	if err != nil {
		return err
	}
	// entries is sorted most-recent-first by appendIndex.

	now := time.Now()
	var keep, drop []IndexEntry
	for i, e := range entries {
		expired := m.policy.MaxAge > 0 && now.Sub(e.CreatedAt) > m.policy.MaxAge
		overCount := m.policy.MaxCheckpoints > 0 && i >= m.policy.MaxCheckpoints
		if e.Final || (!expired && !overCount) {
			keep = append(keep, e)
			continue
		}
		drop = append(drop, e)
	}

	for _, e := range drop {
		if err := m.backend.Delete(ctx, checkpointKey(jobID, e.CheckpointID)); err != nil {
			return err
		}
	}

	if len(drop) == 0 {
		return nil
	}
	return m.putIndex(ctx, jobID, keep)
}

// validateInvariants checks spec §4.F's loaded-checkpoint invariants:
// the four work-item collections sum to total_items, and phase matches
// the presence of phase results.
func validateInvariants(snap Snapshot) error {
	items := snap.WorkItemState
	sum := items.TotalCount()
	if snap.Metadata.TotalItems != 0 && sum != snap.Metadata.TotalItems {
		return &InvariantError{Reason: fmt.Sprintf("work item collections sum to %d, metadata says total_items=%d", sum, snap.Metadata.TotalItems)}
	}

	phase := snap.ExecutionState.CurrentPhase
	if phase == PhaseSetup || phase == "" {
		return nil
	}
	if snap.ExecutionState.PhaseResults == nil {
		return nil
	}
	if phase == PhaseReduce {
		if _, ok := snap.ExecutionState.PhaseResults[PhaseMap]; !ok {
			return &InvariantError{Reason: "phase is Reduce but no Map phase results are present"}
		}
	}
	return nil
}
