package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/iepathos/prodigy/internal/idgen"
)

// exportEnvelope is the self-describing blob written by Export: enough
// context to decode and re-home the payload without consulting the
// source job's index.
type exportEnvelope struct {
	ExportedAt  time.Time   `json:"exported_at"`
	Compression Compression `json:"compression"`
	Metadata    Metadata    `json:"metadata"`
	Payload     []byte      `json:"payload"`
}

// Export loads a checkpoint and writes a single self-describing file to
// path on fs, independent of the storage backend's key namespace.
func (m *Manager) Export(ctx context.Context, fs afero.Fs, jobID, checkpointID, path string) error {
	raw, err := m.backend.Get(ctx, checkpointKey(jobID, checkpointID))
	if err != nil {
		return fmt.Errorf("loading checkpoint for export: %w", err)
	}

	snap, err := m.Load(ctx, jobID, checkpointID)
	if err != nil {
		return err
	}

	envelope := exportEnvelope{
		ExportedAt:  time.Now(),
		Compression: m.compression,
		Metadata:    snap.Metadata,
		Payload:     raw,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding export envelope: %w", err)
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// Import reads a self-describing export file and writes its payload
// into jobID's checkpoint namespace under a freshly assigned
// checkpoint_id, returning that new ID.
func (m *Manager) Import(ctx context.Context, fs afero.Fs, jobID, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("reading export file: %w", err)
	}

	var envelope exportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("%w: decoding export envelope: %v", ErrCorrupted, err)
	}

	decoded, err := decompress(envelope.Compression, envelope.Payload)
	if err != nil {
		return "", fmt.Errorf("%w: decompressing imported payload: %v", ErrCorrupted, err)
	}
	var snap Snapshot
	if err := decode(decoded, &snap); err != nil {
		return "", fmt.Errorf("%w: decoding imported payload: %v", ErrCorrupted, err)
	}

	newID := idgen.ULID()
	snap.Metadata.CheckpointID = newID
	snap.Metadata.JobID = jobID
	snap.Metadata.IntegrityHash = ""

	reencoded, err := encode(snap)
	if err != nil {
		return "", fmt.Errorf("re-encoding imported checkpoint: %w", err)
	}
	snap.Metadata.IntegrityHash = integrityHash(reencoded)
	reencoded, err = encode(snap)
	if err != nil {
		return "", fmt.Errorf("re-encoding imported checkpoint: %w", err)
	}

	payload, err := compress(m.compression, reencoded)
	if err != nil {
		return "", fmt.Errorf("compressing imported checkpoint: %w", err)
	}

	if err := m.backend.Put(ctx, checkpointKey(jobID, newID), payload); err != nil {
		return "", fmt.Errorf("writing imported checkpoint: %w", err)
	}

	if err := m.appendIndex(ctx, jobID, IndexEntry{
		CheckpointID: newID,
		CreatedAt:    time.Now(),
		Reason:       ReasonManual,
		Final:        envelope.Metadata.Final,
	}); err != nil {
		return "", fmt.Errorf("updating checkpoint index: %w", err)
	}

	return newID, nil
}
