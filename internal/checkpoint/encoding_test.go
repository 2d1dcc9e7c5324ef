package checkpoint

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	data, err := encode(snap)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out Snapshot
	if err := decode(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ExecutionState.CurrentPhase != snap.ExecutionState.CurrentPhase {
		t.Errorf("phase mismatch after round trip")
	}
}

func TestEncode_IsDeterministic(t *testing.T) {
	snap := sampleSnapshot()
	a, err := encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	b, err := encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected identical encodings for the same snapshot")
	}
}

func TestIntegrityHash_ChangesWithContent(t *testing.T) {
	a, _ := encode(sampleSnapshot())
	snap2 := sampleSnapshot()
	snap2.WorkItemState.Pending = append(snap2.WorkItemState.Pending, WorkItemRecord{ID: "extra"})
	b, _ := encode(snap2)

	if integrityHash(a) == integrityHash(b) {
		t.Error("expected different hashes for different content")
	}
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")
	for _, kind := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionLz4} {
		compressed, err := compress(kind, data)
		if err != nil {
			t.Fatalf("%s: compress: %v", kind, err)
		}
		decompressed, err := decompress(kind, compressed)
		if err != nil {
			t.Fatalf("%s: decompress: %v", kind, err)
		}
		if !bytes.Equal(decompressed, data) {
			t.Errorf("%s: round trip mismatch", kind)
		}
	}
}
