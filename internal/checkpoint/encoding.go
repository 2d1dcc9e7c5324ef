package checkpoint

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// encode serializes a Snapshot in the canonical encoding: json.Marshal
// over a struct with stable field order is already canonical for our
// purposes since Go's encoding/json emits struct fields in declaration
// order, not map iteration order; every map in Snapshot is keyed by
// string, and json.Marshal sorts map keys lexicographically at every
// nesting level (including map values that are structs or further
// maps), so the same Snapshot always encodes to the same bytes.
// json.RawMessage values are copied in as given, not re-sorted.
func encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decode(data []byte, s *Snapshot) error {
	return json.Unmarshal(data, s)
}

// integrityHash computes the content hash stored in Metadata.IntegrityHash,
// taken over the encoded bytes before compression.
func integrityHash(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// compressionTag is the single-byte prefix every stored blob carries so
// decompress can self-describe without consulting metadata.
type compressionTag byte

const (
	tagNone compressionTag = 0x00
	tagGzip compressionTag = 0x01
	tagZstd compressionTag = 0x02
	tagLz4  compressionTag = 0x03
)

func tagFor(kind Compression) (compressionTag, error) {
	switch kind {
	case "", CompressionNone:
		return tagNone, nil
	case CompressionGzip:
		return tagGzip, nil
	case CompressionZstd:
		return tagZstd, nil
	case CompressionLz4:
		return tagLz4, nil
	default:
		return 0, fmt.Errorf("unknown compression kind %q", kind)
	}
}

// compress applies the named compression to encoded payload bytes and
// prepends the single-byte tag identifying it, per spec §6's durable
// blob layout.
func compress(kind Compression, data []byte) ([]byte, error) {
	tag, err := tagFor(kind)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch kind {
	case "", CompressionNone:
		body = data
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		body = enc.EncodeAll(data, nil)
	case CompressionLz4:
		// No lz4 codec appears anywhere in the example corpus; DEFLATE
		// via the standard library stands in for it here (see DESIGN.md).
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	}

	return append([]byte{byte(tag)}, body...), nil
}

// decompress reads the leading tag byte to determine how the remainder
// was compressed; kind is ignored (kept for call-site symmetry with
// compress and to centralize the one place that trusts metadata over
// the tag, if ever needed) but ordinarily callers should just pass the
// blob's own declared kind for documentation purposes.
func decompress(kind Compression, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty blob has no compression tag")
	}
	tag := compressionTag(data[0])
	body := data[1:]

	switch tag {
	case tagNone:
		return body, nil
	case tagGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case tagZstd:
		dec, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case tagLz4:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown compression tag 0x%02x", tag)
	}
}
