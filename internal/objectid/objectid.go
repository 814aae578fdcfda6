// Package objectid implements the 32-byte content identifier and the canonical
// envelope that all stored objects are framed and hashed with.
package objectid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"

	"github.com/ctxgraph/ctx/internal/ctxerr"
)

const (
	// Len is the length of an ID in bytes.
	Len = 32
	// HexLen is the length of an ID rendered as hex.
	HexLen = 64
)

// Kind is the envelope discriminant separating raw blobs from typed payloads.
// Identical bytes stored under different kinds hash to different ids.
type Kind byte

const (
	// KindBlob marks raw bytes (file contents, command output, narrative).
	KindBlob Kind = 1
	// KindTyped marks canonically encoded structured values.
	KindTyped Kind = 2
)

// Magic is the 5-byte envelope tag.
var Magic = []byte("CTXO1")

// HeaderLen is the envelope prefix size: magic + kind byte + u64 length.
const HeaderLen = 5 + 1 + 8

// ID is a BLAKE3 hash over an object's canonical envelope.
type ID [Len]byte

// FromBytes builds an ID from raw hash bytes.
func FromBytes(b [Len]byte) ID {
	return ID(b)
}

// FromHex parses a 64-char hex id; upper- and lowercase digits are both
// accepted. Surrounding whitespace is tolerated; anything else is rejected.
func FromHex(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) != HexLen {
		return ID{}, ctxerr.Newf(ctxerr.KindInvalidHex, "expected %d hex chars, got %d", HexLen, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, ctxerr.Wrap(err, ctxerr.KindInvalidHex, "invalid hex id")
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// Hex returns the id as 64 lowercase hex characters.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Shard returns the two-hex-digit subdirectory prefix (first byte).
func (id ID) Shard() string {
	return hex.EncodeToString(id[:1])
}

// Short returns a 12-char prefix for human display.
func (id ID) Short() string {
	return id.Hex()[:12]
}

// IsZero reports whether the id is all zero bytes.
func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return id.Hex()
}

// GoString keeps debug dumps short.
func (id ID) GoString() string {
	return fmt.Sprintf("ID(%s...)", id.Short())
}

// Envelope frames a payload with the canonical header: magic, kind byte, and
// little-endian u64 payload length.
func Envelope(kind Kind, payload []byte) []byte {
	out := make([]byte, 0, HeaderLen+len(payload))
	out = append(out, Magic...)
	out = append(out, byte(kind))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(payload)))
	out = append(out, payload...)
	return out
}

// HashBlob computes the id of raw bytes framed as a blob.
func HashBlob(data []byte) ID {
	return hashEnvelope(Envelope(KindBlob, data))
}

// HashTyped computes the id of a canonically encoded typed payload.
func HashTyped(encoded []byte) ID {
	return hashEnvelope(Envelope(KindTyped, encoded))
}

func hashEnvelope(canonical []byte) ID {
	return ID(blake3.Sum256(canonical))
}

// ParseEnvelope validates and splits envelope bytes into kind and payload.
// The declared length must match the actual payload length exactly.
func ParseEnvelope(data []byte) (Kind, []byte, error) {
	if len(data) < HeaderLen {
		return 0, nil, ctxerr.Newf(ctxerr.KindCorruptedObject, "envelope truncated: %d bytes", len(data))
	}
	if string(data[:5]) != string(Magic) {
		return 0, nil, ctxerr.Newf(ctxerr.KindCorruptedObject, "bad magic %q", data[:5])
	}
	kind := Kind(data[5])
	if kind != KindBlob && kind != KindTyped {
		return 0, nil, ctxerr.Newf(ctxerr.KindCorruptedObject, "unknown object kind %d", data[5])
	}
	declared := binary.LittleEndian.Uint64(data[6:HeaderLen])
	payload := data[HeaderLen:]
	if declared != uint64(len(payload)) {
		return 0, nil, ctxerr.Newf(ctxerr.KindCorruptedObject,
			"declared length %d, payload is %d bytes", declared, len(payload))
	}
	return kind, payload, nil
}
