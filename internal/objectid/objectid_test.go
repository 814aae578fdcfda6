package objectid

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestHexRoundtrip(t *testing.T) {
	var raw [Len]byte
	for i := range raw {
		raw[i] = byte(i)
	}
	id := FromBytes(raw)

	hex := id.Hex()
	if len(hex) != HexLen {
		t.Fatalf("hex length = %d, want %d", len(hex), HexLen)
	}
	parsed, err := FromHex(hex)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if parsed != id {
		t.Fatalf("roundtrip mismatch: %s != %s", parsed, id)
	}
}

func TestFromHexWhitespaceTrimmed(t *testing.T) {
	hex := strings.Repeat("a", HexLen)
	id, err := FromHex("  " + hex + "  ")
	if err != nil {
		t.Fatalf("FromHex with whitespace: %v", err)
	}
	if id.Hex() != hex {
		t.Fatalf("got %s, want %s", id.Hex(), hex)
	}
}

func TestFromHexInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", "abc"},
		{"bad chars", strings.Repeat("g", HexLen)},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromHex(tt.input); err == nil {
				t.Fatalf("FromHex(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestShard(t *testing.T) {
	tests := []struct {
		first byte
		want  string
	}{
		{0xab, "ab"},
		{0x05, "05"},
		{0x00, "00"},
		{0xff, "ff"},
	}
	for _, tt := range tests {
		var raw [Len]byte
		raw[0] = tt.first
		if got := FromBytes(raw).Shard(); got != tt.want {
			t.Errorf("shard(%#x) = %s, want %s", tt.first, got, tt.want)
		}
	}
}

func TestEnvelopeFormat(t *testing.T) {
	payload := []byte("test")
	env := Envelope(KindBlob, payload)

	if string(env[:5]) != "CTXO1" {
		t.Fatalf("magic = %q", env[:5])
	}
	if env[5] != byte(KindBlob) {
		t.Fatalf("kind = %d", env[5])
	}
	if n := binary.LittleEndian.Uint64(env[6:14]); n != 4 {
		t.Fatalf("declared length = %d", n)
	}
	if string(env[14:]) != "test" {
		t.Fatalf("payload = %q", env[14:])
	}
}

func TestParseEnvelope(t *testing.T) {
	kind, payload, err := ParseEnvelope(Envelope(KindTyped, []byte("data")))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if kind != KindTyped || string(payload) != "data" {
		t.Fatalf("got kind=%d payload=%q", kind, payload)
	}
}

func TestParseEnvelopeRejectsDamage(t *testing.T) {
	good := Envelope(KindBlob, []byte("hello"))

	truncated := good[:len(good)-1]
	if _, _, err := ParseEnvelope(truncated); err == nil {
		t.Fatal("truncated envelope accepted")
	}

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'
	if _, _, err := ParseEnvelope(badMagic); err == nil {
		t.Fatal("bad magic accepted")
	}

	badKind := append([]byte(nil), good...)
	badKind[5] = 9
	if _, _, err := ParseEnvelope(badKind); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestHashDeterministic(t *testing.T) {
	if HashBlob([]byte("x")) != HashBlob([]byte("x")) {
		t.Fatal("same content hashed differently")
	}
	if HashBlob([]byte("a")) == HashBlob([]byte("b")) {
		t.Fatal("different content hashed identically")
	}
}

func TestKindDistinguishesHashes(t *testing.T) {
	data := []byte("same bytes")
	if HashBlob(data) == HashTyped(data) {
		t.Fatal("blob and typed hashes collide for identical payloads")
	}
}

func TestEmptyBlobHasStableID(t *testing.T) {
	empty := HashBlob(nil)
	if empty != HashBlob([]byte{}) {
		t.Fatal("empty blob id unstable")
	}
	if empty == HashBlob([]byte{0}) {
		t.Fatal("empty blob collides with one-byte blob")
	}
}
