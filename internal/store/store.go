// Package store implements the content-addressed object store: sharded,
// zstd-compressed, envelope-framed files with deduplication and corruption
// detection on every read.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// MaxBlobSize is the hard cap on blob payloads (100 MiB).
const MaxBlobSize = 100 * 1024 * 1024

// DefaultCompressionLevel is the zstd level used when none is configured.
const DefaultCompressionLevel = 3

// Store is a content-addressed object store rooted at a single directory.
// Objects live at objects/{shard}/{hex-id}; writes are atomic (temp file,
// fsync, rename) so a crash never leaves a half-written final file.
type Store struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Entry describes one stored object as reported by ListAll.
type Entry struct {
	ID      objectid.ID
	Size    int64
	ModTime time.Time
}

// New opens a store rooted at the given directory with the default
// compression level. The directory is created lazily on first put.
func New(root string) *Store {
	s, err := NewWithLevel(root, DefaultCompressionLevel)
	if err != nil {
		// The default level is always valid; this cannot fail.
		panic(err)
	}
	return s
}

// NewWithLevel opens a store with an explicit zstd compression level.
func NewWithLevel(root string, level int) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, ctxerr.Wrap(err, ctxerr.KindCompression, "create zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, ctxerr.Wrap(err, ctxerr.KindCompression, "create zstd decoder")
	}
	return &Store{root: root, encoder: enc, decoder: dec}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) objectPath(id objectid.ID) string {
	return filepath.Join(s.root, id.Shard(), id.Hex())
}

// PutBlob stores raw bytes and returns their id. Blobs over MaxBlobSize are
// rejected with BlobTooLarge. Re-putting existing content is a cheap no-op.
func (s *Store) PutBlob(data []byte) (objectid.ID, error) {
	if len(data) > MaxBlobSize {
		return objectid.ID{}, ctxerr.BlobTooLarge(uint64(len(data)), MaxBlobSize)
	}
	id := objectid.HashBlob(data)
	return id, s.write(id, objectid.Envelope(objectid.KindBlob, data))
}

// PutTyped canonically encodes a value and stores it with the Typed kind.
func (s *Store) PutTyped(v model.Marshaler) (objectid.ID, error) {
	encoded, err := v.MarshalCanonical()
	if err != nil {
		return objectid.ID{}, ctxerr.Wrap(err, ctxerr.KindSerialization, "encode typed object")
	}
	id := objectid.HashTyped(encoded)
	return id, s.write(id, objectid.Envelope(objectid.KindTyped, encoded))
}

// write compresses envelope bytes and lands them atomically, deduplicating
// against an existing file for the same id.
func (s *Store) write(id objectid.ID, envelope []byte) error {
	path := s.objectPath(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	shardDir := filepath.Dir(path)
	if err := os.MkdirAll(shardDir, 0o755); err != nil {
		return ctxerr.Wrapf(err, ctxerr.KindIo, "create shard dir %s", shardDir)
	}

	compressed := s.encoder.EncodeAll(envelope, nil)

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ctxerr.Wrapf(err, ctxerr.KindIo, "create %s", tmp)
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		os.Remove(tmp)
		return ctxerr.Wrapf(err, ctxerr.KindIo, "write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return ctxerr.Wrapf(err, ctxerr.KindIo, "fsync %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return ctxerr.Wrapf(err, ctxerr.KindIo, "close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ctxerr.Wrapf(err, ctxerr.KindIo, "rename %s", tmp)
	}
	syncDir(shardDir)
	return nil
}

// syncDir fsyncs a directory so the rename is durable. Windows cannot open
// directories for sync; the rename itself is still atomic there.
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// GetBlob reads, verifies, and returns the raw bytes stored under id.
func (s *Store) GetBlob(id objectid.ID) ([]byte, error) {
	return s.read(id, objectid.KindBlob)
}

// GetTyped reads and verifies the typed payload under id, decoding it into v.
func (s *Store) GetTyped(id objectid.ID, v model.Unmarshaler) error {
	payload, err := s.read(id, objectid.KindTyped)
	if err != nil {
		return err
	}
	return v.UnmarshalCanonical(payload)
}

// GetTypedRaw reads and verifies a typed object without decoding it. Used by
// integrity audits that only care about envelope and hash validity.
func (s *Store) GetTypedRaw(id objectid.ID) ([]byte, error) {
	return s.read(id, objectid.KindTyped)
}

// read loads the compressed file, validates the envelope against the
// requested kind, and re-hashes the canonical bytes against the id.
func (s *Store) read(id objectid.ID, want objectid.Kind) ([]byte, error) {
	path := s.objectPath(id)
	compressed, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ctxerr.ObjectNotFound(id.Hex())
		}
		return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "read %s", path)
	}

	envelope, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, ctxerr.Wrapf(err, ctxerr.KindCompression, "decompress %s", path)
	}

	kind, payload, err := s.parseEnvelope(path, envelope)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, ctxerr.CorruptedObject(path, fmt.Sprintf("kind %d, wanted %d", kind, want))
	}

	var actual objectid.ID
	switch kind {
	case objectid.KindBlob:
		actual = objectid.HashBlob(payload)
	case objectid.KindTyped:
		actual = objectid.HashTyped(payload)
	}
	if actual != id {
		return nil, ctxerr.HashMismatch(id.Hex(), actual.Hex()).With("path", path)
	}
	return payload, nil
}

func (s *Store) parseEnvelope(path string, envelope []byte) (objectid.Kind, []byte, error) {
	kind, payload, err := objectid.ParseEnvelope(envelope)
	if err != nil {
		var ce *ctxerr.Error
		if errors.As(err, &ce) {
			return 0, nil, ctxerr.CorruptedObject(path, ce.Message)
		}
		return 0, nil, ctxerr.CorruptedObject(path, err.Error())
	}
	return kind, payload, nil
}

// Exists checks for the object file without verifying its contents.
func (s *Store) Exists(id objectid.ID) bool {
	_, err := os.Stat(s.objectPath(id))
	return err == nil
}

// ListAll walks every shard directory and reports each stored object.
// Temp files and anything else with an extension are skipped; names that are
// not valid hex ids are errors.
func (s *Store) ListAll() ([]Entry, error) {
	shards, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "read store root %s", s.root)
	}

	var entries []Entry
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		shardDir := filepath.Join(s.root, shard.Name())
		files, err := os.ReadDir(shardDir)
		if err != nil {
			return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "read shard %s", shardDir)
		}
		for _, f := range files {
			if f.IsDir() || strings.Contains(f.Name(), ".") {
				continue
			}
			id, err := objectid.FromHex(f.Name())
			if err != nil {
				return nil, ctxerr.Wrapf(err, ctxerr.KindInvalidHex,
					"unexpected file in object store: %s", filepath.Join(shardDir, f.Name()))
			}
			info, err := f.Info()
			if err != nil {
				return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "stat %s", f.Name())
			}
			entries = append(entries, Entry{ID: id, Size: info.Size(), ModTime: info.ModTime()})
		}
	}
	return entries, nil
}

// Delete removes an object unconditionally. This is an unsafe primitive:
// only GC may call it, after establishing unreachability.
func (s *Store) Delete(id objectid.ID) error {
	path := s.objectPath(id)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ctxerr.ObjectNotFound(id.Hex())
		}
		return ctxerr.Wrapf(err, ctxerr.KindIo, "delete %s", path)
	}
	return nil
}
