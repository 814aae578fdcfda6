package index

import (
	"encoding/binary"
	"errors"
	"os"
	"sort"
	"strconv"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// Key and value byte layouts. Like the object codec these are deterministic:
// fixed-width little-endian integers, length prefixes, sorted sets.

// nameKey is namespace-byte || name-utf8.
func nameKey(ns Namespace, name string) []byte {
	key := make([]byte, 0, 1+len(name))
	key = append(key, byte(ns))
	key = append(key, name...)
	return key
}

// adjacencyKey is kind-byte || len-u16-le || id-utf8 || direction-byte || label-byte.
func adjacencyKey(node model.NodeID, dir Direction, label model.EdgeLabel) []byte {
	key := make([]byte, 0, 1+2+len(node.ID)+1+1)
	key = append(key, byte(node.Kind))
	key = binary.LittleEndian.AppendUint16(key, uint16(len(node.ID)))
	key = append(key, node.ID...)
	key = append(key, byte(dir))
	key = append(key, byte(label))
	return key
}

// encodeIDSet lays out a count-prefixed sequence of 32-byte ids.
func encodeIDSet(ids []objectid.ID) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(ids)))
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func decodeIDSet(raw []byte) ([]objectid.ID, error) {
	if raw == nil {
		return nil, nil
	}
	if len(raw) < 4 {
		return nil, ctxerr.New(ctxerr.KindDeserialization, "truncated id set")
	}
	n := binary.LittleEndian.Uint32(raw[:4])
	rest := raw[4:]
	if uint32(len(rest)) != n*objectid.Len {
		return nil, ctxerr.New(ctxerr.KindDeserialization, "id set length mismatch")
	}
	ids := make([]objectid.ID, n)
	for i := uint32(0); i < n; i++ {
		copy(ids[i][:], rest[i*objectid.Len:])
	}
	return ids, nil
}

// encodeNodeSet lays out a count-prefixed sequence of
// (kind-byte || len-u16-le || id-utf8) entries.
func encodeNodeSet(nodes []model.NodeID) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(nodes)))
	for _, n := range nodes {
		out = append(out, byte(n.Kind))
		out = binary.LittleEndian.AppendUint16(out, uint16(len(n.ID)))
		out = append(out, n.ID...)
	}
	return out
}

func decodeNodeSet(raw []byte) ([]model.NodeID, error) {
	if raw == nil {
		return nil, nil
	}
	if len(raw) < 4 {
		return nil, ctxerr.New(ctxerr.KindDeserialization, "truncated node set")
	}
	n := binary.LittleEndian.Uint32(raw[:4])
	rest := raw[4:]
	nodes := make([]model.NodeID, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(rest) < 3 {
			return nil, ctxerr.New(ctxerr.KindDeserialization, "truncated node entry")
		}
		kind := model.NodeKind(rest[0])
		idLen := binary.LittleEndian.Uint16(rest[1:3])
		rest = rest[3:]
		if len(rest) < int(idLen) {
			return nil, ctxerr.New(ctxerr.KindDeserialization, "truncated node id")
		}
		nodes = append(nodes, model.NodeID{Kind: kind, ID: string(rest[:idLen])})
		rest = rest[idLen:]
	}
	if len(rest) != 0 {
		return nil, ctxerr.New(ctxerr.KindDeserialization, "trailing bytes in node set")
	}
	return nodes, nil
}

func sortNodes(nodes []model.NodeID) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Kind != nodes[j].Kind {
			return nodes[i].Kind < nodes[j].Kind
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// encodeCommitInfo: root tree, count-prefixed batch ids, count-prefixed
// narrative paths, three optional snapshot ids.
func encodeCommitInfo(info CommitInfo) []byte {
	out := append([]byte(nil), info.RootTree[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(info.EdgeBatches)))
	for _, id := range info.EdgeBatches {
		out = append(out, id[:]...)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(info.NarrativeRefs)))
	for _, path := range info.NarrativeRefs {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(path)))
		out = append(out, path...)
	}
	for _, snap := range []*objectid.ID{info.CargoSnapshot, info.RustSnapshot, info.DiagnosticsSnapshot} {
		if snap == nil {
			out = append(out, 0)
		} else {
			out = append(out, 1)
			out = append(out, snap[:]...)
		}
	}
	return out
}

func decodeCommitInfo(raw []byte) (CommitInfo, error) {
	fail := func() (CommitInfo, error) {
		return CommitInfo{}, ctxerr.New(ctxerr.KindDeserialization, "malformed commit info")
	}
	var info CommitInfo
	if len(raw) < objectid.Len+4 {
		return fail()
	}
	copy(info.RootTree[:], raw)
	raw = raw[objectid.Len:]

	n := binary.LittleEndian.Uint32(raw[:4])
	raw = raw[4:]
	if uint32(len(raw)) < n*objectid.Len {
		return fail()
	}
	for i := uint32(0); i < n; i++ {
		var id objectid.ID
		copy(id[:], raw)
		raw = raw[objectid.Len:]
		info.EdgeBatches = append(info.EdgeBatches, id)
	}

	if len(raw) < 4 {
		return fail()
	}
	n = binary.LittleEndian.Uint32(raw[:4])
	raw = raw[4:]
	for i := uint32(0); i < n; i++ {
		if len(raw) < 4 {
			return fail()
		}
		l := binary.LittleEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < l {
			return fail()
		}
		info.NarrativeRefs = append(info.NarrativeRefs, string(raw[:l]))
		raw = raw[l:]
	}

	for _, slot := range []**objectid.ID{&info.CargoSnapshot, &info.RustSnapshot, &info.DiagnosticsSnapshot} {
		if len(raw) < 1 {
			return fail()
		}
		present := raw[0] == 1
		raw = raw[1:]
		if present {
			if len(raw) < objectid.Len {
				return fail()
			}
			var id objectid.ID
			copy(id[:], raw)
			raw = raw[objectid.Len:]
			*slot = &id
		}
	}
	if len(raw) != 0 {
		return fail()
	}
	return info, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func asCtxErr(err error, target **ctxerr.Error) bool {
	return errors.As(err, target)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
