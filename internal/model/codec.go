package model

import (
	"encoding/binary"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// The canonical codec: integers are little-endian fixed width, strings and
// byte slices are u32-length-prefixed, sequences are u32-count-prefixed,
// optional values carry a presence byte, and sum types a one-byte
// discriminant. Field order matches the struct declarations in types.go.

// Marshaler is implemented by every storable typed value.
type Marshaler interface {
	MarshalCanonical() ([]byte, error)
}

// Unmarshaler is implemented by pointers to storable typed values.
type Unmarshaler interface {
	UnmarshalCanonical(data []byte) error
}

type writer struct {
	buf []byte
}

func (w *writer) u8(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) id(id objectid.ID) {
	w.buf = append(w.buf, id[:]...)
}

func (w *writer) optID(id *objectid.ID) {
	if id == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.id(*id)
}

func (w *writer) optStr(s *string) {
	if s == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.str(*s)
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail(msg string) {
	if r.err == nil {
		r.err = ctxerr.New(ctxerr.KindDeserialization, msg)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.fail("truncated payload")
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }
func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bytes() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) str() string {
	return string(r.bytes())
}

func (r *reader) id() objectid.ID {
	b := r.take(objectid.Len)
	var id objectid.ID
	if b != nil {
		copy(id[:], b)
	}
	return id
}

func (r *reader) optID() *objectid.ID {
	if r.u8() == 0 {
		return nil
	}
	id := r.id()
	return &id
}

func (r *reader) optStr() *string {
	if r.u8() == 0 {
		return nil
	}
	s := r.str()
	return &s
}

// finish returns the accumulated error, rejecting trailing bytes so the
// encoding stays bijective.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return ctxerr.Newf(ctxerr.KindDeserialization, "%d trailing bytes after value", len(r.data)-r.off)
	}
	return nil
}

// Tree

// MarshalCanonical encodes the tree. Entries must already be in canonical
// (name-sorted) order; NewTree guarantees that.
func (t Tree) MarshalCanonical() ([]byte, error) {
	w := &writer{}
	w.u32(uint32(len(t.Entries)))
	for _, e := range t.Entries {
		w.str(e.Name)
		w.u8(byte(e.Kind))
		w.id(e.ID)
	}
	return w.buf, nil
}

// UnmarshalCanonical decodes a tree.
func (t *Tree) UnmarshalCanonical(data []byte) error {
	r := &reader{data: data}
	n := r.u32()
	entries := make([]TreeEntry, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		entries = append(entries, TreeEntry{
			Name: r.str(),
			Kind: TreeEntryKind(r.u8()),
			ID:   r.id(),
		})
	}
	if err := r.finish(); err != nil {
		return err
	}
	t.Entries = entries
	return nil
}

// NodeID

func encodeNodeID(w *writer, n NodeID) {
	w.u8(byte(n.Kind))
	w.str(n.ID)
}

func decodeNodeID(r *reader) NodeID {
	return NodeID{Kind: NodeKind(r.u8()), ID: r.str()}
}

// MarshalCanonical encodes a node id.
func (n NodeID) MarshalCanonical() ([]byte, error) {
	w := &writer{}
	encodeNodeID(w, n)
	return w.buf, nil
}

// UnmarshalCanonical decodes a node id.
func (n *NodeID) UnmarshalCanonical(data []byte) error {
	r := &reader{data: data}
	*n = decodeNodeID(r)
	return r.finish()
}

// Evidence / Edge / EdgeBatch

func encodeSpan(w *writer, s *Span) {
	if s == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.id(s.FileID)
	w.id(s.FileVersionID)
	w.u32(s.StartByte)
	w.u32(s.EndByte)
	w.u32(s.StartLine)
	w.u32(s.StartCol)
	w.u32(s.EndLine)
	w.u32(s.EndCol)
}

func decodeSpan(r *reader) *Span {
	if r.u8() == 0 {
		return nil
	}
	return &Span{
		FileID:        r.id(),
		FileVersionID: r.id(),
		StartByte:     r.u32(),
		EndByte:       r.u32(),
		StartLine:     r.u32(),
		StartCol:      r.u32(),
		EndLine:       r.u32(),
		EndCol:        r.u32(),
	}
}

func encodeEvidence(w *writer, e Evidence) {
	w.id(e.CommitID)
	w.u8(byte(e.Tool))
	w.u8(byte(e.Confidence))
	encodeSpan(w, e.Span)
	w.optID(e.BlobID)
}

func decodeEvidence(r *reader) Evidence {
	return Evidence{
		CommitID:   r.id(),
		Tool:       EvidenceTool(r.u8()),
		Confidence: Confidence(r.u8()),
		Span:       decodeSpan(r),
		BlobID:     r.optID(),
	}
}

func encodeEdge(w *writer, e Edge) {
	encodeNodeID(w, e.From)
	encodeNodeID(w, e.To)
	w.u8(byte(e.Label))
	if e.Weight == nil {
		w.u8(0)
	} else {
		w.u8(1)
		w.u32(*e.Weight)
	}
	encodeEvidence(w, e.Evidence)
}

func decodeEdge(r *reader) Edge {
	e := Edge{
		From:  decodeNodeID(r),
		To:    decodeNodeID(r),
		Label: EdgeLabel(r.u8()),
	}
	if r.u8() == 1 {
		v := r.u32()
		e.Weight = &v
	}
	e.Evidence = decodeEvidence(r)
	return e
}

// MarshalCanonical encodes an edge batch.
func (b EdgeBatch) MarshalCanonical() ([]byte, error) {
	w := &writer{}
	w.u32(uint32(len(b.Edges)))
	for _, e := range b.Edges {
		encodeEdge(w, e)
	}
	w.i64(b.CreatedAt)
	return w.buf, nil
}

// UnmarshalCanonical decodes an edge batch.
func (b *EdgeBatch) UnmarshalCanonical(data []byte) error {
	r := &reader{data: data}
	n := r.u32()
	edges := make([]Edge, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		edges = append(edges, decodeEdge(r))
	}
	createdAt := r.i64()
	if err := r.finish(); err != nil {
		return err
	}
	b.Edges = edges
	b.CreatedAt = createdAt
	return nil
}

// NarrativeRef

func encodeNarrativeRef(w *writer, n NarrativeRef) {
	w.str(n.Path)
	w.optStr(n.Stream)
	w.str(n.Role)
	w.id(n.BlobID)
}

func decodeNarrativeRef(r *reader) NarrativeRef {
	return NarrativeRef{
		Path:   r.str(),
		Stream: r.optStr(),
		Role:   r.str(),
		BlobID: r.id(),
	}
}

// CommitType

func encodeCommitType(w *writer, ct *CommitType) {
	if ct == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.u8(byte(ct.Kind))
	switch ct.Kind {
	case CommitStaleAutoCompact:
		w.u64(ct.IdleSecs)
	case CommitInterruptedByNewTask:
		w.str(ct.NewTaskSummary)
	}
}

func decodeCommitType(r *reader) *CommitType {
	if r.u8() == 0 {
		return nil
	}
	ct := &CommitType{Kind: CommitTypeKind(r.u8())}
	switch ct.Kind {
	case CommitNormal, CommitAbandoned:
	case CommitStaleAutoCompact:
		ct.IdleSecs = r.u64()
	case CommitInterruptedByNewTask:
		ct.NewTaskSummary = r.str()
	default:
		r.fail("unknown commit type discriminant")
	}
	return ct
}

// Commit

// MarshalCanonical encodes a commit.
func (c Commit) MarshalCanonical() ([]byte, error) {
	w := &writer{}
	w.u32(uint32(len(c.Parents)))
	for _, p := range c.Parents {
		w.id(p)
	}
	w.i64(c.Timestamp)
	w.str(c.Message)
	w.id(c.RootTree)
	w.u32(uint32(len(c.EdgeBatches)))
	for _, b := range c.EdgeBatches {
		w.id(b)
	}
	w.u32(uint32(len(c.NarrativeRefs)))
	for _, n := range c.NarrativeRefs {
		encodeNarrativeRef(w, n)
	}
	w.optID(c.CargoSnapshot)
	w.optID(c.RustSnapshot)
	w.optID(c.DiagnosticsSnapshot)
	encodeCommitType(w, c.CommitType)
	return w.buf, nil
}

// UnmarshalCanonical decodes a commit.
func (c *Commit) UnmarshalCanonical(data []byte) error {
	r := &reader{data: data}
	out := Commit{}
	np := r.u32()
	out.Parents = make([]objectid.ID, 0, np)
	for i := uint32(0); i < np && r.err == nil; i++ {
		out.Parents = append(out.Parents, r.id())
	}
	out.Timestamp = r.i64()
	out.Message = r.str()
	out.RootTree = r.id()
	nb := r.u32()
	out.EdgeBatches = make([]objectid.ID, 0, nb)
	for i := uint32(0); i < nb && r.err == nil; i++ {
		out.EdgeBatches = append(out.EdgeBatches, r.id())
	}
	nn := r.u32()
	out.NarrativeRefs = make([]NarrativeRef, 0, nn)
	for i := uint32(0); i < nn && r.err == nil; i++ {
		out.NarrativeRefs = append(out.NarrativeRefs, decodeNarrativeRef(r))
	}
	out.CargoSnapshot = r.optID()
	out.RustSnapshot = r.optID()
	out.DiagnosticsSnapshot = r.optID()
	out.CommitType = decodeCommitType(r)
	if err := r.finish(); err != nil {
		return err
	}
	*c = out
	return nil
}

// SessionState

func encodeSessionState(w *writer, s SessionState) {
	w.u8(byte(s.Kind))
	switch s.Kind {
	case StateAwaitingUser:
		w.str(s.Question)
		w.i64(s.AskedAt)
	case StateInterrupted:
		w.str(s.UserMessage)
	case StatePendingComplete:
		w.str(s.Summary)
	case StateAborted:
		w.str(s.Reason)
	}
}

func decodeSessionState(r *reader) SessionState {
	s := SessionState{Kind: SessionStateKind(r.u8())}
	switch s.Kind {
	case StateRunning, StateComplete:
	case StateAwaitingUser:
		s.Question = r.str()
		s.AskedAt = r.i64()
	case StateInterrupted:
		s.UserMessage = r.str()
	case StatePendingComplete:
		s.Summary = r.str()
	case StateAborted:
		s.Reason = r.str()
	default:
		r.fail("unknown session state discriminant")
	}
	return s
}

// WorkCommit

// MarshalCanonical encodes a work commit.
func (wc WorkCommit) MarshalCanonical() ([]byte, error) {
	w := &writer{}
	w.u32(uint32(len(wc.Parents)))
	for _, p := range wc.Parents {
		w.id(p)
	}
	w.id(wc.Base)
	w.str(wc.SessionID)
	w.i64(wc.CreatedAt)
	w.u8(byte(wc.StepKind))
	w.bytes(wc.Payload)
	w.u32(uint32(len(wc.NarrativeRefs)))
	for _, n := range wc.NarrativeRefs {
		encodeNarrativeRef(w, n)
	}
	encodeSessionState(w, wc.SessionState)
	w.str(wc.TaskDescription)
	return w.buf, nil
}

// UnmarshalCanonical decodes a work commit.
func (wc *WorkCommit) UnmarshalCanonical(data []byte) error {
	r := &reader{data: data}
	out := WorkCommit{}
	np := r.u32()
	out.Parents = make([]objectid.ID, 0, np)
	for i := uint32(0); i < np && r.err == nil; i++ {
		out.Parents = append(out.Parents, r.id())
	}
	out.Base = r.id()
	out.SessionID = r.str()
	out.CreatedAt = r.i64()
	out.StepKind = StepKind(r.u8())
	out.Payload = r.bytes()
	nn := r.u32()
	for i := uint32(0); i < nn && r.err == nil; i++ {
		out.NarrativeRefs = append(out.NarrativeRefs, decodeNarrativeRef(r))
	}
	out.SessionState = decodeSessionState(r)
	out.TaskDescription = r.str()
	if err := r.finish(); err != nil {
		return err
	}
	*wc = out
	return nil
}

// Observations

func encodeObservation(w *writer, o Observation) {
	w.u8(byte(o.Kind))
	switch o.Kind {
	case ObsFileRead:
		w.str(o.Path)
		w.optID(o.ContentID)
	case ObsFileWrite:
		w.str(o.Path)
		if o.ContentID != nil {
			w.id(*o.ContentID)
		} else {
			w.id(objectid.ID{})
		}
	case ObsCommand:
		w.str(o.Command)
		if o.ExitCode == nil {
			w.u8(0)
		} else {
			w.u8(1)
			w.i32(*o.ExitCode)
		}
		w.optID(o.OutputID)
	case ObsNote, ObsPlan:
		w.str(o.Content)
	}
}

func decodeObservation(r *reader) Observation {
	o := Observation{Kind: ObservationKind(r.u8())}
	switch o.Kind {
	case ObsFileRead:
		o.Path = r.str()
		o.ContentID = r.optID()
	case ObsFileWrite:
		o.Path = r.str()
		id := r.id()
		o.ContentID = &id
	case ObsCommand:
		o.Command = r.str()
		if r.u8() == 1 {
			v := r.i32()
			o.ExitCode = &v
		}
		o.OutputID = r.optID()
	case ObsNote, ObsPlan:
		o.Content = r.str()
	default:
		r.fail("unknown observation discriminant")
	}
	return o
}

// EncodeObservations serializes an observation list into a WorkCommit payload.
func EncodeObservations(obs []Observation) ([]byte, error) {
	w := &writer{}
	w.u32(uint32(len(obs)))
	for _, o := range obs {
		encodeObservation(w, o)
	}
	return w.buf, nil
}

// DecodeObservations parses a WorkCommit payload back into observations.
func DecodeObservations(data []byte) ([]Observation, error) {
	r := &reader{data: data}
	n := r.u32()
	obs := make([]Observation, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		obs = append(obs, decodeObservation(r))
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return obs, nil
}
