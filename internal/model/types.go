// Package model defines the typed objects stored in the repository and their
// canonical binary encoding. Encodings are repository-private: bijective,
// field-order preserving, and byte-stable across runs and machines.
package model

import (
	"sort"

	"github.com/ctxgraph/ctx/internal/objectid"
)

// TreeEntryKind discriminates blob entries from subtree entries.
type TreeEntryKind byte

const (
	// EntryBlob is a regular file entry.
	EntryBlob TreeEntryKind = 1
	// EntryTree is a subdirectory entry.
	EntryTree TreeEntryKind = 2
)

// TreeEntry is a named pointer inside a Tree.
type TreeEntry struct {
	Name string
	Kind TreeEntryKind
	ID   objectid.ID
}

// Tree is a snapshot of one directory level. Entries are sorted by name
// bytewise; that order is the only acceptable canonical form.
type Tree struct {
	Entries []TreeEntry
}

// NewTree builds a Tree, sorting entries by name.
func NewTree(entries []TreeEntry) Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return Tree{Entries: sorted}
}

// NodeKind classifies knowledge-graph nodes.
type NodeKind byte

const (
	NodeFile       NodeKind = 1
	NodeModule     NodeKind = 2
	NodeItem       NodeKind = 3
	NodePackage    NodeKind = 4
	NodeTarget     NodeKind = 5
	NodeCrate      NodeKind = 6
	NodeTask       NodeKind = 7
	NodeNote       NodeKind = 8
	NodeDecision   NodeKind = 9
	NodeDiagnostic NodeKind = 10
)

// NodeID addresses a node in the knowledge graph.
type NodeID struct {
	Kind NodeKind
	ID   string
}

// FileNode is shorthand for a File node.
func FileNode(path string) NodeID {
	return NodeID{Kind: NodeFile, ID: path}
}

// EdgeLabel is the closed set of relationship labels. Numeric codes are part
// of the on-disk format; never reuse a value.
type EdgeLabel byte

const (
	// Structural (1-9)
	LabelContains   EdgeLabel = 1
	LabelDefines    EdgeLabel = 2
	LabelHasVersion EdgeLabel = 3

	// Dependencies (10-19)
	LabelDependsOn      EdgeLabel = 10
	LabelTargetOf       EdgeLabel = 11
	LabelCrateFromTarget EdgeLabel = 12

	// Code relationships (20-29)
	LabelImports    EdgeLabel = 20
	LabelReferences EdgeLabel = 21
	LabelCalls      EdgeLabel = 22
	LabelImplements EdgeLabel = 23
	LabelUsesType   EdgeLabel = 24

	// Documentation (30-39)
	LabelMentions    EdgeLabel = 30
	LabelUpdatedIn   EdgeLabel = 31
	LabelDerivedFrom EdgeLabel = 32
)

// EvidenceTool records which producer extracted an edge.
type EvidenceTool byte

const (
	ToolCargo        EvidenceTool = 1
	ToolParser       EvidenceTool = 2
	ToolRustAnalyzer EvidenceTool = 3
	ToolHuman        EvidenceTool = 4
	ToolLlm          EvidenceTool = 5
)

// Confidence bands the reliability of edge evidence.
type Confidence byte

const (
	ConfidenceHigh   Confidence = 1
	ConfidenceMedium Confidence = 2
	ConfidenceLow    Confidence = 3
)

// Span is a [start, end) location within a specific blob version.
type Span struct {
	FileID        objectid.ID
	FileVersionID objectid.ID
	StartByte     uint32
	EndByte       uint32
	StartLine     uint32
	StartCol      uint32
	EndLine       uint32
	EndCol        uint32
}

// Evidence supports an edge with provenance. CommitID is the commit the
// evidence was recorded against, not the commit that introduced the batch.
type Evidence struct {
	CommitID   objectid.ID
	Tool       EvidenceTool
	Confidence Confidence
	Span       *Span
	BlobID     *objectid.ID
}

// Edge is a labeled directed relationship between two nodes. Weight is
// fixed-point with 1000 = 1.0.
type Edge struct {
	From     NodeID
	To       NodeID
	Label    EdgeLabel
	Weight   *uint32
	Evidence Evidence
}

// EdgeBatch groups edges introduced together. A batch does not know its
// introducing commit; provenance is recovered by querying commits.
type EdgeBatch struct {
	Edges     []Edge
	CreatedAt int64
}

// NarrativeRef points a commit at a named narrative blob.
type NarrativeRef struct {
	Path   string
	Stream *string
	Role   string
	BlobID objectid.ID
}

// CommitTypeKind discriminates how a commit came to exist.
type CommitTypeKind byte

const (
	CommitNormal               CommitTypeKind = 1
	CommitAbandoned            CommitTypeKind = 2
	CommitStaleAutoCompact     CommitTypeKind = 3
	CommitInterruptedByNewTask CommitTypeKind = 4
)

// CommitType carries the kind plus variant payloads. IdleSecs is set for
// StaleAutoCompact; NewTaskSummary for InterruptedByNewTask.
type CommitType struct {
	Kind           CommitTypeKind
	IdleSecs       uint64
	NewTaskSummary string
}

// NormalCommit is the CommitType for ordinary task completion.
func NormalCommit() CommitType {
	return CommitType{Kind: CommitNormal}
}

// AbandonedCommit is the CommitType for explicitly abandoned work.
func AbandonedCommit() CommitType {
	return CommitType{Kind: CommitAbandoned}
}

// Commit is a canonical checkpoint in the history DAG. Parents, edge batch
// ids, and narrative refs keep production order; they are never re-sorted.
type Commit struct {
	Parents             []objectid.ID
	Timestamp           int64
	Message             string
	RootTree            objectid.ID
	EdgeBatches         []objectid.ID
	NarrativeRefs       []NarrativeRef
	CargoSnapshot       *objectid.ID
	RustSnapshot        *objectid.ID
	DiagnosticsSnapshot *objectid.ID
	CommitType          *CommitType
}

// SessionStateKind discriminates session states.
type SessionStateKind byte

const (
	StateRunning         SessionStateKind = 1
	StateAwaitingUser    SessionStateKind = 2
	StateInterrupted     SessionStateKind = 3
	StatePendingComplete SessionStateKind = 4
	StateComplete        SessionStateKind = 5
	StateAborted         SessionStateKind = 6
)

// SessionState is the session machine state plus variant payloads.
type SessionState struct {
	Kind        SessionStateKind
	Question    string // AwaitingUser
	AskedAt     int64  // AwaitingUser
	UserMessage string // Interrupted
	Summary     string // PendingComplete
	Reason      string // Aborted
}

// Running is the initial session state.
func Running() SessionState {
	return SessionState{Kind: StateRunning}
}

// Name returns the state's short name for error messages and display.
func (s SessionState) Name() string {
	switch s.Kind {
	case StateRunning:
		return "Running"
	case StateAwaitingUser:
		return "AwaitingUser"
	case StateInterrupted:
		return "Interrupted"
	case StatePendingComplete:
		return "PendingComplete"
	case StateComplete:
		return "Complete"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// StepKind classifies a staging step.
type StepKind byte

const (
	StepSessionStart StepKind = 1
	StepFileRead     StepKind = 2
	StepFileWrite    StepKind = 3
	StepCommandRun   StepKind = 4
	StepNote         StepKind = 5
	StepPlan         StepKind = 6
	StepCompact      StepKind = 7
)

// WorkCommit is one step in a staging chain. Payload is the canonically
// encoded observation list for the step.
type WorkCommit struct {
	Parents         []objectid.ID
	Base            objectid.ID
	SessionID       string
	CreatedAt       int64
	StepKind        StepKind
	Payload         []byte
	NarrativeRefs   []NarrativeRef
	SessionState    SessionState
	TaskDescription string
}

// ObservationKind discriminates observation variants.
type ObservationKind byte

const (
	ObsFileRead  ObservationKind = 1
	ObsFileWrite ObservationKind = 2
	ObsCommand   ObservationKind = 3
	ObsNote      ObservationKind = 4
	ObsPlan      ObservationKind = 5
)

// Observation is a single captured agent action.
type Observation struct {
	Kind      ObservationKind
	Path      string       // FileRead, FileWrite
	ContentID *objectid.ID // FileRead (optional), FileWrite (required)
	Command   string       // Command
	ExitCode  *int32       // Command
	OutputID  *objectid.ID // Command
	Content   string       // Note, Plan
}
