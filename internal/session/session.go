// Package session holds the in-memory session handle: the observation
// buffer, the state machine, flushing to the staging chain, and recovery
// from STAGE after a crash.
package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/refs"
	"github.com/ctxgraph/ctx/internal/store"
)

// Clock supplies Unix-second timestamps. Tests inject a controlled clock;
// production passes time.Now-based one.
type Clock func() int64

// Session is the active work handle. It buffers observations in memory and
// flushes them as WorkCommits onto the staging chain.
type Session struct {
	taskDescription string
	state           model.SessionState
	baseCommit      objectid.ID
	stagingHead     objectid.ID
	sessionID       string
	createdAt       int64
	lastActivity    int64
	pending         []model.Observation
	stepCount       int
	clock           Clock
}

// New creates a fresh session based at the given commit.
func New(taskDescription string, baseCommit objectid.ID, sessionID string, clock Clock) *Session {
	now := clock()
	return &Session{
		taskDescription: taskDescription,
		state:           model.Running(),
		baseCommit:      baseCommit,
		stagingHead:     baseCommit,
		sessionID:       sessionID,
		createdAt:       now,
		lastActivity:    now,
		clock:           clock,
	}
}

// FromStaging reconstructs a session from an existing staging chain,
// adopting task, state, and session id from the tip WorkCommit.
func FromStaging(stagingHead objectid.ID, st *store.Store, clock Clock) (*Session, error) {
	var head model.WorkCommit
	if err := st.GetTyped(stagingHead, &head); err != nil {
		return nil, err
	}

	// Count steps by walking first parents back to the base.
	stepCount := 1
	current := stagingHead
	for {
		var work model.WorkCommit
		if err := st.GetTyped(current, &work); err != nil {
			return nil, err
		}
		if len(work.Parents) == 0 || work.Parents[0] == head.Base {
			break
		}
		current = work.Parents[0]
		stepCount++
	}

	return &Session{
		taskDescription: head.TaskDescription,
		state:           head.SessionState,
		baseCommit:      head.Base,
		stagingHead:     stagingHead,
		sessionID:       head.SessionID,
		createdAt:       head.CreatedAt,
		lastActivity:    clock(),
		stepCount:       stepCount,
		clock:           clock,
	}, nil
}

// ObserveFileRead records a path-only file read.
func (s *Session) ObserveFileRead(path string) {
	s.touch()
	s.pending = append(s.pending, model.Observation{Kind: model.ObsFileRead, Path: path})
}

// ObserveFileReadWithContent records a file read and stores the content.
func (s *Session) ObserveFileReadWithContent(path string, content []byte, st *store.Store) error {
	s.touch()
	id, err := st.PutBlob(content)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, model.Observation{Kind: model.ObsFileRead, Path: path, ContentID: &id})
	return nil
}

// ObserveFileWrite records a file write, storing the content, and returns the
// content id.
func (s *Session) ObserveFileWrite(path string, content []byte, st *store.Store) (objectid.ID, error) {
	s.touch()
	id, err := st.PutBlob(content)
	if err != nil {
		return objectid.ID{}, err
	}
	s.pending = append(s.pending, model.Observation{Kind: model.ObsFileWrite, Path: path, ContentID: &id})
	return id, nil
}

// ObserveCommand records a command execution, storing captured output.
func (s *Session) ObserveCommand(command string, exitCode *int32, output []byte, st *store.Store) error {
	s.touch()
	obs := model.Observation{Kind: model.ObsCommand, Command: command, ExitCode: exitCode}
	if output != nil {
		id, err := st.PutBlob(output)
		if err != nil {
			return err
		}
		obs.OutputID = &id
	}
	s.pending = append(s.pending, obs)
	return nil
}

// ObserveNote records an agent note.
func (s *Session) ObserveNote(note string) {
	s.touch()
	s.pending = append(s.pending, model.Observation{Kind: model.ObsNote, Content: note})
}

// ObservePlan records an agent plan.
func (s *Session) ObservePlan(plan string) {
	s.touch()
	s.pending = append(s.pending, model.Observation{Kind: model.ObsPlan, Content: plan})
}

// FlushStep serializes the pending observations into a WorkCommit, stores
// it, advances STAGE, and clears the buffer.
func (s *Session) FlushStep(st *store.Store, r *refs.Refs) (objectid.ID, error) {
	return s.flush(st, r, s.inferStepKind())
}

// FlushInitial writes the session-start step so STAGE exists immediately and
// recovery is possible from the first moment.
func (s *Session) FlushInitial(st *store.Store, r *refs.Refs) (objectid.ID, error) {
	return s.flush(st, r, model.StepSessionStart)
}

func (s *Session) flush(st *store.Store, r *refs.Refs, kind model.StepKind) (objectid.ID, error) {
	s.touch()

	payload, err := model.EncodeObservations(s.pending)
	if err != nil {
		return objectid.ID{}, err
	}

	work := model.WorkCommit{
		Parents:         []objectid.ID{s.stagingHead},
		Base:            s.baseCommit,
		SessionID:       s.sessionID,
		CreatedAt:       s.clock(),
		StepKind:        kind,
		Payload:         payload,
		SessionState:    s.state,
		TaskDescription: s.taskDescription,
	}

	workID, err := st.PutTyped(work)
	if err != nil {
		return objectid.ID{}, err
	}
	if err := r.WriteStage(workID); err != nil {
		return objectid.ID{}, err
	}

	s.stagingHead = workID
	s.stepCount++
	s.pending = nil
	return workID, nil
}

// SetState transitions the state machine, rejecting disallowed transitions
// without mutating the session.
func (s *Session) SetState(newState model.SessionState) error {
	if !validTransition(s.state.Kind, newState.Kind) {
		return ctxerr.InvalidStateTransition(s.state.Name(), newState.Name())
	}
	s.touch()
	s.state = newState
	return nil
}

// validTransition encodes the allowed state machine:
//
//	Running -> AwaitingUser | Interrupted | PendingComplete | Aborted
//	AwaitingUser -> Running | Aborted
//	Interrupted -> Running
//	PendingComplete -> Complete | Running | Aborted
func validTransition(from, to model.SessionStateKind) bool {
	switch from {
	case model.StateRunning:
		return to == model.StateAwaitingUser || to == model.StateInterrupted ||
			to == model.StatePendingComplete || to == model.StateAborted
	case model.StateAwaitingUser:
		return to == model.StateRunning || to == model.StateAborted
	case model.StateInterrupted:
		return to == model.StateRunning
	case model.StatePendingComplete:
		return to == model.StateComplete || to == model.StateRunning || to == model.StateAborted
	default:
		return false
	}
}

func (s *Session) touch() {
	s.lastActivity = s.clock()
}

func (s *Session) inferStepKind() model.StepKind {
	// Writes dominate, then commands, then plans.
	seen := make(map[model.ObservationKind]bool)
	for _, obs := range s.pending {
		seen[obs.Kind] = true
	}
	switch {
	case seen[model.ObsFileWrite]:
		return model.StepFileWrite
	case seen[model.ObsCommand]:
		return model.StepCommandRun
	case seen[model.ObsPlan]:
		return model.StepPlan
	case seen[model.ObsFileRead]:
		return model.StepFileRead
	}
	return model.StepNote
}

// Accessors.

func (s *Session) TaskDescription() string      { return s.taskDescription }
func (s *Session) State() model.SessionState    { return s.state }
func (s *Session) BaseCommit() objectid.ID      { return s.baseCommit }
func (s *Session) StagingHead() objectid.ID     { return s.stagingHead }
func (s *Session) SessionID() string            { return s.sessionID }
func (s *Session) CreatedAt() int64             { return s.createdAt }
func (s *Session) LastActivity() int64          { return s.lastActivity }
func (s *Session) StepCount() int               { return s.stepCount }
func (s *Session) PendingCount() int            { return len(s.pending) }

// IdleSecs returns seconds since last activity, clamped at zero.
func (s *Session) IdleSecs() int64 {
	idle := s.clock() - s.lastActivity
	if idle < 0 {
		return 0
	}
	return idle
}

// Stats summarizes observations across the staging chain and the pending
// buffer.
type Stats struct {
	StepsFlushed        int
	PendingObservations int
	FileReads           int
	FileWrites          int
	Commands            int
	Notes               int
	Plans               int
	UniqueFilesRead     int
	UniqueFilesWritten  int
}

// Stats walks the staging chain plus the pending buffer and tallies
// observation counts.
func (s *Session) Stats(st *store.Store) Stats {
	stats := Stats{
		StepsFlushed:        s.stepCount,
		PendingObservations: len(s.pending),
	}
	read := make(map[string]struct{})
	written := make(map[string]struct{})

	count := func(obs model.Observation) {
		switch obs.Kind {
		case model.ObsFileRead:
			stats.FileReads++
			read[obs.Path] = struct{}{}
		case model.ObsFileWrite:
			stats.FileWrites++
			written[obs.Path] = struct{}{}
		case model.ObsCommand:
			stats.Commands++
		case model.ObsNote:
			stats.Notes++
		case model.ObsPlan:
			stats.Plans++
		}
	}

	for _, obs := range s.pending {
		count(obs)
	}
	s.walkChain(st, func(work model.WorkCommit) {
		if obs, err := model.DecodeObservations(work.Payload); err == nil {
			for _, o := range obs {
				count(o)
			}
		}
	})

	stats.UniqueFilesRead = len(read)
	stats.UniqueFilesWritten = len(written)
	return stats
}

// FilesTouched returns sorted lists of paths read and written during the
// session, including pending observations.
func (s *Session) FilesTouched(st *store.Store) (reads, writes []string) {
	readSet := make(map[string]struct{})
	writeSet := make(map[string]struct{})

	collect := func(obs model.Observation) {
		switch obs.Kind {
		case model.ObsFileRead:
			readSet[obs.Path] = struct{}{}
		case model.ObsFileWrite:
			writeSet[obs.Path] = struct{}{}
		}
	}

	for _, obs := range s.pending {
		collect(obs)
	}
	s.walkChain(st, func(work model.WorkCommit) {
		if obs, err := model.DecodeObservations(work.Payload); err == nil {
			for _, o := range obs {
				collect(o)
			}
		}
	})

	for p := range readSet {
		reads = append(reads, p)
	}
	for p := range writeSet {
		writes = append(writes, p)
	}
	sort.Strings(reads)
	sort.Strings(writes)
	return reads, writes
}

// ProgressSummary renders a short human summary of the session so far.
func (s *Session) ProgressSummary(st *store.Store) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", s.taskDescription)
	fmt.Fprintf(&b, "Steps completed: %d\n", s.stepCount)
	fmt.Fprintf(&b, "Current state: %s\n", s.state.Name())

	var stepSummaries []string
	s.walkChain(st, func(work model.WorkCommit) {
		if obs, err := model.DecodeObservations(work.Payload); err == nil {
			if sum := summarizeObservations(obs); sum != "" {
				stepSummaries = append(stepSummaries, sum)
			}
		}
	})

	// walkChain visits newest first; show oldest first.
	for i, j := 0, len(stepSummaries)-1; i < j; i, j = i+1, j-1 {
		stepSummaries[i], stepSummaries[j] = stepSummaries[j], stepSummaries[i]
	}
	if len(stepSummaries) > 0 {
		b.WriteString("\nRecent activity:\n")
		if len(stepSummaries) > 5 {
			stepSummaries = stepSummaries[len(stepSummaries)-5:]
		}
		for i, sum := range stepSummaries {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, sum)
		}
	}
	return b.String()
}

// walkChain visits each flushed WorkCommit from the tip backwards, stopping
// silently on decode failures (callers treat the chain as best-effort here;
// compaction has the strict walker).
func (s *Session) walkChain(st *store.Store, visit func(model.WorkCommit)) {
	current := s.stagingHead
	for current != s.baseCommit {
		var work model.WorkCommit
		if err := st.GetTyped(current, &work); err != nil {
			return
		}
		visit(work)
		if len(work.Parents) == 0 {
			return
		}
		current = work.Parents[0]
	}
}

func summarizeObservations(obs []model.Observation) string {
	var reads, writes, commands, notes int
	for _, o := range obs {
		switch o.Kind {
		case model.ObsFileRead:
			reads++
		case model.ObsFileWrite:
			writes++
		case model.ObsCommand:
			commands++
		case model.ObsNote:
			notes++
		}
	}
	var parts []string
	if reads > 0 {
		parts = append(parts, fmt.Sprintf("%d file read(s)", reads))
	}
	if writes > 0 {
		parts = append(parts, fmt.Sprintf("%d file write(s)", writes))
	}
	if commands > 0 {
		parts = append(parts, fmt.Sprintf("%d command(s)", commands))
	}
	if notes > 0 {
		parts = append(parts, fmt.Sprintf("%d note(s)", notes))
	}
	return strings.Join(parts, ", ")
}
