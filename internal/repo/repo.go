// Package repo is the repository façade: lifecycle (init/open), the exclusive
// lock, and orchestration across the store, refs, index, sessions, staging,
// narrative, retrieval, GC, and verification.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ctxgraph/ctx/internal/config"
	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/gc"
	"github.com/ctxgraph/ctx/internal/index"
	"github.com/ctxgraph/ctx/internal/logging"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/narrative"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/pack"
	"github.com/ctxgraph/ctx/internal/refs"
	"github.com/ctxgraph/ctx/internal/session"
	"github.com/ctxgraph/ctx/internal/staging"
	"github.com/ctxgraph/ctx/internal/store"
	"github.com/ctxgraph/ctx/internal/verify"
)

// DirName is the repository directory under the project root.
const DirName = ".ctx"

// Repo is an explicit handle on one repository. There is no process-global
// state; HEAD and STAGE are the only singletons and both live on disk.
type Repo struct {
	root   string
	ctxDir string
	cfg    config.Config

	store *store.Store
	refs  *refs.Refs
	idx   *index.Index

	activeSession *session.Session
	lock          *lockGuard

	clock session.Clock
}

func systemClock() int64 {
	return time.Now().Unix()
}

// Open opens an existing repository under root/.ctx.
func Open(root string) (*Repo, error) {
	return OpenWithClock(root, systemClock)
}

// OpenWithClock opens a repository with an injected time provider. Tests use
// this to drive staleness deterministically.
func OpenWithClock(root string, clock session.Clock) (*Repo, error) {
	ctxDir := filepath.Join(root, DirName)
	if _, err := os.Stat(ctxDir); err != nil {
		return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "no repository at %s", ctxDir)
	}

	cfg, err := config.Load(ctxDir)
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithLevel(filepath.Join(ctxDir, "objects"), cfg.Storage.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return &Repo{
		root:   root,
		ctxDir: ctxDir,
		cfg:    cfg,
		store:  st,
		refs:   refs.New(ctxDir),
		clock:  clock,
	}, nil
}

// Init creates a new repository skeleton under root/.ctx: directories, a
// default config, .gitignore, a narrative README, an empty tree, and an
// initial commit that HEAD and refs/main point at.
func Init(root string) (*Repo, error) {
	ctxDir := filepath.Join(root, DirName)
	if _, err := os.Stat(ctxDir); err == nil {
		return nil, ctxerr.Newf(ctxerr.KindIo, "repository already exists at %s", ctxDir)
	}

	for _, dir := range []string{"objects", "refs", "narrative/log", "narrative/tasks", "index"} {
		if err := os.MkdirAll(filepath.Join(ctxDir, filepath.FromSlash(dir)), 0o755); err != nil {
			return nil, ctxerr.Wrapf(err, ctxerr.KindIo, "create %s", dir)
		}
	}

	cfg := config.Default()
	if err := cfg.Save(ctxDir); err != nil {
		return nil, err
	}

	gitignore := "# rebuildable derived content\nindex/\nLOCK\n*.tmp\n"
	if err := os.WriteFile(filepath.Join(ctxDir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		return nil, ctxerr.Wrap(err, ctxerr.KindIo, "write .gitignore")
	}

	readme := `# Project Context

This directory records the work of coding agents as content-addressed
history plus a knowledge graph.

- objects/   content-addressed immutable objects
- refs/      pointers to commits
- narrative/ human-readable logs and task files
- index/     rebuildable derived index (gitignored)

Narrative files can be read and edited directly; everything else is
maintained through the ctx tooling.
`
	if err := os.WriteFile(filepath.Join(ctxDir, "narrative", "README.md"), []byte(readme), 0o644); err != nil {
		return nil, ctxerr.Wrap(err, ctxerr.KindIo, "write narrative README")
	}

	st, err := store.NewWithLevel(filepath.Join(ctxDir, "objects"), cfg.Storage.CompressionLevel)
	if err != nil {
		return nil, err
	}
	r := refs.New(ctxDir)

	treeID, err := st.PutTyped(model.NewTree(nil))
	if err != nil {
		return nil, err
	}
	initial := model.Commit{
		Timestamp: time.Now().Unix(),
		Message:   "Initial commit",
		RootTree:  treeID,
	}
	commitID, err := st.PutTyped(initial)
	if err != nil {
		return nil, err
	}
	if err := r.WriteHead(commitID); err != nil {
		return nil, err
	}
	if err := r.WriteRef("main", commitID); err != nil {
		return nil, err
	}

	return &Repo{
		root:   root,
		ctxDir: ctxDir,
		cfg:    cfg,
		store:  st,
		refs:   r,
		clock:  systemClock,
	}, nil
}

// Root returns the project root (parent of .ctx).
func (r *Repo) Root() string { return r.root }

// CtxDir returns the repository directory.
func (r *Repo) CtxDir() string { return r.ctxDir }

// Config returns the loaded configuration.
func (r *Repo) Config() config.Config { return r.cfg }

// Store returns the object store.
func (r *Repo) Store() *store.Store { return r.store }

// Refs returns the refs handle.
func (r *Repo) Refs() *refs.Refs { return r.refs }

// Narrative returns a handle on the narrative space.
func (r *Repo) Narrative() *narrative.Space { return narrative.New(r.ctxDir) }

// Close releases the index handle and any held lock.
func (r *Repo) Close() error {
	if r.lock != nil {
		r.lock.Release()
		r.lock = nil
	}
	if r.idx != nil {
		err := r.idx.Close()
		r.idx = nil
		return err
	}
	return nil
}

// HeadID returns the commit id HEAD points at.
func (r *Repo) HeadID() (objectid.ID, error) {
	return r.refs.ReadHead()
}

// Head loads the HEAD commit.
func (r *Repo) Head() (model.Commit, error) {
	id, err := r.HeadID()
	if err != nil {
		return model.Commit{}, err
	}
	var commit model.Commit
	if err := r.store.GetTyped(id, &commit); err != nil {
		return model.Commit{}, err
	}
	return commit, nil
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.ctxDir, "index", "ctx.db")
}

// Index lazily opens (or creates) the index database.
func (r *Repo) Index() (*index.Index, error) {
	if r.idx != nil {
		return r.idx, nil
	}
	idx, err := index.Open(r.indexPath())
	if err != nil {
		return nil, err
	}
	if idx == nil {
		idx, err = index.Create(r.indexPath())
		if err != nil {
			return nil, err
		}
	}
	r.idx = idx
	return r.idx, nil
}

// RebuildIndex regenerates the index from objects and refs.
func (r *Repo) RebuildIndex(cfg index.RebuildConfig) (index.RebuildReport, error) {
	head, err := r.HeadID()
	if err != nil {
		return index.RebuildReport{}, err
	}
	var prev *index.Index
	if r.idx != nil {
		prev = r.idx
		r.idx = nil
	} else {
		prev, err = index.Open(r.indexPath())
		if err != nil {
			// A corrupted database is exactly what rebuild fixes; drop it.
			logging.Warn("existing index unreadable, rebuilding from scratch", "error", err)
			prev = nil
		}
	}
	idx, report, err := index.Rebuild(prev, r.indexPath(), head, r.store, cfg)
	if err != nil {
		return report, err
	}
	r.idx = idx
	return report, nil
}

// StartSession begins a new session based at HEAD, acquiring the repository
// lock and flushing the initial session-start step so STAGE exists at once.
func (r *Repo) StartSession(task string) (*session.Session, error) {
	if r.activeSession != nil {
		return nil, ctxerr.Newf(ctxerr.KindSessionAlreadyActive, "session already active: %s",
			r.activeSession.TaskDescription())
	}

	lock, err := acquireLock(filepath.Join(r.ctxDir, lockFileName))
	if err != nil {
		return nil, err
	}

	base, err := r.HeadID()
	if err != nil {
		lock.Release()
		return nil, err
	}

	s := session.New(task, base, uuid.NewString(), r.clock)
	if _, err := s.FlushInitial(r.store, r.refs); err != nil {
		lock.Release()
		return nil, err
	}

	r.activeSession = s
	r.lock = lock
	return s, nil
}

// ActiveSession returns the in-memory session, if any.
func (r *Repo) ActiveSession() *session.Session {
	return r.activeSession
}

// HasActiveSession reports whether a session is held in memory.
func (r *Repo) HasActiveSession() bool {
	return r.activeSession != nil
}

// RecoverSession resumes a session from STAGE after a crash. Returns
// (nil, nil) when no STAGE exists.
func (r *Repo) RecoverSession() (*session.Session, error) {
	stage, ok, err := r.refs.ReadStage()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	s, err := session.FromStaging(stage, r.store, r.clock)
	if err != nil {
		return nil, err
	}
	r.activeSession = s
	return s, nil
}

// Observation helpers that require an active session.

func (r *Repo) session() (*session.Session, error) {
	if r.activeSession == nil {
		return nil, ctxerr.New(ctxerr.KindNoActiveSession, "no active session")
	}
	return r.activeSession, nil
}

// ObserveFileWrite records a file write into the active session.
func (r *Repo) ObserveFileWrite(path string, content []byte) (objectid.ID, error) {
	s, err := r.session()
	if err != nil {
		return objectid.ID{}, err
	}
	return s.ObserveFileWrite(path, content, r.store)
}

// ObserveFileRead records a path-only read into the active session.
func (r *Repo) ObserveFileRead(path string) error {
	s, err := r.session()
	if err != nil {
		return err
	}
	s.ObserveFileRead(path)
	return nil
}

// ObserveFileReadWithContent records a read with content capture.
func (r *Repo) ObserveFileReadWithContent(path string, content []byte) error {
	s, err := r.session()
	if err != nil {
		return err
	}
	return s.ObserveFileReadWithContent(path, content, r.store)
}

// ObserveCommand records a command execution.
func (r *Repo) ObserveCommand(command string, exitCode *int32, output []byte) error {
	s, err := r.session()
	if err != nil {
		return err
	}
	return s.ObserveCommand(command, exitCode, output, r.store)
}

// ObserveNote records a note.
func (r *Repo) ObserveNote(note string) error {
	s, err := r.session()
	if err != nil {
		return err
	}
	s.ObserveNote(note)
	return nil
}

// ObservePlan records a plan.
func (r *Repo) ObservePlan(plan string) error {
	s, err := r.session()
	if err != nil {
		return err
	}
	s.ObservePlan(plan)
	return nil
}

// FlushActiveSession flushes pending observations as one staging step.
func (r *Repo) FlushActiveSession() (objectid.ID, error) {
	s, err := r.session()
	if err != nil {
		return objectid.ID{}, err
	}
	return s.FlushStep(r.store, r.refs)
}

// CompactSession compacts the active session into a normal commit.
func (r *Repo) CompactSession(message string) (objectid.ID, error) {
	return r.CompactSessionWithType(message, model.NormalCommit())
}

// AbortSession compacts the active session as Abandoned, preserving the work
// for audit.
func (r *Repo) AbortSession(reason string) (objectid.ID, error) {
	return r.CompactSessionWithType("Aborted: "+reason, model.AbandonedCommit())
}

// CompactSessionWithType aggregates the staging chain into a canonical
// commit and runs the ordered ref dance: put commit, write HEAD, write
// refs/main, delete STAGE. The session is dropped and the lock released.
func (r *Repo) CompactSessionWithType(message string, commitType model.CommitType) (objectid.ID, error) {
	s, err := r.session()
	if err != nil {
		return objectid.ID{}, err
	}

	task := s.TaskDescription()
	filesRead, filesWritten := s.FilesTouched(r.store)

	commit, err := staging.Compact(s.StagingHead(), s.BaseCommit(), message, commitType, r.clock(), r.store)
	if err != nil {
		return objectid.ID{}, err
	}

	commitID, err := r.store.PutTyped(commit)
	if err != nil {
		return objectid.ID{}, err
	}
	if err := r.refs.WriteHead(commitID); err != nil {
		return objectid.ID{}, err
	}
	if err := r.refs.WriteRef("main", commitID); err != nil {
		return objectid.ID{}, err
	}
	if err := r.refs.DeleteStage(); err != nil {
		return objectid.ID{}, err
	}

	r.extendIndex(commitID, commit)
	r.writeSessionNarrative(task, filesRead, filesWritten, message)

	r.activeSession = nil
	if r.lock != nil {
		r.lock.Release()
		r.lock = nil
	}

	if r.cfg.Gc.AutoGc {
		if _, err := r.Gc(gc.Config{GracePeriodDays: r.cfg.Gc.GracePeriodDays}); err != nil {
			logging.Warn("automatic gc after compaction failed", "error", err)
		}
	}
	return commitID, nil
}

// extendIndex incrementally records a new commit's edges. Best effort: index
// damage is recoverable by rebuild and must not block compaction.
func (r *Repo) extendIndex(commitID objectid.ID, commit model.Commit) {
	idx, err := r.Index()
	if err != nil {
		logging.Warn("index unavailable, skipping incremental update", "error", err)
		return
	}
	batches, err := r.LoadEdgeBatches(commit)
	if err != nil {
		logging.Warn("could not load edge batches for index update", "error", err)
		return
	}
	if err := idx.AddCommitEdges(commitID, commit, batches); err != nil {
		logging.Warn("incremental index update failed", "error", err)
	}
}

// writeSessionNarrative appends a log entry summarizing a compacted session.
// Best effort; narrative failures never block compaction.
func (r *Repo) writeSessionNarrative(task string, filesRead, filesWritten []string, message string) {
	now := time.Unix(r.clock(), 0).UTC()
	date := now.Format("2006-01-02")
	timeOfDay := now.Format("15:04")

	entry := fmt.Sprintf("**Task:** %s\n**Result:** %s\n", task, message)
	if len(filesWritten) > 0 {
		entry += "\n**Files modified:**\n"
		for i, f := range filesWritten {
			if i >= 20 {
				entry += fmt.Sprintf("- ... and %d more\n", len(filesWritten)-20)
				break
			}
			entry += "- `" + f + "`\n"
		}
	}
	if len(filesRead) > 0 {
		entry += "\n**Files read:**\n"
		for i, f := range filesRead {
			if i >= 20 {
				entry += fmt.Sprintf("- ... and %d more\n", len(filesRead)-20)
				break
			}
			entry += "- `" + f + "`\n"
		}
	}

	if _, err := r.Narrative().AppendLog(date, timeOfDay, entry); err != nil {
		logging.Warn("failed to write session narrative log", "error", err)
	}
}

// Commit creates a canonical commit outside any session, per the adapter
// integration path: new commit on HEAD carrying the given batches, narrative
// refs, and snapshots, then HEAD/refs/main advance and the index extends.
func (r *Repo) Commit(message string, edgeBatches []objectid.ID, narrativeRefs []model.NarrativeRef, snapshots Snapshots) (objectid.ID, error) {
	headID, err := r.HeadID()
	if err != nil {
		return objectid.ID{}, err
	}
	var head model.Commit
	if err := r.store.GetTyped(headID, &head); err != nil {
		return objectid.ID{}, err
	}

	ct := model.NormalCommit()
	commit := model.Commit{
		Parents:             []objectid.ID{headID},
		Timestamp:           r.clock(),
		Message:             message,
		RootTree:            head.RootTree,
		EdgeBatches:         edgeBatches,
		NarrativeRefs:       narrativeRefs,
		CargoSnapshot:       coalesce(snapshots.Cargo, head.CargoSnapshot),
		RustSnapshot:        coalesce(snapshots.Rust, head.RustSnapshot),
		DiagnosticsSnapshot: coalesce(snapshots.Diagnostics, head.DiagnosticsSnapshot),
		CommitType:          &ct,
	}

	commitID, err := r.store.PutTyped(commit)
	if err != nil {
		return objectid.ID{}, err
	}
	if err := r.refs.WriteHead(commitID); err != nil {
		return objectid.ID{}, err
	}
	if err := r.refs.WriteRef("main", commitID); err != nil {
		return objectid.ID{}, err
	}

	r.extendIndex(commitID, commit)
	return commitID, nil
}

// Snapshots carries the optional analyzer snapshot ids for a commit.
type Snapshots struct {
	Cargo       *objectid.ID
	Rust        *objectid.ID
	Diagnostics *objectid.ID
}

func coalesce(a, b *objectid.ID) *objectid.ID {
	if a != nil {
		return a
	}
	return b
}

// CheckStale classifies the active session against the configured staleness
// thresholds.
func (r *Repo) CheckStale() session.StaleStatus {
	return session.CheckStale(r.activeSession,
		r.cfg.Session.AskThresholdSecs, r.cfg.Session.AutoCompactThresholdSecs)
}

// CleanupReport summarizes a stale-session cleanup.
type CleanupReport struct {
	SessionsCompacted int
	CompactedTasks    []string
}

// CleanupStaleSessions compacts any over-age staging chain as a
// StaleAutoCompact commit. With no in-memory session it recovers from STAGE
// first.
func (r *Repo) CleanupStaleSessions(maxAge time.Duration) (CleanupReport, error) {
	var report CleanupReport

	if r.activeSession == nil {
		if _, err := r.RecoverSession(); err != nil {
			return report, err
		}
	}
	s := r.activeSession
	if s == nil {
		return report, nil
	}

	idle := r.clock() - s.LastActivity()
	if idle < int64(maxAge.Seconds()) {
		return report, nil
	}

	task := s.TaskDescription()
	ct := model.CommitType{Kind: model.CommitStaleAutoCompact, IdleSecs: uint64(idle)}
	if _, err := r.CompactSessionWithType("Auto-compacted stale session: "+task, ct); err != nil {
		return report, err
	}
	report.SessionsCompacted = 1
	report.CompactedTasks = append(report.CompactedTasks, task)
	return report, nil
}

// LoadEdgeBatches resolves a commit's edge batch ids to values.
func (r *Repo) LoadEdgeBatches(commit model.Commit) ([]model.EdgeBatch, error) {
	batches := make([]model.EdgeBatch, 0, len(commit.EdgeBatches))
	for _, id := range commit.EdgeBatches {
		var batch model.EdgeBatch
		if err := r.store.GetTyped(id, &batch); err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// History walks first parents from HEAD, returning up to limit commits
// (newest first). limit <= 0 means no cap.
func (r *Repo) History(limit int) ([]HistoryEntry, error) {
	id, err := r.HeadID()
	if err != nil {
		return nil, err
	}
	var out []HistoryEntry
	for {
		var commit model.Commit
		if err := r.store.GetTyped(id, &commit); err != nil {
			return nil, err
		}
		out = append(out, HistoryEntry{ID: id, Commit: commit})
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(commit.Parents) == 0 {
			break
		}
		id = commit.Parents[0]
	}
	return out, nil
}

// HistoryEntry pairs a commit with its id.
type HistoryEntry struct {
	ID     objectid.ID
	Commit model.Commit
}

// BuildPack runs the retrieval pipeline against this repository.
func (r *Repo) BuildPack(query string, cfg pack.RetrievalConfig) (*pack.PromptPack, error) {
	head, err := r.HeadID()
	if err != nil {
		return nil, err
	}
	idx, err := r.Index()
	if err != nil {
		return nil, err
	}
	return pack.Build(query, cfg, pack.Deps{
		Index:     idx,
		Store:     r.store,
		Narrative: r.Narrative(),
		Head:      head,
	})
}

// Gc runs garbage collection. Callers must ensure no session is active; the
// façade refuses to run with one held.
func (r *Repo) Gc(cfg gc.Config) (gc.Report, error) {
	if r.activeSession != nil {
		return gc.Report{}, ctxerr.New(ctxerr.KindGc, "refusing to collect with an active session")
	}
	return gc.Run(r.refs, r.store, cfg)
}

// Verify audits repository integrity.
func (r *Repo) Verify(cfg verify.Config) (verify.Report, error) {
	return verify.Run(r.refs, r.store, cfg)
}
