// Package ctxerr defines the typed error surface shared by every repository
// operation. Each error carries a Kind from a closed taxonomy plus an optional
// recovery hint that callers can show to the user.
package ctxerr

import (
	"fmt"
)

// Kind is the category of a repository error.
type Kind int

const (
	// KindObjectNotFound - requested object does not exist in the store
	KindObjectNotFound Kind = iota
	// KindHashMismatch - stored bytes hash to a different id than requested
	KindHashMismatch
	// KindCorruptedObject - envelope or framing damage on disk
	KindCorruptedObject
	// KindInvalidHex - malformed hex object id
	KindInvalidHex
	// KindSerialization - failed to encode a typed value
	KindSerialization
	// KindDeserialization - failed to decode a typed value
	KindDeserialization
	// KindCompression - zstd compression or decompression failure
	KindCompression
	// KindBlobTooLarge - blob exceeds the configured size cap
	KindBlobTooLarge
	// KindRefNotFound - named ref does not exist
	KindRefNotFound
	// KindInvalidRef - ref file contents are malformed
	KindInvalidRef
	// KindIo - underlying filesystem failure
	KindIo
	// KindSessionAlreadyActive - a session is already held in memory
	KindSessionAlreadyActive
	// KindNoActiveSession - operation needs a session and none is active
	KindNoActiveSession
	// KindInvalidStateTransition - disallowed session state change
	KindInvalidStateTransition
	// KindRepositoryLocked - could not acquire the repository lock
	KindRepositoryLocked
	// KindSessionLockHeld - LOCK is held by another live process
	KindSessionLockHeld
	// KindStagingCorrupted - staging chain cannot be walked
	KindStagingCorrupted
	// KindIndexCorrupted - index database is unreadable or wrong version
	KindIndexCorrupted
	// KindConfig - configuration load or validation failure
	KindConfig
	// KindNarrative - narrative space I/O failure
	KindNarrative
	// KindGc - garbage collection failure
	KindGc
	// KindCargoNotFound - cargo binary not on PATH
	KindCargoNotFound
	// KindNoCargoManifest - no Cargo.toml in the workspace
	KindNoCargoManifest
	// KindRustAnalyzerNotFound - rust-analyzer binary not on PATH
	KindRustAnalyzerNotFound
	// KindLspTimeout - LSP request exceeded its deadline
	KindLspTimeout
	// KindLsp - LSP server returned an error response
	KindLsp
)

// Error is a structured repository error. Kind identifies the failure class,
// Detail holds kind-specific fields (pid, path, expected/actual ids, ...).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Detail  map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so callers can use errors.Is with sentinel
// constructors: errors.Is(err, ctxerr.New(ctxerr.KindRefNotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// With adds a detail field and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// RecoveryHint returns a short user-facing suggestion for this error kind,
// or "" when no standard recovery exists.
func (e *Error) RecoveryHint() string {
	switch e.Kind {
	case KindIndexCorrupted:
		return "run 'ctx rebuild' to regenerate the index from objects"
	case KindCorruptedObject, KindHashMismatch:
		return "run 'ctx verify' to enumerate damage, then restore from backup"
	case KindSessionLockHeld:
		return "wait for the other process to finish, or remove LOCK after verifying it is dead"
	case KindSessionAlreadyActive:
		return "compact or abort the active session first"
	case KindNoActiveSession:
		return "start a session with 'ctx session start'"
	case KindStagingCorrupted:
		return "delete STAGE to discard the broken chain; committed history is unaffected"
	case KindCargoNotFound:
		return "install cargo and ensure it is on PATH"
	case KindRustAnalyzerNotFound:
		return "install rust-analyzer and ensure it is on PATH"
	default:
		return ""
	}
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Convenience constructors for kinds that carry structured detail.

// ObjectNotFound reports a missing object.
func ObjectNotFound(id string) *Error {
	return Newf(KindObjectNotFound, "object not found: %s", id).With("id", id)
}

// HashMismatch reports a content hash that does not match the requested id.
func HashMismatch(expected, actual string) *Error {
	return Newf(KindHashMismatch, "hash mismatch: expected %s, got %s", expected, actual).
		With("expected", expected).
		With("actual", actual)
}

// CorruptedObject reports envelope damage at a path.
func CorruptedObject(path, reason string) *Error {
	return Newf(KindCorruptedObject, "corrupted object at %s: %s", path, reason).
		With("path", path).
		With("reason", reason)
}

// BlobTooLarge reports a blob over the size cap.
func BlobTooLarge(size, limit uint64) *Error {
	return Newf(KindBlobTooLarge, "blob too large: %d bytes (limit %d)", size, limit).
		With("size", size).
		With("limit", limit)
}

// RefNotFound reports a missing ref.
func RefNotFound(name string) *Error {
	return Newf(KindRefNotFound, "ref not found: %s", name).With("name", name)
}

// InvalidRef reports malformed ref file contents.
func InvalidRef(path, reason string) *Error {
	return Newf(KindInvalidRef, "invalid ref %s: %s", path, reason).
		With("path", path).
		With("reason", reason)
}

// InvalidStateTransition reports a disallowed session state change.
func InvalidStateTransition(from, to string) *Error {
	return Newf(KindInvalidStateTransition, "invalid state transition: %s -> %s", from, to).
		With("from", from).
		With("to", to)
}

// SessionLockHeld reports a lock held by another live process.
func SessionLockHeld(pid int) *Error {
	return Newf(KindSessionLockHeld, "repository lock held by pid %d", pid).With("pid", pid)
}

// StagingCorrupted reports an unwalkable staging chain.
func StagingCorrupted(reason string) *Error {
	return Newf(KindStagingCorrupted, "staging corrupted: %s", reason).With("reason", reason)
}

// IndexCorrupted reports an unreadable index database.
func IndexCorrupted(message string) *Error {
	return Newf(KindIndexCorrupted, "index corrupted: %s", message).With("message", message)
}

// Lsp reports an error response from the language server.
func Lsp(code int, message string) *Error {
	return Newf(KindLsp, "lsp error %d: %s", code, message).
		With("code", code).
		With("message", message)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
