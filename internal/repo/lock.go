package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/logging"
)

const lockFileName = "LOCK"

// lockGuard holds the exclusive repository lock. Release removes the file.
type lockGuard struct {
	path string
	file *os.File
}

// acquireLock takes the repository LOCK file, cleaning up stale locks from
// dead processes. Bounded to three attempts.
func acquireLock(path string) (*lockGuard, error) {
	return acquireLockAttempt(path, 0)
}

func acquireLockAttempt(path string, attempt int) (*lockGuard, error) {
	if attempt > 2 {
		return nil, ctxerr.New(ctxerr.KindRepositoryLocked, "could not acquire repository lock")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		if _, werr := fmt.Fprintf(f, "%d\n", os.Getpid()); werr != nil {
			f.Close()
			os.Remove(path)
			return nil, ctxerr.Wrap(werr, ctxerr.KindIo, "write lock file")
		}
		if serr := f.Sync(); serr != nil {
			f.Close()
			os.Remove(path)
			return nil, ctxerr.Wrap(serr, ctxerr.KindIo, "sync lock file")
		}
		if lerr := flockExclusive(f); lerr != nil {
			f.Close()
			os.Remove(path)
			return nil, ctxerr.New(ctxerr.KindRepositoryLocked, "could not take file lock")
		}
		return &lockGuard{path: path, file: f}, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, ctxerr.Wrap(err, ctxerr.KindIo, "create lock file")
	}

	// Lock file exists; decide whether the holder is alive.
	content, rerr := os.ReadFile(path)
	if rerr != nil {
		if errors.Is(rerr, fs.ErrNotExist) {
			// Released between our create and read.
			return acquireLockAttempt(path, attempt+1)
		}
		return nil, ctxerr.New(ctxerr.KindRepositoryLocked, "could not read existing lock")
	}

	pid, perr := strconv.Atoi(strings.TrimSpace(string(content)))
	if perr != nil {
		logging.Warn("lock file has invalid content, cleaning up", "path", path)
		_ = os.Remove(path)
		return acquireLockAttempt(path, attempt+1)
	}

	if processAlive(pid) {
		return nil, ctxerr.SessionLockHeld(pid)
	}

	logging.Warn("removing stale lock from dead process", "pid", pid)
	if rmerr := os.Remove(path); rmerr != nil && !errors.Is(rmerr, fs.ErrNotExist) {
		return nil, ctxerr.Wrap(rmerr, ctxerr.KindIo, "remove stale lock")
	}
	return acquireLockAttempt(path, attempt+1)
}

// Release drops the lock and deletes the file. Safe to call twice.
func (g *lockGuard) Release() {
	if g == nil || g.file == nil {
		return
	}
	funlock(g.file)
	g.file.Close()
	g.file = nil
	_ = os.Remove(g.path)
}
