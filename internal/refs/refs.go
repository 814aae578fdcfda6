// Package refs manages named pointers to commits: HEAD, STAGE, and the tree
// of files under refs/. Writes are atomic (temp, fsync, rename, dir sync) so
// a crash leaves either the old id or the new one, never a torn file.
package refs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/objectid"
)

// Refs reads and writes ref files under a repository root.
type Refs struct {
	root string
}

// Named is one entry from ListRefs.
type Named struct {
	Name string
	ID   objectid.ID
}

// New creates a Refs handle rooted at the repository directory.
func New(root string) *Refs {
	return &Refs{root: root}
}

func (r *Refs) headPath() string  { return filepath.Join(r.root, "HEAD") }
func (r *Refs) stagePath() string { return filepath.Join(r.root, "STAGE") }

func (r *Refs) refPath(name string) string {
	return filepath.Join(r.root, "refs", filepath.FromSlash(name))
}

// ReadHead returns the commit id HEAD points at.
func (r *Refs) ReadHead() (objectid.ID, error) {
	return readRefFile(r.headPath(), "HEAD")
}

// WriteHead atomically points HEAD at a commit.
func (r *Refs) WriteHead(id objectid.ID) error {
	return writeRefFile(r.headPath(), id)
}

// ReadStage returns the WorkCommit id STAGE points at, or (zero, false) when
// no staging chain exists.
func (r *Refs) ReadStage() (objectid.ID, bool, error) {
	id, err := readRefFile(r.stagePath(), "STAGE")
	if err != nil {
		if ctxerr.IsKind(err, ctxerr.KindRefNotFound) {
			return objectid.ID{}, false, nil
		}
		return objectid.ID{}, false, err
	}
	return id, true, nil
}

// WriteStage atomically points STAGE at a work commit.
func (r *Refs) WriteStage(id objectid.ID) error {
	return writeRefFile(r.stagePath(), id)
}

// DeleteStage removes STAGE. Missing STAGE is not an error.
func (r *Refs) DeleteStage() error {
	if err := os.Remove(r.stagePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ctxerr.Wrap(err, ctxerr.KindIo, "delete STAGE")
	}
	return nil
}

// ReadRef returns the id stored under refs/<name>.
func (r *Refs) ReadRef(name string) (objectid.ID, error) {
	return readRefFile(r.refPath(name), name)
}

// WriteRef atomically writes refs/<name>, creating intermediate directories
// for names containing slashes.
func (r *Refs) WriteRef(name string, id objectid.ID) error {
	path := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ctxerr.Wrapf(err, ctxerr.KindIo, "create ref dir for %s", name)
	}
	return writeRefFile(path, id)
}

// DeleteRef removes refs/<name>.
func (r *Refs) DeleteRef(name string) error {
	if err := os.Remove(r.refPath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ctxerr.RefNotFound(name)
		}
		return ctxerr.Wrapf(err, ctxerr.KindIo, "delete ref %s", name)
	}
	return nil
}

// ListRefs walks refs/ and returns every ref sorted by name. Temp files from
// interrupted writes are skipped.
func (r *Refs) ListRefs() ([]Named, error) {
	refsDir := filepath.Join(r.root, "refs")
	var out []Named
	err := filepath.WalkDir(refsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(refsDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		id, err := readRefFile(path, name)
		if err != nil {
			return err
		}
		out = append(out, Named{Name: name, ID: id})
		return nil
	})
	if err != nil {
		var ce *ctxerr.Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, ctxerr.Wrap(err, ctxerr.KindIo, "list refs")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// readRefFile parses a ref file: exactly 64 hex chars after trimming.
func readRefFile(path, name string) (objectid.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return objectid.ID{}, ctxerr.RefNotFound(name)
		}
		return objectid.ID{}, ctxerr.Wrapf(err, ctxerr.KindIo, "read ref %s", name)
	}
	id, err := objectid.FromHex(string(data))
	if err != nil {
		return objectid.ID{}, ctxerr.InvalidRef(path, err.Error())
	}
	return id, nil
}

// writeRefFile lands "<hex>\n" atomically.
func writeRefFile(path string, id objectid.ID) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ctxerr.Wrapf(err, ctxerr.KindIo, "create %s", tmp)
	}
	if _, err := f.WriteString(id.Hex() + "\n"); err != nil {
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
	syncDir(filepath.Dir(path))
	return nil
}

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
