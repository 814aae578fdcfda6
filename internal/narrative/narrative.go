// Package narrative manages the plain-text authored content under
// <repo>/narrative: daily logs, task files, and change detection against the
// object store. File contents are opaque UTF-8 to the rest of the system;
// only the path conventions and the Status line format are structured.
package narrative

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ctxgraph/ctx/internal/ctxerr"
	"github.com/ctxgraph/ctx/internal/model"
	"github.com/ctxgraph/ctx/internal/objectid"
	"github.com/ctxgraph/ctx/internal/store"
)

// Space is a handle on the narrative directory.
type Space struct {
	root string
}

// TaskInfo describes a created task file.
type TaskInfo struct {
	ID           int
	Path         string
	RelativePath string
}

// New creates a Space rooted at <repoDir>/narrative.
func New(repoDir string) *Space {
	return &Space{root: filepath.Join(repoDir, "narrative")}
}

// Root returns the narrative directory.
func (s *Space) Root() string {
	return s.root
}

// EnsureStructure creates the log/ and tasks/ subdirectories.
func (s *Space) EnsureStructure() error {
	for _, dir := range []string{"log", "tasks"} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return ctxerr.Wrapf(err, ctxerr.KindNarrative, "create narrative %s dir", dir)
		}
	}
	return nil
}

// AppendLog appends a timestamped entry to log/<date>.md, creating the file
// with its date header when new. Returns the relative path of the log file.
func (s *Space) AppendLog(date, timeOfDay, entry string) (string, error) {
	relative := "log/" + date + ".md"
	path := filepath.Join(s.root, "log", date+".md")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", ctxerr.Wrap(err, ctxerr.KindNarrative, "create log dir")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "open %s", relative)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "stat %s", relative)
	}
	if info.Size() == 0 {
		if _, err := fmt.Fprintf(f, "# %s\n\n", date); err != nil {
			return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "write %s", relative)
		}
	}
	if _, err := fmt.Fprintf(f, "### %s\n\n%s\n\n", timeOfDay, entry); err != nil {
		return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "write %s", relative)
	}
	if err := f.Sync(); err != nil {
		return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "sync %s", relative)
	}
	return relative, nil
}

// CreateTask allocates the next task id and writes tasks/task_NNNN.md with a
// title heading and an open Status line.
func (s *Space) CreateTask(title, body string) (TaskInfo, error) {
	ids, err := s.taskIDs()
	if err != nil {
		return TaskInfo{}, err
	}
	next := 1
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}

	filename := fmt.Sprintf("task_%04d.md", next)
	relative := "tasks/" + filename
	path := filepath.Join(s.root, "tasks", filename)

	content := fmt.Sprintf("# %s\n\n**Status:** open\n", title)
	if body != "" {
		content += "\n" + body + "\n"
	}
	if err := atomicWrite(path, []byte(content)); err != nil {
		return TaskInfo{}, err
	}
	return TaskInfo{ID: next, Path: path, RelativePath: relative}, nil
}

// UpdateTask rewrites the Status line of tasks/task_NNNN.md in place and,
// when note is non-empty, appends it behind a --- separator.
func (s *Space) UpdateTask(id int, status, note string) (string, error) {
	filename := fmt.Sprintf("task_%04d.md", id)
	relative := "tasks/" + filename
	path := filepath.Join(s.root, "tasks", filename)

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ctxerr.Newf(ctxerr.KindNarrative, "task #%04d not found at %s", id, relative)
		}
		return "", ctxerr.Wrapf(err, ctxerr.KindNarrative, "read task #%04d", id)
	}

	content := string(raw)
	start := strings.Index(content, "**Status:**")
	if start < 0 {
		return "", ctxerr.Newf(ctxerr.KindNarrative,
			"task #%04d is malformed: missing '**Status:**' line", id)
	}
	lineEnd := strings.Index(content[start:], "\n")
	if lineEnd < 0 {
		lineEnd = len(content) - start
	}
	content = content[:start] + "**Status:** " + status + content[start+lineEnd:]

	if note != "" {
		content += "\n---\n\n" + note + "\n"
	}
	if err := atomicWrite(path, []byte(content)); err != nil {
		return "", err
	}
	return relative, nil
}

// ReadFile returns the contents of a narrative file by slash-separated
// relative path.
func (s *Space) ReadFile(relative string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(relative)))
	if err != nil {
		return nil, ctxerr.Wrapf(err, ctxerr.KindNarrative, "read %s", relative)
	}
	return data, nil
}

// ListFiles returns every .md file under the narrative root as sorted
// slash-separated relative paths.
func (s *Space) ListFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, ctxerr.Wrap(err, ctxerr.KindNarrative, "list narrative files")
	}
	sort.Strings(files)
	return files, nil
}

// SnapshotChanged blobs every narrative file whose content differs from the
// version recorded in previousRefs, returning refs for the changed files
// sorted by path. PutBlob deduplicates, so unchanged files cost one hash.
func (s *Space) SnapshotChanged(st *store.Store, previousRefs []model.NarrativeRef, role string) ([]model.NarrativeRef, error) {
	previous := make(map[string]objectid.ID, len(previousRefs))
	for _, r := range previousRefs {
		previous[r.Path] = r.BlobID
	}

	files, err := s.ListFiles()
	if err != nil {
		return nil, err
	}

	var changed []model.NarrativeRef
	for _, relative := range files {
		content, err := s.ReadFile(relative)
		if err != nil {
			return nil, err
		}
		blobID, err := st.PutBlob(content)
		if err != nil {
			return nil, err
		}
		if prev, ok := previous[relative]; ok && prev == blobID {
			continue
		}
		changed = append(changed, model.NarrativeRef{
			Path:   relative,
			Role:   role,
			BlobID: blobID,
		})
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Path < changed[j].Path })
	return changed, nil
}

// ReadFromBlob fetches narrative text from the object store by blob id.
func ReadFromBlob(st *store.Store, blobID objectid.ID) (string, error) {
	data, err := st.GetBlob(blobID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Space) taskIDs() ([]int, error) {
	tasksDir := filepath.Join(s.root, "tasks")
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ctxerr.Wrap(err, ctxerr.KindNarrative, "read tasks dir")
	}
	var ids []int
	for _, e := range entries {
		name := e.Name()
		numStr, ok := strings.CutPrefix(name, "task_")
		if !ok {
			continue
		}
		numStr, ok = strings.CutSuffix(numStr, ".md")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(numStr); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ctxerr.Wrap(err, ctxerr.KindNarrative, "create parent dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ctxerr.Wrapf(err, ctxerr.KindNarrative, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ctxerr.Wrapf(err, ctxerr.KindNarrative, "rename %s", tmp)
	}
	return nil
}
