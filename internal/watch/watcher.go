// Package watch discovers session JSONL files under a root and reports
// per-file byte growth.
//
// The log root commonly lives on mounts that do not deliver reliable
// change notifications, so the watcher polls stat on a fixed interval.
// Polling is correct under every mount; the latency cost is one interval.
// A slower reconciliation pass re-walks the tree to pick up new files.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Growth describes new bytes observed in one file. Truncated means the
// file shrank and must be re-parsed from offset zero.
type Growth struct {
	Path      string
	SessionID string
	From      int64
	To        int64
	MtimeNs   int64
	Truncated bool
}

// Watcher tracks known session files and their ingested sizes.
type Watcher struct {
	root string

	mu    sync.Mutex
	known map[string]*fileEntry
}

type fileEntry struct {
	sessionID string
	size      int64
	mtimeNs   int64
}

// New returns a watcher over the given root. Call Reconcile before the
// first Scan to populate the file set.
func New(root string) *Watcher {
	return &Watcher{root: root, known: make(map[string]*fileEntry)}
}

// Seed primes ingested sizes from persisted watermarks so a restart does
// not re-report already-ingested bytes.
func (w *Watcher) Seed(offsets map[string]int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, off := range offsets {
		w.known[path] = &fileEntry{
			sessionID: sessionIDFromPath(path),
			size:      off,
		}
	}
}

// Reconcile re-walks the root and registers files not yet tracked. New
// files start at offset zero so the next Scan reports their full length.
// It returns the paths it added.
func (w *Watcher) Reconcile() ([]string, error) {
	var found []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.IsDir() {
			// Subagent transcripts belong to their parent session's run,
			// not the index.
			if d.Name() == "subagents" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".jsonl" {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var added []string
	for _, path := range found {
		if _, ok := w.known[path]; !ok {
			w.known[path] = &fileEntry{sessionID: sessionIDFromPath(path)}
			added = append(added, path)
		}
	}
	sort.Strings(added)
	return added, nil
}

// Scan stats every known file and returns those that grew or shrank,
// ordered by path. Files that vanished are left tracked; removal is
// handled by Sweep.
func (w *Watcher) Scan() []Growth {
	w.mu.Lock()
	paths := make([]string, 0, len(w.known))
	for p := range w.known {
		paths = append(paths, p)
	}
	w.mu.Unlock()
	sort.Strings(paths)

	var out []Growth
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		w.mu.Lock()
		entry := w.known[path]
		if entry == nil {
			w.mu.Unlock()
			continue
		}
		size := info.Size()
		g := Growth{
			Path:      path,
			SessionID: entry.sessionID,
			MtimeNs:   info.ModTime().UnixNano(),
			To:        size,
		}
		switch {
		case size > entry.size:
			g.From = entry.size
			out = append(out, g)
		case size < entry.size:
			g.Truncated = true
			out = append(out, g)
		}
		w.mu.Unlock()
	}
	return out
}

// Commit records that a file has been ingested up to the given offset.
// Called after the store transaction succeeds; a failed ingest keeps the
// old watermark so the next scan retries the same bytes.
func (w *Watcher) Commit(path string, offset, mtimeNs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if entry, ok := w.known[path]; ok {
		entry.size = offset
		entry.mtimeNs = mtimeNs
	}
}

// Sweep returns tracked paths that no longer exist on disk and stops
// tracking them. Their sessions stay in the index: history is preserved.
func (w *Watcher) Sweep() []string {
	w.mu.Lock()
	paths := make([]string, 0, len(w.known))
	for p := range w.known {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	var gone []string
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			gone = append(gone, p)
		}
	}

	w.mu.Lock()
	for _, p := range gone {
		delete(w.known, p)
	}
	w.mu.Unlock()

	sort.Strings(gone)
	return gone
}

func sessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// WorkingDirFromProjectDir converts an encoded project directory name back
// into a filesystem path: "-Users-alice-workspace" -> "/Users/alice/workspace".
func WorkingDirFromProjectDir(dirName string) string {
	stripped := strings.TrimLeft(dirName, "-")
	return "/" + strings.ReplaceAll(stripped, "-", "/")
}

// ProjectDirFromWorkingDir is the inverse encoding used to locate the log
// directory for a working directory.
func ProjectDirFromWorkingDir(workingDir string) string {
	return "-" + strings.TrimLeft(strings.ReplaceAll(workingDir, "/", "-"), "-")
}

// ProjectNameFromWorkingDir extracts the last path component as the
// human-readable project name.
func ProjectNameFromWorkingDir(workingDir string) string {
	if workingDir == "" {
		return "unknown"
	}
	name := filepath.Base(workingDir)
	if name == "" || name == "/" || name == "." {
		return "unknown"
	}
	return name
}
