// Package reload implements a mtime/size polling file watcher, used by
// the profile store to pick up edits to its backing YAML file without
// depending on a platform-specific filesystem notification API.
package reload

import (
	"os"
	"sort"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher tracks a fixed set of file paths and reports which of them
// have changed (by mtime or size) since the last Check.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
}

// NewWatcher builds a watcher tracking paths, taking an initial
// snapshot of whichever of them currently exist.
func NewWatcher(paths ...string) *Watcher {
	w := &Watcher{}
	w.Reset(paths...)
	return w
}

// Reset replaces the tracked set with paths, snapshotting each file
// that currently exists. Missing files are not tracked: Check does not
// report a path that was missing at the last Reset, even after the file
// appears.
func (w *Watcher) Reset(paths ...string) {
	if w == nil {
		return
	}
	states := make(map[string]fileState, len(paths))
	for _, path := range uniquePaths(paths) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		states[path] = fileState{modTime: info.ModTime(), size: info.Size()}
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
}

// Check reports which tracked files changed (mtime or size differs, or
// the file went missing) since the last Reset or Check, and updates
// the snapshot for files that still exist. It returns nil when nothing
// changed.
func (w *Watcher) Check() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed = append(changed, path)
			continue
		}
		if info.IsDir() {
			continue
		}
		if info.ModTime().After(state.modTime) || info.Size() != state.size {
			changed = append(changed, path)
			w.files[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	}
	sort.Strings(changed)
	return changed
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
