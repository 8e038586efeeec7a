// Package pending tracks, per repository, the last generated commit message
// awaiting confirmation by a matching commit. The registry is instance-owned
// (constructed by the coordinator, no package state) and each entry is also
// persisted to the repo state dir so a commit observed by a different
// process still finds it.
package pending

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"codexmsg/cli/internal/erruser"
)

const pendingFilename = "pending.json"

// Entry is one generated message waiting for its commit.
type Entry struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Key normalizes a repository root into the registry key. Cleaned, absolute
// when possible, and case-folded on platforms whose filesystems are
// case-insensitive, so two spellings of the same root share one slot.
func Key(repoRoot string) string {
	p := filepath.Clean(repoRoot)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		p = strings.ToLower(p)
	}
	return p
}

// Registry holds at most one Entry per repository key. Set overwrites any
// prior entry; there is no expiry beyond an explicit Clear.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Set records e for the repository, replacing any prior entry.
func (r *Registry) Set(repoRoot string, e Entry) {
	r.mu.Lock()
	r.entries[Key(repoRoot)] = e
	r.mu.Unlock()
}

// Get returns the current entry for the repository, if any.
func (r *Registry) Get(repoRoot string) (Entry, bool) {
	r.mu.Lock()
	e, ok := r.entries[Key(repoRoot)]
	r.mu.Unlock()
	return e, ok
}

// Clear removes the entry for the repository. Clearing an absent entry is a
// no-op.
func (r *Registry) Clear(repoRoot string) {
	r.mu.Lock()
	delete(r.entries, Key(repoRoot))
	r.mu.Unlock()
}

// Save persists e to stateDir/pending.json with an atomic write so a crashed
// writer never leaves a torn file.
func Save(stateDir string, e Entry) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return erruser.New("Could not create the state directory.", err)
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return erruser.New("Could not save the pending message.", err)
	}
	f, err := os.CreateTemp(stateDir, "pending.*.tmp")
	if err != nil {
		return erruser.New("Could not save the pending message.", err)
	}
	tmpPath := f.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return erruser.New("Could not save the pending message.", err)
	}
	if err := f.Close(); err != nil {
		return erruser.New("Could not save the pending message.", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(stateDir, pendingFilename)); err != nil {
		return erruser.New("Could not save the pending message.", err)
	}
	return nil
}

// Load reads the persisted entry from stateDir. A missing file returns
// ok=false with no error; a corrupt file is an error.
func Load(stateDir string) (Entry, bool, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, pendingFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, erruser.New("Could not read the pending message.", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, erruser.New("Pending message file is invalid.", err)
	}
	return e, true, nil
}

// Remove deletes the persisted entry. Removing an absent file is a no-op.
func Remove(stateDir string) error {
	err := os.Remove(filepath.Join(stateDir, pendingFilename))
	if err != nil && !os.IsNotExist(err) {
		return erruser.New("Could not clear the pending message.", err)
	}
	return nil
}
