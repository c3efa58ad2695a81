// Package state persists per-host provisioning outcomes between runs so a
// re-run can skip hosts that already succeeded.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// successStatus matches task.StatusSuccess; kept as a string here so the
// state file format is self-contained.
const successStatus = "SUCCESS"

// Entry is the last known outcome for one host.
type Entry struct {
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store is the persisted mapping of canonical host string to Entry. It is
// owned by the orchestrator: loaded once at run start, mutated only after
// all tasks complete, flushed once at run end.
type Store struct {
	path    string
	force   bool
	entries map[string]Entry
}

// New creates a Store backed by the file at path. With force set, prior
// state is ignored and every host is re-provisioned.
func New(path string, force bool) *Store {
	return &Store{path: path, force: force, entries: make(map[string]Entry)}
}

// Load reads prior state from disk. Loading is best-effort: a missing or
// malformed file, or force mode, leaves the store empty rather than failing.
func (s *Store) Load() {
	s.entries = make(map[string]Entry)
	if s.force {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	if entries != nil {
		s.entries = entries
	}
}

// ShouldSkip reports whether host can be skipped: recorded Success in prior
// state with force mode off.
func (s *Store) ShouldSkip(host string) bool {
	if s.force {
		return false
	}
	entry, ok := s.entries[host]
	return ok && entry.Status == successStatus
}

// Record stores the terminal status for a host. Not persisted until Flush.
func (s *Store) Record(host, status string, at time.Time) {
	s.entries[host] = Entry{Status: status, LastUpdated: at.UTC()}
}

// Get returns the recorded entry for a host.
func (s *Store) Get(host string) (Entry, bool) {
	entry, ok := s.entries[host]
	return entry, ok
}

// Flush writes the full mapping to disk atomically (temp file + rename).
func (s *Store) Flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
