// Package users tracks which chatters have been seen before and greets
// first-time chatters.
package users

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Tracker remembers the user ids that have chatted at least once, persisted
// as a newline-delimited file.
type Tracker struct {
	path string

	mu    sync.Mutex
	known map[string]struct{}
}

func NewTracker(path string) *Tracker {
	return &Tracker{path: path, known: make(map[string]struct{})}
}

// Load reads the known-user file. A missing file is not an error; the
// tracker just starts empty.
func (t *Tracker) Load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no known users file; starting fresh", slog.String("path", t.path))
			return nil
		}
		return err
	}
	known := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			known[line] = struct{}{}
		}
	}
	t.mu.Lock()
	t.known = known
	t.mu.Unlock()
	slog.Info("loaded known users", slog.Int("count", len(known)), slog.String("path", t.path))
	return nil
}

// Save writes the known-user set back to disk, sorted for stable diffs.
func (t *Tracker) Save() error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.known))
	for id := range t.known {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Strings(ids)

	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(t.path, []byte(strings.Join(ids, "\n")+"\n"), 0o644)
}

// MarkSeen records a user id, reporting whether this was the first sighting.
func (t *Tracker) MarkSeen(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[userID]; ok {
		return false
	}
	t.known[userID] = struct{}{}
	return true
}

// Count returns how many users have been seen.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known)
}
