// Package fsstore is the default filesystem-backed LogStore implementation:
// date-partitioned JSON files under a root directory, written
// write-temp-then-rename for atomicity so durability survives a process
// restart.
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lumicore/sandrun/pkg/models"
)

// Store persists LogEntry records under:
//
//	<root>/failures/YYYY-MM-DD/<log_id>.json
//	<root>/successes/YYYY-MM-DD/<log_id>.json
//	<root>/sessions/<session_id>.json
type Store struct {
	mu   sync.Mutex
	root string
}

// New creates a Store rooted at dir, creating the directory tree if needed.
func New(dir string) (*Store, error) {
	for _, sub := range []string{"failures", "successes", "sessions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("fsstore: create %s: %w", sub, err)
		}
	}
	return &Store{root: dir}, nil
}

func (s *Store) WriteFailure(entry models.LogEntry) error {
	entry.Outcome = models.OutcomeFailure
	return s.writeEntry("failures", entry)
}

func (s *Store) WriteSuccess(entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeEntryLocked("successes", entry); err != nil {
		return err
	}

	return s.backfillSessionLocked(entry)
}

// backfillSessionLocked sets FixedBy to entry.LogID on every unresolved
// failure in entry's session, not just the one entry.PreviousAttemptID
// directly names: a session with several consecutive failures before a fix
// must have all of them marked resolved, since previous_attempt_id only
// ever points at the single most recent one.
func (s *Store) backfillSessionLocked(entry models.LogEntry) error {
	seen := map[string]bool{entry.LogID: true}
	fix := func(attemptID string) error {
		if attemptID == "" || seen[attemptID] {
			return nil
		}
		seen[attemptID] = true
		prior, ok := s.findEntryLocked(attemptID)
		if !ok || prior.Outcome != models.OutcomeFailure || prior.FixedBy != "" {
			return nil
		}
		prior.FixedBy = entry.LogID
		day := prior.Timestamp.UTC().Format("2006-01-02")
		return s.writeFileLocked(filepath.Join(s.root, "failures", day, prior.LogID+".json"), prior)
	}

	if err := fix(entry.PreviousAttemptID); err != nil {
		return fmt.Errorf("fsstore: backfill fixed_by: %w", err)
	}

	if entry.SessionID == "" {
		return nil
	}
	path := filepath.Join(s.root, "sessions", entry.SessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	for _, attemptID := range session.AttemptIDs {
		if err := fix(attemptID); err != nil {
			return fmt.Errorf("fsstore: backfill fixed_by: %w", err)
		}
	}
	return nil
}

func (s *Store) writeEntry(subdir string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEntryLocked(subdir, entry)
}

func (s *Store) writeEntryLocked(subdir string, entry models.LogEntry) error {
	day := entry.Timestamp.UTC().Format("2006-01-02")
	dir := filepath.Join(s.root, subdir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}
	return s.writeFileLocked(filepath.Join(dir, entry.LogID+".json"), entry)
}

func (s *Store) writeFileLocked(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsstore: rename temp file: %w", err)
	}
	return nil
}

func (s *Store) GetLog(logID string) (models.LogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findEntryLocked(logID)
}

func (s *Store) findEntryLocked(logID string) (models.LogEntry, bool) {
	for _, subdir := range []string{"failures", "successes"} {
		days, err := os.ReadDir(filepath.Join(s.root, subdir))
		if err != nil {
			continue
		}
		for _, day := range days {
			path := filepath.Join(s.root, subdir, day.Name(), logID+".json")
			entry, ok := readEntry(path)
			if ok {
				return entry, true
			}
		}
	}
	return models.LogEntry{}, false
}

func (s *Store) RecentFailures(limit int) ([]models.LogEntry, error) {
	return s.recent("failures", limit)
}

func (s *Store) RecentSuccesses(limit int) ([]models.LogEntry, error) {
	return s.recent("successes", limit)
}

func (s *Store) recent(subdir string, limit int) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := filepath.Join(s.root, subdir)
	days, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("fsstore: read %s: %w", subdir, err)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Name() > days[j].Name() })

	var entries []models.LogEntry
	for _, day := range days {
		files, err := os.ReadDir(filepath.Join(root, day.Name()))
		if err != nil {
			continue
		}
		var dayEntries []models.LogEntry
		for _, f := range files {
			if entry, ok := readEntry(filepath.Join(root, day.Name(), f.Name())); ok {
				dayEntries = append(dayEntries, entry)
			}
		}
		sort.Slice(dayEntries, func(i, j int) bool { return dayEntries[i].Timestamp.After(dayEntries[j].Timestamp) })
		for _, entry := range dayEntries {
			entries = append(entries, entry)
			if len(entries) >= limit {
				return entries, nil
			}
		}
	}
	return entries, nil
}

func readEntry(path string) (models.LogEntry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.LogEntry{}, false
	}
	var entry models.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.LogEntry{}, false
	}
	return entry, true
}

func (s *Store) GetSession(sessionID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, "sessions", sessionID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Session{}, false
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return models.Session{}, false
	}
	return session, true
}

func (s *Store) AppendSession(sessionID, attemptID string, resolved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, "sessions", sessionID+".json")

	session := models.Session{SessionID: sessionID, CreatedAt: time.Now().UTC()}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &session) //nolint:errcheck // fall back to fresh session on corrupt file
	}

	session.AttemptIDs = append(session.AttemptIDs, attemptID)
	if resolved && session.ResolvedAt == nil {
		now := time.Now().UTC()
		session.ResolvedAt = &now
	}

	return s.writeFileLocked(path, session)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range []string{"failures", "successes", "sessions"} {
		dir := filepath.Join(s.root, sub)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("fsstore: clear %s: %w", sub, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fsstore: recreate %s: %w", sub, err)
		}
	}
	return nil
}
