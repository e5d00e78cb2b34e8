package memory

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Store owns the user-id to UserRecord mapping. The whole mapping is
// loaded once at startup and rewritten to disk after every mutation.
// A missing or unparseable file is treated as an empty store, never as
// a fatal error; a failing disk degrades the store to in-memory-only
// operation with a logged warning.
type Store struct {
	path string

	mu    sync.Mutex
	users map[string]*UserRecord

	lockMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path:      path,
		users:     make(map[string]*UserRecord),
		userLocks: make(map[string]*sync.Mutex),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read memory file: %w", err)
	}

	users := make(map[string]*UserRecord)
	if err := json.Unmarshal(data, &users); err != nil {
		log.Printf("[store] memory file unparseable, starting fresh: %v", err)
		return nil
	}
	for _, rec := range users {
		rec.heal()
	}
	s.users = users
	return nil
}

// saveLocked rewrites the whole mapping. Callers must hold s.mu.
// Write failures are logged, not returned: the store keeps serving
// from memory and retries on the next mutation.
func (s *Store) saveLocked() {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		log.Printf("[store] marshal memory: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		log.Printf("[store] create memory dir: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("[store] write memory file: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("[store] replace memory file: %v", err)
	}
}

func (s *Store) getOrCreateLocked(userID string) *UserRecord {
	rec, ok := s.users[userID]
	if !ok {
		rec = newUserRecord()
		s.users[userID] = rec
	}
	rec.heal()
	return rec
}

// LockUser serializes the full handle cycle for one user identifier.
// Handlers for different users run concurrently; two events from the
// same user never interleave their read-modify-write cycles.
func (s *Store) LockUser(userID string) (unlock func()) {
	s.lockMu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	return l.Unlock
}

// Mutate applies fn to the user's record (creating it if absent) and
// persists the store before returning.
func (s *Store) Mutate(userID string, fn func(*UserRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getOrCreateLocked(userID)
	fn(rec)
	s.saveLocked()
}

// View calls fn with the user's record without persisting afterwards.
// fn must not retain the pointer or mutate the record.
func (s *Store) View(userID string, fn func(*UserRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return false
	}
	rec.heal()
	fn(rec)
	return true
}

// GetOrCreate returns a snapshot of the user's record, lazily creating
// and persisting a defaulted one on first contact.
func (s *Store) GetOrCreate(userID string) UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.users[userID]
	rec := s.getOrCreateLocked(userID)
	if !existed {
		s.saveLocked()
	}
	return snapshot(rec)
}

// Sweep applies fn to every record and persists once at the end.
// Used by maintenance jobs (relationship decay, away pings).
func (s *Store) Sweep(fn func(userID string, rec *UserRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.users {
		rec.heal()
		fn(id, rec)
	}
	s.saveLocked()
}

// Range calls fn for every record without persisting afterwards.
// fn must not mutate records; maintenance writers use Sweep.
func (s *Store) Range(fn func(userID string, rec *UserRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.users {
		rec.heal()
		fn(id, rec)
	}
}

// Len returns the number of known users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func snapshot(rec *UserRecord) UserRecord {
	out := *rec
	out.History = make([]Turn, len(rec.History))
	copy(out.History, rec.History)
	out.Facts = make(map[string]string, len(rec.Facts))
	for k, v := range rec.Facts {
		out.Facts[k] = v
	}
	return out
}
