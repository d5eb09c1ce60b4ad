// Package selection holds the patient currently selected on the dashboard.
package selection

import "sync"

// Store holds at most one entity id. Ids are not checked against any
// collection; a stale id shows up as a failed detail fetch.
type Store struct {
	mu      sync.RWMutex
	current string
	version uint64
}

func New() *Store {
	return &Store{}
}

// Select replaces the selection. The last call wins.
func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	s.version++
}

// Current returns the selected id, if any.
func (s *Store) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != ""
}

// Clear drops the selection, e.g. on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return
	}
	s.current = ""
	s.version++
}

// Version increases on every change, letting views detect that the
// selection moved while a dependent fetch was in flight.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
