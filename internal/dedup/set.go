// Package dedup tracks Slack event ids that have already been handled.
//
// Slack redelivers events it believes were not acknowledged in time, so every
// event_callback is checked here before any side effect. The set is bounded:
// once an insert pushes it past its capacity the whole set is discarded. An
// event redelivered right after such a reset will be processed again; that is
// accepted behavior, not an eviction bug.
package dedup

import "sync"

// DefaultCapacity is the number of ids held before the set is cleared.
const DefaultCapacity = 1000

// Set is a process-lifetime set of seen event ids.
type Set struct {
	mu       sync.Mutex
	ids      map[string]struct{}
	capacity int
	resets   int
}

// New returns an empty set. A non-positive capacity means DefaultCapacity.
func New(capacity int) *Set {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Set{
		ids:      make(map[string]struct{}),
		capacity: capacity,
	}
}

// Seen reports whether id has been marked since the last reset.
func (s *Set) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Mark records id.
func (s *Set) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark(id)
}

// CheckAndMark marks id and reports whether it was already present.
func (s *Set) CheckAndMark(id string) (duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return true
	}
	s.mark(id)
	return false
}

// Len returns the number of ids currently held.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Resets returns how many times the set has been cleared.
func (s *Set) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

func (s *Set) mark(id string) {
	s.ids[id] = struct{}{}
	if len(s.ids) > s.capacity {
		clear(s.ids)
		s.resets++
	}
}
