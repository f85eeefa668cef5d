package extrude

import (
	"sync"

	"github.com/joeblew999/plat-massing/internal/engine"
)

// HistoryStack is a LIFO of top-level run histories, oldest first.
type HistoryStack struct {
	mu      sync.Mutex
	entries []engine.HistoryID
}

// Push appends h as the most recent entry.
func (s *HistoryStack) Push(h engine.HistoryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, h)
}

// Pop removes and returns the most recent entry.
func (s *HistoryStack) Pop() (engine.HistoryID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, false
	}
	h := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return h, true
}

// Peek returns the most recent entry without removing it.
func (s *HistoryStack) Peek() (engine.HistoryID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, false
	}
	return s.entries[len(s.entries)-1], true
}

// Len returns the number of entries.
func (s *HistoryStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the stack, oldest first.
func (s *HistoryStack) Entries() []engine.HistoryID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.HistoryID, len(s.entries))
	copy(out, s.entries)
	return out
}
