package conversation

import (
	"sync"

	"docsearch/internal/domain"
)

// Store is the ordered, append-only transcript of one conversation.
//
// Writes are copy-on-write: a Snapshot handed out earlier is never modified
// by a later Append or Replace.
type Store struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// NewStore returns an empty transcript.
func NewStore() *Store { return &Store{} }

// Append adds msg at the tail.
func (s *Store) Append(msg domain.Message) {
	s.mu.Lock()
	// Snapshots are capped at their length, so writing into spare capacity
	// never shows through an earlier snapshot.
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Replace swaps the entry with the given id for msg, keeping its position.
// It reports whether the entry was found.
func (s *Store) Replace(id string, msg domain.Message) bool {
	s.mu.Lock()
	idx := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]domain.Message, len(s.messages))
	copy(next, s.messages)
	next[idx] = msg
	s.messages = next
	s.mu.Unlock()
	return true
}

// ReplaceAll swaps the whole transcript.
func (s *Store) ReplaceAll(msgs []domain.Message) {
	next := make([]domain.Message, len(msgs))
	copy(next, msgs)
	s.mu.Lock()
	s.messages = next
	s.mu.Unlock()
}

// Snapshot returns the transcript in append order. Callers must not modify it.
func (s *Store) Snapshot() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[:len(s.messages):len(s.messages)]
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
