package session

import (
	"sync"

	"github.com/google/uuid"
)

// AnswerStore holds the student's current answer per question. Writes are
// last-write-wins; values are never deleted during a session, only
// overwritten. The store stays readable after the session locks so the
// submission snapshot can be taken, but rejects further writes.
type AnswerStore struct {
	mu     sync.RWMutex
	values map[uuid.UUID]string
	locked bool
}

// NewAnswerStore creates an empty answer store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{values: make(map[uuid.UUID]string)}
}

// Set overwrites the answer for questionID unconditionally. Shape validation
// of the value belongs to the per-kind input surface, not here. Returns
// ErrSessionLocked once submission has begun.
func (s *AnswerStore) Set(questionID uuid.UUID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return ErrSessionLocked
	}
	s.values[questionID] = value
	return nil
}

// Get returns the last value set for questionID. The second return value is
// false when the question is unanswered.
func (s *AnswerStore) Get(questionID uuid.UUID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[questionID]
	return v, ok
}

// AnsweredCount is the number of answered questions, used for progress
// display only — never for scoring.
func (s *AnswerStore) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a stable copy of all answers keyed by question id string.
func (s *AnswerStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for id, v := range s.values {
		out[id.String()] = v
	}
	return out
}

// Lock rejects all further writes. Irreversible for the lifetime of the
// attempt; reads keep working.
func (s *AnswerStore) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
}
