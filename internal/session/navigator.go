package session

import "sync"

// Navigator tracks the current question index over the immutable question
// list. The index is always within [0, count-1]. It holds no other state and
// never touches answers or persistence.
type Navigator struct {
	mu     sync.Mutex
	index  int
	count  int
	locked bool
}

// NewNavigator creates a navigator over count questions, positioned at 0.
func NewNavigator(count int) *Navigator {
	if count < 1 {
		count = 1
	}
	return &Navigator{count: count}
}

// Current returns the current question index. Always readable, even after
// the navigator is locked.
func (n *Navigator) Current() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// GoTo moves to index, clamping silently if it is out of bounds.
func (n *Navigator) GoTo(index int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.locked {
		return ErrSessionLocked
	}
	if index < 0 {
		index = 0
	}
	if index > n.count-1 {
		index = n.count - 1
	}
	n.index = index
	return nil
}

// Next advances by one question. No-op at the last question.
func (n *Navigator) Next() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.locked {
		return ErrSessionLocked
	}
	if n.index < n.count-1 {
		n.index++
	}
	return nil
}

// Previous moves back one question. No-op at the first question.
func (n *Navigator) Previous() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.locked {
		return ErrSessionLocked
	}
	if n.index > 0 {
		n.index--
	}
	return nil
}

// Lock freezes navigation. Irreversible for the lifetime of the attempt.
func (n *Navigator) Lock() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locked = true
}
