package session

import "errors"

var (
	// ErrSessionLocked is returned when an answer mutation or navigation is
	// attempted after submission has begun. This is a programmer/client error
	// and is never silently swallowed.
	ErrSessionLocked = errors.New("session is locked: submission has already begun")

	// ErrNoQuestions is returned when the question bank has no questions for
	// the requested exam.
	ErrNoQuestions = errors.New("exam has no questions")

	// ErrNotActive is returned for operations that require an active session.
	ErrNotActive = errors.New("session is not active")

	// ErrRetryExhausted is returned when the bounded persistence retry budget
	// has been used up.
	ErrRetryExhausted = errors.New("submission retry limit reached")
)
