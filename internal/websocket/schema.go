package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Client → server actions.
const (
	ActionAnswer = "answer" // set or update an answer
	ActionNav    = "nav"    // navigate between questions
	ActionSignal = "signal" // report an environment signal
	ActionSubmit = "submit" // request submission
	ActionPing   = "ping"
)

// Server → client events.
const (
	EventSaved     = "saved"     // answer accepted and queued for persistence
	EventNav       = "nav"       // navigation result with current index
	EventDirective = "directive" // remediation directive (refocus, fullscreen, ...)
	EventViolation = "violation" // a violation was recorded
	EventTick      = "tick"      // authoritative remaining time
	EventSubmitted = "submitted" // submission outcome
	EventError     = "error"
	EventPong      = "pong"
)

// Remediation directives carried by EventDirective.
const (
	DirectiveRefocus          = "request_refocus"
	DirectiveFullscreen       = "enter_fullscreen"
	DirectiveCancelNavigation = "cancel_navigation"
	DirectiveBlockUnload      = "block_unload"
	DirectiveSuppressDefault  = "suppress_default"
	DirectiveStartMedia       = "start_media"
	DirectiveStopMedia        = "stop_media"
)

// ClientMessage is the envelope for every client → server frame.
type ClientMessage struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnswerPayload carries an answer update.
type AnswerPayload struct {
	QuestionID uuid.UUID `json:"question_id"`
	Value      string    `json:"value"`
}

// NavPayload carries a navigation request.
type NavPayload struct {
	Op    string `json:"op"` // next | previous | goto
	Index int    `json:"index,omitempty"`
}

// SignalPayload carries an environment signal observed by the client.
type SignalPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// ServerMessage is the envelope for every server → client frame.
type ServerMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// DirectivePayload tells the client which remediation to apply.
type DirectivePayload struct {
	Directive string `json:"directive"`
}

// SavedPayload acknowledges an accepted answer.
type SavedPayload struct {
	QuestionID    uuid.UUID `json:"question_id"`
	AnsweredCount int       `json:"answered_count"`
}

// NavResultPayload reports the index after a navigation request.
type NavResultPayload struct {
	Index int `json:"index"`
}

// TickPayload reports the authoritative remaining time.
type TickPayload struct {
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// ViolationPayload notifies the client that a violation was recorded.
type ViolationPayload struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Total    int    `json:"total"`
	Risk     string `json:"risk"`
}

// SubmittedPayload reports the submission outcome.
type SubmittedPayload struct {
	SubmissionID string `json:"submission_id,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

// ErrorPayload reports a request-level error over the socket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
