package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionKind enumerates the supported question types.
type QuestionKind string

const (
	QuestionKindSingleChoice QuestionKind = "SINGLE_CHOICE"
	QuestionKindCode         QuestionKind = "CODE"
	QuestionKindDiagram      QuestionKind = "DIAGRAM"
	QuestionKindShortText    QuestionKind = "SHORT_TEXT"
)

// Question is a single exam question. The sequence handed to a session is
// immutable once the attempt starts.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	ExamID   uuid.UUID    `json:"exam_id"`
	Text     string       `json:"text"`
	Kind     QuestionKind `json:"kind"`
	Position int          `json:"position"`
	Points   int          `json:"points"`
	// Payload carries kind-specific data: the choice list for single-choice,
	// starter code for code questions, an initial document for diagrams.
	Payload json.RawMessage `json:"payload,omitempty"`
	// CorrectChoice is only meaningful for single-choice questions and is
	// never serialized to students.
	CorrectChoice string `json:"-"`
}

// QuestionForStudent is a question stripped of grading data, as served to the
// exam taker.
type QuestionForStudent struct {
	ID       uuid.UUID       `json:"id"`
	Text     string          `json:"text"`
	Kind     QuestionKind    `json:"kind"`
	Position int             `json:"position"`
	Points   int             `json:"points"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ForStudent strips grading-only fields.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Text:     q.Text,
		Kind:     q.Kind,
		Position: q.Position,
		Points:   q.Points,
		Payload:  q.Payload,
	}
}
