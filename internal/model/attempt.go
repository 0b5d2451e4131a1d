package model

import (
	"github.com/google/uuid"
)

// SubmissionStatus tracks where an attempt sits in its lifecycle.
type SubmissionStatus string

const (
	SubmissionStatusInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionStatusSubmitting SubmissionStatus = "SUBMITTING"
	SubmissionStatusSubmitted  SubmissionStatus = "SUBMITTED"
	SubmissionStatusFailed     SubmissionStatus = "FAILED"
)

// GradingStatus tracks the grading collaborator's outcome, decoupled from
// submission success.
type GradingStatus string

const (
	GradingStatusPending   GradingStatus = "PENDING"
	GradingStatusRequested GradingStatus = "REQUESTED"
	GradingStatusCompleted GradingStatus = "COMPLETED"
	GradingStatusFailed    GradingStatus = "FAILED"
)

// StudentInfo identifies the exam taker for the lifetime of one attempt.
type StudentInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// StartAttemptRequest is the payload for starting a proctored attempt.
type StartAttemptRequest struct {
	ExamID       uuid.UUID `json:"exam_id" binding:"required"`
	AccessCode   string    `json:"access_code" binding:"required,min=4,max=40"`
	StudentName  string    `json:"student_name" binding:"required,min=1,max=120"`
	StudentEmail string    `json:"student_email" binding:"omitempty,email"`
}

// SetAnswerRequest is the payload for recording an answer.
type SetAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Value      string    `json:"value" binding:"required"`
}

// NavigateRequest is the payload for moving between questions.
// Op is one of "next", "previous", "goto"; Index is only read for "goto".
type NavigateRequest struct {
	Op    string `json:"op" binding:"required,oneof=next previous goto"`
	Index int    `json:"index" binding:"min=0"`
}
