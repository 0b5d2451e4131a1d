package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionPayload is the write-once snapshot assembled when an attempt ends.
// It is never mutated after being handed to the persistence layer.
type SubmissionPayload struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	StudentName      string            `json:"student_name"`
	StudentEmail     string            `json:"student_email,omitempty"`
	Answers          map[string]string `json:"answers"`
	TimeTakenMinutes int               `json:"time_taken_minutes"`
	MaxScore         int               `json:"max_score"`
	ViolationCount   int               `json:"violation_count"`
	SubmittedAt      time.Time         `json:"submitted_at"`
}

// Submission is the persisted record of a completed attempt.
type Submission struct {
	ID               uuid.UUID     `json:"id"`
	AttemptID        uuid.UUID     `json:"attempt_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentName      string        `json:"student_name"`
	StudentEmail     string        `json:"student_email,omitempty"`
	TimeTakenMinutes int           `json:"time_taken_minutes"`
	MaxScore         int           `json:"max_score"`
	ViolationCount   int           `json:"violation_count"`
	GradingStatus    GradingStatus `json:"grading_status"`
	FinalScore       *float64      `json:"final_score,omitempty"`
	SubmittedAt      time.Time     `json:"submitted_at"`
}

// QuestionScore is one graded answer produced by the grading collaborator.
type QuestionScore struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	QuestionID   uuid.UUID `json:"question_id"`
	Score        float64   `json:"score"`
	Feedback     string    `json:"feedback,omitempty"`
}
