package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// SubmitReason tags what triggered a submission. Both triggers flow through
// the same code path so they share identical guarantees by construction.
type SubmitReason string

const (
	SubmitReasonManual  SubmitReason = "manual"
	SubmitReasonTimeout SubmitReason = "timeout"
)

// SubmissionStore durably persists the submission snapshot. CreateSubmission
// must be safe to call more than once per attempt; implementations are
// expected to use the attempt id as an idempotency key.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, p *model.SubmissionPayload) (uuid.UUID, error)
}

// Grader requests asynchronous grading for a persisted submission. Failure is
// never fatal to the attempt.
type Grader interface {
	RequestGrading(ctx context.Context, submissionID uuid.UUID, p *model.SubmissionPayload) error
}

// Outcome describes the terminal result of a submission attempt.
type Outcome struct {
	SubmissionID uuid.UUID              `json:"submission_id,omitempty"`
	Status       model.SubmissionStatus `json:"status"`
	Grading      model.GradingStatus    `json:"grading_status"`
	Reason       SubmitReason           `json:"reason,omitempty"`
}

// Coordinator orchestrates the terminal transition of an attempt: it persists
// the payload snapshot, then requests grading, translating partial failures
// into non-blocking outcomes. Persistence is always attempted before grading;
// grading is never requested for an unpersisted submission.
type Coordinator struct {
	mu         sync.Mutex
	store      SubmissionStore
	grader     Grader
	log        zerolog.Logger
	status     model.SubmissionStatus
	grading    model.GradingStatus
	payload    *model.SubmissionPayload
	outcome    *Outcome
	reason     SubmitReason
	retries    int
	maxRetries int
	gradingWG  sync.WaitGroup
}

// NewCoordinator creates a coordinator with a bounded persistence retry
// budget.
func NewCoordinator(store SubmissionStore, grader Grader, maxRetries int, log zerolog.Logger) *Coordinator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Coordinator{
		store:      store,
		grader:     grader,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "submission_coordinator").Logger(),
		status:     model.SubmissionStatusInProgress,
		grading:    model.GradingStatusPending,
	}
}

// Submit runs the terminal transition. The payload must already be a frozen
// snapshot; it is retained in memory on persistence failure so a retry never
// re-derives it — no data is discarded.
//
// Idempotent: once submission has begun, further calls return the existing
// outcome without re-persisting.
func (c *Coordinator) Submit(ctx context.Context, reason SubmitReason, payload *model.SubmissionPayload) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case model.SubmissionStatusSubmitting, model.SubmissionStatusSubmitted:
		return c.currentOutcomeLocked(), nil
	case model.SubmissionStatusFailed:
		// Re-submit after a failure is a retry: the original snapshot is
		// reused, not rebuilt.
		return c.retryLocked(ctx)
	}

	c.status = model.SubmissionStatusSubmitting
	c.payload = payload
	c.reason = reason
	return c.persistLocked(ctx)
}

// Retry re-attempts persistence of the retained payload after a failure.
func (c *Coordinator) Retry(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case model.SubmissionStatusSubmitted, model.SubmissionStatusSubmitting:
		return c.currentOutcomeLocked(), nil
	case model.SubmissionStatusInProgress:
		return nil, ErrNotActive
	}
	return c.retryLocked(ctx)
}

func (c *Coordinator) retryLocked(ctx context.Context) (*Outcome, error) {
	if c.retries >= c.maxRetries {
		return c.currentOutcomeLocked(), ErrRetryExhausted
	}
	c.retries++
	c.status = model.SubmissionStatusSubmitting
	return c.persistLocked(ctx)
}

// persistLocked performs persistence and, on success, dispatches the grading
// request. Called with c.mu held; the lock also serializes concurrent submit
// attempts so exactly one record is ever persisted.
func (c *Coordinator) persistLocked(ctx context.Context) (*Outcome, error) {
	id, err := c.store.CreateSubmission(ctx, c.payload)
	if err != nil {
		c.status = model.SubmissionStatusFailed
		c.outcome = &Outcome{
			Status:  model.SubmissionStatusFailed,
			Grading: c.grading,
			Reason:  c.reason,
		}
		c.log.Error().Err(err).
			Str("attempt_id", c.payload.AttemptID.String()).
			Msg("Submission persistence failed, payload retained for retry")
		return c.outcome, fmt.Errorf("persist submission: %w", err)
	}

	c.status = model.SubmissionStatusSubmitted
	c.grading = model.GradingStatusRequested
	c.outcome = &Outcome{
		SubmissionID: id,
		Status:       model.SubmissionStatusSubmitted,
		Grading:      model.GradingStatusRequested,
		Reason:       c.reason,
	}

	// Grading is requested asynchronously and only after persistence
	// succeeded. Its failure downgrades the grading status, never the
	// submission itself.
	if c.grader != nil {
		payload := c.payload
		c.gradingWG.Add(1)
		go func() {
			defer c.gradingWG.Done()
			if err := c.grader.RequestGrading(context.WithoutCancel(ctx), id, payload); err != nil {
				c.mu.Lock()
				c.grading = model.GradingStatusFailed
				if c.outcome != nil {
					c.outcome.Grading = model.GradingStatusFailed
				}
				c.mu.Unlock()
				c.log.Warn().Err(err).
					Str("submission_id", id.String()).
					Msg("Grading request failed; submission remains complete")
			}
		}()
	}

	c.log.Info().
		Str("submission_id", id.String()).
		Str("reason", string(c.reason)).
		Msg("Submission persisted")
	return c.outcome, nil
}

func (c *Coordinator) currentOutcomeLocked() *Outcome {
	if c.outcome != nil {
		out := *c.outcome
		out.Grading = c.grading
		return &out
	}
	return &Outcome{Status: c.status, Grading: c.grading, Reason: c.reason}
}

// Outcome returns the most recent submission outcome, or a synthetic one
// reflecting the current status if no attempt has completed yet.
func (c *Coordinator) Outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentOutcomeLocked()
}

// Status returns the current submission status.
func (c *Coordinator) Status() model.SubmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GradingStatus returns the grading collaborator's last known state.
func (c *Coordinator) GradingStatus() model.GradingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grading
}

// Payload returns the retained snapshot, if any.
func (c *Coordinator) Payload() *model.SubmissionPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload
}
