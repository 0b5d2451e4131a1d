package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	ws "github.com/invigilo/invigilo-backend/internal/websocket"
)

// This file holds the per-attempt collaborator implementations injected into
// a session controller: the question bank, the submission store, the queue
// grader, the Redis violation sink and the directive-based remediator/media
// controller.

// ─── Question bank ─────────────────────────────────────────────────────────

type repoQuestionBank struct {
	questions *repository.QuestionRepository
}

func (b *repoQuestionBank) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return b.questions.ListByExam(ctx, examID)
}

// ─── Submission store ──────────────────────────────────────────────────────

type repoSubmissionStore struct {
	submissions *repository.SubmissionRepository
}

func (s *repoSubmissionStore) CreateSubmission(ctx context.Context, p *model.SubmissionPayload) (uuid.UUID, error) {
	return s.submissions.Create(ctx, p)
}

// ─── Queue grader ──────────────────────────────────────────────────────────

// gradingJob is the queue message picked up by the grading worker.
type gradingJob struct {
	SubmissionID string `json:"submission_id"`
	AttemptID    string `json:"attempt_id"`
	ExamID       string `json:"exam_id"`
}

// queueGrader enqueues a grading job instead of grading inline. The grading
// worker fetches the stored answers and scores them off the request path.
type queueGrader struct {
	rdb *redis.Client
}

func (g *queueGrader) RequestGrading(ctx context.Context, submissionID uuid.UUID, p *model.SubmissionPayload) error {
	job := gradingJob{
		SubmissionID: submissionID.String(),
		AttemptID:    p.AttemptID.String(),
		ExamID:       p.ExamID.String(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return g.rdb.RPush(ctx, config.WorkerKey.GradingQueue, data).Err()
}

// ─── Violation sink ────────────────────────────────────────────────────────

// violationJob is the queue message picked up by the violation worker.
type violationJob struct {
	AttemptID  string `json:"attempt_id"`
	ExamID     string `json:"exam_id"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	OccurredAt int64  `json:"occurred_at"`
}

// redisViolationSink pushes violation records to the persistence queue.
// Record never blocks on PostgreSQL; the worker owns durability.
type redisViolationSink struct {
	rdb       *redis.Client
	attemptID uuid.UUID
	examID    uuid.UUID
	log       zerolog.Logger
}

func (s *redisViolationSink) Record(v model.ViolationRecord) {
	job := violationJob{
		AttemptID:  s.attemptID.String(),
		ExamID:     s.examID.String(),
		Category:   string(v.Category),
		Message:    v.Message,
		Severity:   string(v.Severity),
		OccurredAt: v.OccurredAt.Unix(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal violation failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).Msg("Enqueue violation failed")
	}
}

// ─── Remediator and media over the directive hub ───────────────────────────

// hubRemediator translates monitor remediation calls into WebSocket
// directives for the attached client. All methods are fire-and-forget.
type hubRemediator struct {
	hub       *DirectiveHub
	attemptID uuid.UUID
}

func (r *hubRemediator) RequestRefocus()   { r.hub.Send(r.attemptID, ws.DirectiveRefocus) }
func (r *hubRemediator) EnterFullscreen()  { r.hub.Send(r.attemptID, ws.DirectiveFullscreen) }
func (r *hubRemediator) CancelNavigation() { r.hub.Send(r.attemptID, ws.DirectiveCancelNavigation) }
func (r *hubRemediator) BlockUnload()      { r.hub.Send(r.attemptID, ws.DirectiveBlockUnload) }
func (r *hubRemediator) SuppressDefault()  { r.hub.Send(r.attemptID, ws.DirectiveSuppressDefault) }

// hubMediaCapture asks the client to start or stop its camera stream. The
// server cannot acquire the stream itself, so Start always succeeds here;
// acquisition failures come back as media_error signals from the client.
type hubMediaCapture struct {
	hub       *DirectiveHub
	attemptID uuid.UUID
}

func (m *hubMediaCapture) Start(ctx context.Context) error {
	m.hub.Send(m.attemptID, ws.DirectiveStartMedia)
	return nil
}

func (m *hubMediaCapture) Stop() {
	m.hub.Send(m.attemptID, ws.DirectiveStopMedia)
}
