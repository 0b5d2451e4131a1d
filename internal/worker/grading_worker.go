package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/grader"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
)

// AnswerGrader scores one free-form answer. Implemented by the OpenAI client;
// faked in tests.
type AnswerGrader interface {
	GradeAnswer(ctx context.Context, question model.Question, answer string) (*grader.GradeResult, error)
}

// GradingWorker consumes grading_queue and scores persisted submissions.
// Single-choice questions are scored locally; free-form answers go to the
// grading model. Grading failure marks the submission's grading status FAILED
// and never touches the submission itself.
type GradingWorker struct {
	submissions *repository.SubmissionRepository
	questions   *repository.QuestionRepository
	llm         AnswerGrader
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewGradingWorker creates a new GradingWorker. llm may be nil, in which case
// free-form answers receive a zero score pending manual review.
func NewGradingWorker(
	submissions *repository.SubmissionRepository,
	questions *repository.QuestionRepository,
	llm AnswerGrader,
	rdb *redis.Client,
	log zerolog.Logger,
) *GradingWorker {
	return &GradingWorker{
		submissions: submissions,
		questions:   questions,
		llm:         llm,
		rdb:         rdb,
		log:         log.With().Str("component", "grading_worker").Logger(),
	}
}

type gradingJobPayload struct {
	SubmissionID string `json:"submission_id"`
	AttemptID    string `json:"attempt_id"`
	ExamID       string `json:"exam_id"`
}

// Start runs the worker loop. Call in a goroutine.
func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *GradingWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.GradingQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(3 * time.Second)
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job gradingJobPayload
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
		return
	}

	if err := w.grade(ctx, &job); err != nil {
		w.log.Error().Err(err).
			Str("submission_id", job.SubmissionID).
			Msg("Grading failed")
		if id, perr := uuid.Parse(job.SubmissionID); perr == nil {
			_ = w.submissions.UpdateGradingStatus(ctx, id, model.GradingStatusFailed)
		}
	}
}

// grade loads the stored submission and scores every answer.
func (w *GradingWorker) grade(ctx context.Context, job *gradingJobPayload) error {
	submissionID, err := uuid.Parse(job.SubmissionID)
	if err != nil {
		return err
	}
	examID, err := uuid.Parse(job.ExamID)
	if err != nil {
		return err
	}

	answers, err := w.submissions.ListAnswers(ctx, submissionID)
	if err != nil {
		return err
	}
	questions, err := w.questions.ListByExam(ctx, examID)
	if err != nil {
		return err
	}

	scores := make([]model.QuestionScore, 0, len(questions))
	var total float64

	for _, q := range questions {
		answer, answered := answers[q.ID]
		score := w.scoreQuestion(ctx, q, answer, answered)
		score.SubmissionID = submissionID
		scores = append(scores, score)
		total += score.Score
	}

	if err := w.submissions.StoreScores(ctx, submissionID, scores, total); err != nil {
		return err
	}

	w.log.Info().
		Str("submission_id", submissionID.String()).
		Float64("final_score", total).
		Msg("Submission graded")
	return nil
}

func (w *GradingWorker) scoreQuestion(ctx context.Context, q model.Question, answer string, answered bool) model.QuestionScore {
	score := model.QuestionScore{QuestionID: q.ID}

	if !answered || strings.TrimSpace(answer) == "" {
		score.Feedback = "No answer given."
		return score
	}

	if q.Kind == model.QuestionKindSingleChoice {
		if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectChoice)) {
			score.Score = float64(q.Points)
		}
		return score
	}

	if w.llm == nil {
		score.Feedback = "Pending manual review."
		return score
	}

	result, err := w.llm.GradeAnswer(ctx, q, answer)
	if err != nil {
		// Individual grading errors fall back to manual review rather than
		// failing the whole submission.
		w.log.Warn().Err(err).
			Str("question_id", q.ID.String()).
			Msg("Model grading failed, leaving for manual review")
		score.Feedback = "Automatic grading unavailable; pending manual review."
		return score
	}

	score.Score = result.Score
	score.Feedback = result.Feedback
	return score
}
