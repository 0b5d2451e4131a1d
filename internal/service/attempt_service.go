package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/session"
)

var (
	// ErrExamNotAvailable is returned when the exam is missing or unpublished.
	ErrExamNotAvailable = errors.New("exam is not available")
	// ErrInvalidAccessCode is returned when the access code does not match.
	ErrInvalidAccessCode = errors.New("invalid access code")
	// ErrAttemptNotFound is returned when no live session matches the token.
	ErrAttemptNotFound = errors.New("attempt not found")
)

// StartAttemptResult is returned when a session starts successfully.
type StartAttemptResult struct {
	AttemptID       uuid.UUID                  `json:"attempt_id"`
	Token           string                     `json:"token"`
	ExamTitle       string                     `json:"exam_title"`
	DurationSeconds int                        `json:"duration_seconds"`
	Questions       []model.QuestionForStudent `json:"questions"`
}

// AttemptState is the recoverable view of a live session, served to clients
// that reconnect after a refresh or crash.
type AttemptState struct {
	AttemptID        uuid.UUID              `json:"attempt_id"`
	ExamID           uuid.UUID              `json:"exam_id"`
	State            session.State          `json:"state"`
	CurrentIndex     int                    `json:"current_index"`
	AnsweredCount    int                    `json:"answered_count"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Answers          map[string]string      `json:"answers"`
	Violations       model.ViolationSummary `json:"violations"`
	GradingStatus    model.GradingStatus    `json:"grading_status"`
}

// AttemptService owns the registry of live exam sessions. Each attempt is a
// session.Controller wired with Redis-backed collaborators; the registry maps
// attempt IDs from validated tokens to their controllers.
type AttemptService struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Controller

	pool        *pgxpool.Pool
	rdb         *redis.Client
	exams       *repository.ExamRepository
	questions   *repository.QuestionRepository
	submissions *repository.SubmissionRepository
	violations  *repository.ViolationRepository
	tokens      *TokenService
	hub         *DirectiveHub
	cfg         *config.Config
	log         zerolog.Logger
}

// NewAttemptService creates the service with its repositories and hub.
func NewAttemptService(
	pool *pgxpool.Pool,
	rdb *redis.Client,
	exams *repository.ExamRepository,
	questions *repository.QuestionRepository,
	submissions *repository.SubmissionRepository,
	violations *repository.ViolationRepository,
	tokens *TokenService,
	hub *DirectiveHub,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		sessions:    make(map[uuid.UUID]*session.Controller),
		pool:        pool,
		rdb:         rdb,
		exams:       exams,
		questions:   questions,
		submissions: submissions,
		violations:  violations,
		tokens:      tokens,
		hub:         hub,
		cfg:         cfg,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start validates the access code, spins up a session controller and mints
// the attempt token the client uses for every subsequent call.
func (s *AttemptService) Start(ctx context.Context, req *model.StartAttemptRequest) (*StartAttemptResult, error) {
	exam, err := s.exams.GetByID(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}

	if err := bcrypt.CompareHashAndPassword([]byte(exam.AccessCodeHash), []byte(req.AccessCode)); err != nil {
		return nil, ErrInvalidAccessCode
	}

	// Pre-allocate the attempt ID so the directive-routed collaborators can
	// be built before the controller exists.
	attemptID := uuid.New()
	ctrl := session.NewController(session.Config{
		AttemptID:       attemptID,
		ExamID:          exam.ID,
		Student:         model.StudentInfo{Name: req.StudentName, Email: req.StudentEmail},
		DurationSeconds: exam.DurationMinutes * 60,
		Bank:            &repoQuestionBank{questions: s.questions},
		Store:           &repoSubmissionStore{submissions: s.submissions},
		Grader:          &queueGrader{rdb: s.rdb},
		Remediator:      &hubRemediator{hub: s.hub, attemptID: attemptID},
		Media:           &hubMediaCapture{hub: s.hub, attemptID: attemptID},
		Violations: &redisViolationSink{
			rdb:       s.rdb,
			attemptID: attemptID,
			examID:    exam.ID,
			log:       s.log,
		},
		MaxSubmitRetries: s.cfg.SubmitMaxRetries,
		Log:              s.log,
	})

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	token, err := s.tokens.MintAttemptToken(ctrl.AttemptID(), exam.ID, req.StudentName, req.StudentEmail)
	if err != nil {
		ctrl.Stop()
		return nil, fmt.Errorf("mint token: %w", err)
	}

	s.mu.Lock()
	s.sessions[ctrl.AttemptID()] = ctrl
	s.mu.Unlock()

	// Record the start time so operators can audit attempts that never
	// reach submission.
	s.rdb.Set(ctx, config.CacheKey.AttemptStartKey(ctrl.AttemptID().String()),
		time.Now().Unix(), s.cfg.AttemptTokenTTL)

	s.log.Info().
		Str("attempt_id", ctrl.AttemptID().String()).
		Str("exam_id", exam.ID.String()).
		Str("student", req.StudentName).
		Msg("Attempt started")

	return &StartAttemptResult{
		AttemptID:       ctrl.AttemptID(),
		Token:           token,
		ExamTitle:       exam.Title,
		DurationSeconds: exam.DurationMinutes * 60,
		Questions:       ctrl.Questions(),
	}, nil
}

// Controller resolves a live session by attempt ID.
func (s *AttemptService) Controller(attemptID uuid.UUID) (*session.Controller, error) {
	s.mu.RLock()
	ctrl, ok := s.sessions[attemptID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return ctrl, nil
}

// SetAnswer records an answer in the session, mirrors it to Redis and queues
// it for durable autosave.
func (s *AttemptService) SetAnswer(ctx context.Context, attemptID uuid.UUID, req *model.SetAnswerRequest) (int, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return 0, err
	}
	if err := ctrl.SetAnswer(req.QuestionID, req.Value); err != nil {
		return 0, err
	}

	s.mirrorAnswer(ctx, ctrl, req.QuestionID, req.Value)
	return ctrl.AnsweredCount(), nil
}

// answerJob is the queue message picked up by the autosave worker.
type answerJob struct {
	AttemptID string `json:"attempt_id"`
	ExamID    string `json:"exam_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
}

// mirrorAnswer keeps the Redis hash in sync for crash recovery and enqueues
// the durable write. Both operations are best-effort: the in-memory store is
// authoritative until submission.
func (s *AttemptService) mirrorAnswer(ctx context.Context, ctrl *session.Controller, questionID uuid.UUID, value string) {
	attemptID := ctrl.AttemptID().String()

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.AttemptAnswersKey(attemptID), questionID.String(), value)

	job := answerJob{
		AttemptID: attemptID,
		ExamID:    ctrl.ExamID().String(),
		QID:       questionID.String(),
		Answer:    value,
	}
	if data, err := json.Marshal(job); err == nil {
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Answer mirror failed")
	}
}

// Navigate applies a navigation request to the session.
func (s *AttemptService) Navigate(attemptID uuid.UUID, req *model.NavigateRequest) (int, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return 0, err
	}

	switch req.Op {
	case "next":
		err = ctrl.NextQuestion()
	case "previous":
		err = ctrl.PreviousQuestion()
	case "goto":
		err = ctrl.GoToQuestion(req.Index)
	default:
		return 0, fmt.Errorf("unknown navigation op %q", req.Op)
	}
	if err != nil {
		return 0, err
	}
	return ctrl.CurrentIndex(), nil
}

// ReportSignal feeds an environment signal into the session's monitor.
func (s *AttemptService) ReportSignal(attemptID uuid.UUID, kind, detail string) error {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return err
	}
	ctrl.ReportSignal(session.Signal{Kind: session.SignalKind(kind), Detail: detail})
	return nil
}

// Submit runs the student-triggered submission.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID) (*session.Outcome, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return nil, err
	}
	out, err := ctrl.Submit(ctx)
	if err == nil {
		s.clearAnswerMirror(ctx, attemptID)
	}
	return out, err
}

// Retry re-attempts persistence after a failed submission.
func (s *AttemptService) Retry(ctx context.Context, attemptID uuid.UUID) (*session.Outcome, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return nil, err
	}
	out, err := ctrl.RetrySubmission(ctx)
	if err == nil {
		s.clearAnswerMirror(ctx, attemptID)
	}
	return out, err
}

func (s *AttemptService) clearAnswerMirror(ctx context.Context, attemptID uuid.UUID) {
	s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
}

// State assembles the recoverable view of a session for reconnecting clients.
func (s *AttemptService) State(attemptID uuid.UUID) (*AttemptState, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return nil, err
	}

	answers := make(map[string]string)
	for _, q := range ctrl.Questions() {
		if v, ok := ctrl.Answer(q.ID); ok {
			answers[q.ID.String()] = v
		}
	}

	return &AttemptState{
		AttemptID:        ctrl.AttemptID(),
		ExamID:           ctrl.ExamID(),
		State:            ctrl.Status(),
		CurrentIndex:     ctrl.CurrentIndex(),
		AnsweredCount:    ctrl.AnsweredCount(),
		RemainingSeconds: ctrl.TimeRemaining(),
		Answers:          answers,
		Violations:       ctrl.ViolationSummary(),
		GradingStatus:    ctrl.GradingStatus(),
	}, nil
}

// Violations returns the live violation summary plus the durable log.
func (s *AttemptService) Violations(ctx context.Context, attemptID uuid.UUID) (*model.ViolationSummary, []model.ViolationRecord, error) {
	ctrl, err := s.Controller(attemptID)
	if err != nil {
		return nil, nil, err
	}
	summary := ctrl.ViolationSummary()

	stored, err := s.violations.ListByAttempt(ctx, attemptID)
	if err != nil {
		// The live summary is still useful when the database is unavailable.
		s.log.Warn().Err(err).Msg("Loading stored violations failed")
		stored = nil
	}
	return &summary, stored, nil
}

// StopAll tears down every live session. Called on server shutdown; media
// release and clock teardown are guaranteed per session.
func (s *AttemptService) StopAll() {
	s.mu.Lock()
	sessions := make([]*session.Controller, 0, len(s.sessions))
	for _, ctrl := range s.sessions {
		sessions = append(sessions, ctrl)
	}
	s.sessions = make(map[uuid.UUID]*session.Controller)
	s.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.Stop()
	}
	s.log.Info().Int("count", len(sessions)).Msg("All sessions stopped")
}
