package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// State is the lifecycle state of one attempt.
type State string

const (
	StateInitializing     State = "INITIALIZING"
	StateActive           State = "ACTIVE"
	StateSubmitting       State = "SUBMITTING"
	StateSubmitted        State = "SUBMITTED"
	StateSubmissionFailed State = "SUBMISSION_FAILED"
)

// QuestionBank supplies the ordered question list for an exam. It is an
// external collaborator; authoring is out of scope.
type QuestionBank interface {
	FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// Config wires an attempt's collaborators into the composition root.
type Config struct {
	// AttemptID may be pre-allocated so collaborators that need the id
	// (remediation routing, violation tagging) can be built first. Left
	// zero, a fresh id is generated.
	AttemptID uuid.UUID

	ExamID          uuid.UUID
	Student         model.StudentInfo
	DurationSeconds int

	Bank       QuestionBank
	Store      SubmissionStore
	Grader     Grader
	Remediator Remediator
	Media      MediaCapture
	Violations ViolationSink

	// MaxSubmitRetries bounds persistence retries after a failed submission.
	MaxSubmitRetries int

	Log zerolog.Logger
}

// Controller is the composition root of one proctored attempt. It wires the
// clock, navigator, answer store, integrity monitor and submission
// coordinator into a single state machine and is the only component exposed
// to the presentation layer.
//
// State machine: Initializing → Active → Submitting → {Submitted |
// SubmissionFailed}. Active is the only state permitting navigation and
// answer mutation. Time expiry and explicit submit funnel through the same
// submit(reason) path.
type Controller struct {
	mu        sync.Mutex
	cfg       Config
	attemptID uuid.UUID
	state     State
	questions []model.Question
	answers   *AnswerStore
	nav       *Navigator
	clock     *Clock
	monitor   *Monitor
	coord     *Coordinator
	maxScore  int
	log       zerolog.Logger
}

// NewController creates an attempt in the Initializing state.
func NewController(cfg Config) *Controller {
	if cfg.MaxSubmitRetries == 0 {
		cfg.MaxSubmitRetries = 3
	}
	attemptID := cfg.AttemptID
	if attemptID == uuid.Nil {
		attemptID = uuid.New()
	}
	return &Controller{
		cfg:       cfg,
		attemptID: attemptID,
		state:     StateInitializing,
		log: cfg.Log.With().
			Str("component", "exam_session").
			Str("attempt_id", attemptID.String()).
			Logger(),
	}
}

// Start loads the question list, arms the integrity monitor, starts the
// countdown and transitions to Active. Fails if the exam has no questions.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitializing {
		return fmt.Errorf("start from state %s: %w", c.state, ErrNotActive)
	}

	questions, err := c.cfg.Bank.FetchQuestions(ctx, c.cfg.ExamID)
	if err != nil {
		return fmt.Errorf("fetch questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	c.questions = questions
	for _, q := range questions {
		c.maxScore += q.Points
	}

	c.answers = NewAnswerStore()
	c.nav = NewNavigator(len(questions))
	c.monitor = NewMonitor(c.cfg.Remediator, c.cfg.Media, c.cfg.Violations, c.log)
	c.coord = NewCoordinator(c.cfg.Store, c.cfg.Grader, c.cfg.MaxSubmitRetries, c.log)
	c.clock = NewClock(c.cfg.DurationSeconds, nil, c.onExpire)

	c.monitor.Arm(ctx)
	c.clock.Start()
	c.state = StateActive

	c.log.Info().
		Str("exam_id", c.cfg.ExamID.String()).
		Int("questions", len(questions)).
		Int("duration_s", c.cfg.DurationSeconds).
		Msg("Attempt started")
	return nil
}

// onExpire is the clock's expiry callback — the sole time-based trigger of a
// forced submission. It carries the same guarantees as a manual submit.
func (c *Controller) onExpire() {
	c.log.Info().Msg("Time expired, forcing submission")
	if _, err := c.submit(context.Background(), SubmitReasonTimeout); err != nil {
		c.log.Error().Err(err).Msg("Timeout submission failed")
	}
}

// AttemptID identifies this attempt.
func (c *Controller) AttemptID() uuid.UUID { return c.attemptID }

// ExamID returns the exam under attempt.
func (c *Controller) ExamID() uuid.UUID { return c.cfg.ExamID }

// Student returns the exam taker's identity.
func (c *Controller) Student() model.StudentInfo { return c.cfg.Student }

// Questions returns the full paper without grading data.
func (c *Controller) Questions() []model.QuestionForStudent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.QuestionForStudent, len(c.questions))
	for i, q := range c.questions {
		out[i] = q.ForStudent()
	}
	return out
}

// CurrentQuestion returns the question at the navigator's index.
func (c *Controller) CurrentQuestion() (model.QuestionForStudent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.questions) == 0 {
		return model.QuestionForStudent{}, ErrNotActive
	}
	return c.questions[c.nav.Current()].ForStudent(), nil
}

// CurrentIndex returns the current question index. Readable in every state.
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nav == nil {
		return 0
	}
	return c.nav.Current()
}

// SetAnswer records an answer. Fails loudly with ErrSessionLocked once
// submission has begun.
func (c *Controller) SetAnswer(questionID uuid.UUID, value string) error {
	c.mu.Lock()
	answers := c.answers
	state := c.state
	c.mu.Unlock()

	if answers == nil || state == StateInitializing {
		return ErrNotActive
	}
	return answers.Set(questionID, value)
}

// Answer returns the stored answer for a question, ok=false if unanswered.
func (c *Controller) Answer(questionID uuid.UUID) (string, bool) {
	c.mu.Lock()
	answers := c.answers
	c.mu.Unlock()
	if answers == nil {
		return "", false
	}
	return answers.Get(questionID)
}

// AnsweredCount reports progress for display.
func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	answers := c.answers
	c.mu.Unlock()
	if answers == nil {
		return 0
	}
	return answers.AnsweredCount()
}

// GoToQuestion jumps to index, clamping out-of-bounds values.
func (c *Controller) GoToQuestion(index int) error {
	if nav := c.navigator(); nav != nil {
		return nav.GoTo(index)
	}
	return ErrNotActive
}

// NextQuestion advances one question; no-op at the end of the paper.
func (c *Controller) NextQuestion() error {
	if nav := c.navigator(); nav != nil {
		return nav.Next()
	}
	return ErrNotActive
}

// PreviousQuestion moves back one question; no-op at the start.
func (c *Controller) PreviousQuestion() error {
	if nav := c.navigator(); nav != nil {
		return nav.Previous()
	}
	return ErrNotActive
}

func (c *Controller) navigator() *Navigator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nav
}

// TimeRemaining returns the countdown's remaining seconds.
func (c *Controller) TimeRemaining() int {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()
	if clock == nil {
		return c.cfg.DurationSeconds
	}
	return clock.Remaining()
}

// ReportSignal feeds one environment signal to the integrity monitor.
func (c *Controller) ReportSignal(sig Signal) {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor != nil {
		monitor.Observe(sig)
	}
}

// ViolationSummary returns the count, advisory risk classification and recent
// records.
func (c *Controller) ViolationSummary() model.ViolationSummary {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor == nil {
		return model.ViolationSummary{Risk: model.RiskNormal, Recent: []model.ViolationRecord{}}
	}
	return monitor.Summary()
}

// Status returns the attempt's lifecycle state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GradingStatus returns the grading collaborator's last known state.
func (c *Controller) GradingStatus() model.GradingStatus {
	c.mu.Lock()
	coord := c.coord
	c.mu.Unlock()
	if coord == nil {
		return model.GradingStatusPending
	}
	return coord.GradingStatus()
}

// Submit is the explicit student-triggered submission. It shares the exact
// code path with time expiry.
func (c *Controller) Submit(ctx context.Context) (*Outcome, error) {
	return c.submit(ctx, SubmitReasonManual)
}

// RetrySubmission re-attempts persistence after a failed submission without
// re-deriving the payload. Bounded by Config.MaxSubmitRetries.
func (c *Controller) RetrySubmission(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	if c.state != StateSubmissionFailed {
		coord := c.coord
		c.mu.Unlock()
		if coord == nil {
			return nil, ErrNotActive
		}
		return coord.Outcome(), nil
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	out, err := c.coord.Retry(ctx)
	c.finishSubmission(err)
	return out, err
}

// submit freezes the session, snapshots the payload and hands it to the
// coordinator. The clock and monitor are torn down on every path — the
// session never continues after a submission attempt, regardless of outcome.
func (c *Controller) submit(ctx context.Context, reason SubmitReason) (*Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateInitializing:
		c.mu.Unlock()
		return nil, ErrNotActive
	case StateSubmitting, StateSubmitted:
		coord := c.coord
		c.mu.Unlock()
		return coord.Outcome(), nil
	case StateSubmissionFailed:
		c.state = StateSubmitting
		c.mu.Unlock()
		out, err := c.coord.Retry(ctx)
		c.finishSubmission(err)
		return out, err
	}

	// Point of no return: lock answers and navigation before anything is
	// persisted so the snapshot is stable.
	c.state = StateSubmitting
	c.answers.Lock()
	c.nav.Lock()
	payload := c.buildPayloadLocked(reason)
	coord := c.coord
	c.mu.Unlock()

	out, err := coord.Submit(ctx, reason, payload)
	c.finishSubmission(err)
	return out, err
}

// finishSubmission records the terminal state and tears down the clock and
// monitor. Runs after both successful and failed persistence, including the
// timeout-plus-persistence-failure case.
func (c *Controller) finishSubmission(err error) {
	c.mu.Lock()
	if err != nil {
		c.state = StateSubmissionFailed
	} else {
		c.state = StateSubmitted
	}
	clock := c.clock
	monitor := c.monitor
	c.mu.Unlock()

	clock.Stop()
	monitor.Disarm()
}

// buildPayloadLocked snapshots the submission payload. Caller holds c.mu.
func (c *Controller) buildPayloadLocked(reason SubmitReason) *model.SubmissionPayload {
	elapsed := c.cfg.DurationSeconds - c.clock.Remaining()
	if elapsed < 0 {
		elapsed = 0
	}
	minutes := (elapsed + 59) / 60

	return &model.SubmissionPayload{
		AttemptID:        c.attemptID,
		ExamID:           c.cfg.ExamID,
		StudentName:      c.cfg.Student.Name,
		StudentEmail:     c.cfg.Student.Email,
		Answers:          c.answers.Snapshot(),
		TimeTakenMinutes: minutes,
		MaxScore:         c.maxScore,
		ViolationCount:   c.monitor.Count(),
		SubmittedAt:      time.Now(),
	}
}

// Stop abruptly tears down the attempt (e.g. server shutdown). Resource
// release is guaranteed even on this path.
func (c *Controller) Stop() {
	c.mu.Lock()
	clock := c.clock
	monitor := c.monitor
	c.mu.Unlock()
	if clock != nil {
		clock.Stop()
	}
	if monitor != nil {
		monitor.Disarm()
	}
}
