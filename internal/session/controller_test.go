package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-backend/internal/model"
)

type fakeBank struct {
	questions []model.Question
	err       error
}

func (f *fakeBank) FetchQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.questions, f.err
}

func threeQuestions() []model.Question {
	return []model.Question{
		{ID: uuid.New(), Text: "Q1", Kind: model.QuestionKindSingleChoice, Position: 0, Points: 2},
		{ID: uuid.New(), Text: "Q2", Kind: model.QuestionKindShortText, Position: 1, Points: 3},
		{ID: uuid.New(), Text: "Q3", Kind: model.QuestionKindCode, Position: 2, Points: 5},
	}
}

func newTestController(t *testing.T, questions []model.Question, store SubmissionStore, grader Grader) *Controller {
	t.Helper()
	ctrl := NewController(Config{
		ExamID:          uuid.New(),
		Student:         model.StudentInfo{Name: "Ada Lovelace", Email: "ada@example.com"},
		DurationSeconds: 60,
		Bank:            &fakeBank{questions: questions},
		Store:           store,
		Grader:          grader,
		Remediator:      &fakeRemediator{},
		Violations:      &fakeSink{},
		Log:             zerolog.Nop(),
	})
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Stop)
	return ctrl
}

func TestControllerStartRequiresQuestions(t *testing.T) {
	ctrl := NewController(Config{
		ExamID:  uuid.New(),
		Bank:    &fakeBank{},
		Store:   &fakeStore{},
		Log:     zerolog.Nop(),
		Student: model.StudentInfo{Name: "x"},
	})
	err := ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.Equal(t, StateInitializing, ctrl.Status())
}

func TestControllerAnswersSurviveNavigation(t *testing.T) {
	qs := threeQuestions()
	ctrl := newTestController(t, qs, &fakeStore{}, &fakeGrader{})

	require.NoError(t, ctrl.SetAnswer(qs[0].ID, "B"))
	require.NoError(t, ctrl.NextQuestion())
	require.NoError(t, ctrl.PreviousQuestion())

	v, ok := ctrl.Answer(qs[0].ID)
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	cur, err := ctrl.CurrentQuestion()
	require.NoError(t, err)
	assert.Equal(t, qs[0].ID, cur.ID)
}

func TestControllerTimeoutForcesSingleSubmission(t *testing.T) {
	qs := threeQuestions()
	store := &fakeStore{}
	ctrl := newTestController(t, qs, store, &fakeGrader{})

	require.NoError(t, ctrl.SetAnswer(qs[0].ID, "B"))

	// 60 simulated ticks on a 60 second exam.
	for i := 0; i < 60; i++ {
		ctrl.clock.tick()
	}

	assert.Equal(t, StateSubmitted, ctrl.Status())
	require.Equal(t, 1, store.createdCount(), "expiry submits exactly once")

	p := store.created[0]
	assert.Equal(t, 1, p.TimeTakenMinutes)
	assert.Equal(t, 10, p.MaxScore)
	assert.Equal(t, "Ada Lovelace", p.StudentName)
	assert.Equal(t, "B", p.Answers[qs[0].ID.String()])
	ctrl.coord.gradingWG.Wait()
}

func TestControllerLockInvariant(t *testing.T) {
	qs := threeQuestions()
	ctrl := newTestController(t, qs, &fakeStore{}, &fakeGrader{})

	_, err := ctrl.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, ctrl.Status())

	// Any further mutation fails loudly and never changes state.
	err = ctrl.SetAnswer(qs[1].ID, "late answer")
	assert.ErrorIs(t, err, ErrSessionLocked)
	_, ok := ctrl.Answer(qs[1].ID)
	assert.False(t, ok)

	assert.ErrorIs(t, ctrl.NextQuestion(), ErrSessionLocked)
	assert.ErrorIs(t, ctrl.GoToQuestion(2), ErrSessionLocked)
	ctrl.coord.gradingWG.Wait()
}

func TestControllerIdempotentSubmit(t *testing.T) {
	store := &fakeStore{}
	ctrl := newTestController(t, threeQuestions(), store, &fakeGrader{})

	first, err := ctrl.Submit(context.Background())
	require.NoError(t, err)
	second, err := ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, 1, store.createdCount())
	ctrl.coord.gradingWG.Wait()
}

func TestControllerPersistenceFailureThenRetry(t *testing.T) {
	store := &fakeStore{failures: 2}
	ctrl := newTestController(t, threeQuestions(), store, &fakeGrader{})

	_, err := ctrl.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateSubmissionFailed, ctrl.Status())

	// The session is frozen even though persistence failed.
	assert.False(t, ctrl.monitor.Armed(), "monitor torn down on failure path")
	assert.ErrorIs(t, ctrl.SetAnswer(uuid.New(), "x"), ErrSessionLocked)

	_, err = ctrl.RetrySubmission(context.Background())
	require.Error(t, err)

	out, err := ctrl.RetrySubmission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, out.Status)
	assert.Equal(t, StateSubmitted, ctrl.Status())
	assert.Equal(t, 1, store.createdCount(), "exactly one record after retries")
	ctrl.coord.gradingWG.Wait()
}

func TestControllerGradingIndependence(t *testing.T) {
	store := &fakeStore{}
	grader := &fakeGrader{err: errors.New("model overloaded")}
	ctrl := newTestController(t, threeQuestions(), store, grader)

	_, err := ctrl.Submit(context.Background())
	require.NoError(t, err)

	ctrl.coord.gradingWG.Wait()
	assert.Equal(t, StateSubmitted, ctrl.Status(), "grading failure never invalidates the submission")
	assert.Equal(t, model.GradingStatusFailed, ctrl.GradingStatus())
}

func TestControllerViolationsAndRisk(t *testing.T) {
	ctrl := newTestController(t, threeQuestions(), &fakeStore{}, &fakeGrader{})

	// Two tab switches and one exit attempt: three high-severity records.
	ctrl.ReportSignal(Signal{Kind: SignalPageHidden})
	ctrl.ReportSignal(Signal{Kind: SignalPageHidden})
	ctrl.ReportSignal(Signal{Kind: SignalUnloadRequested})

	sum := ctrl.ViolationSummary()
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, model.RiskHigh, sum.Risk)

	// Advisory only: the session is still active and accepting answers.
	assert.Equal(t, StateActive, ctrl.Status())
	assert.NoError(t, ctrl.SetAnswer(uuid.New(), "still going"))
}

func TestControllerSubmissionTeardown(t *testing.T) {
	media := &fakeMedia{}
	ctrl := NewController(Config{
		ExamID:          uuid.New(),
		Student:         model.StudentInfo{Name: "x"},
		DurationSeconds: 30,
		Bank:            &fakeBank{questions: threeQuestions()},
		Store:           &fakeStore{},
		Grader:          &fakeGrader{},
		Media:           media,
		Log:             zerolog.Nop(),
	})
	require.NoError(t, ctrl.Start(context.Background()))

	_, err := ctrl.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, media.stopped, "media released on submission")
	assert.False(t, ctrl.monitor.Armed())

	// Abrupt teardown after submission stays safe and idempotent.
	ctrl.Stop()
	assert.Equal(t, 1, media.stopped)
	ctrl.coord.gradingWG.Wait()
}
