package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-backend/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int // fail this many calls before succeeding
	calls    int
	created  []*model.SubmissionPayload
	id       uuid.UUID
}

func (f *fakeStore) CreateSubmission(ctx context.Context, p *model.SubmissionPayload) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return uuid.Nil, errors.New("database unavailable")
	}
	if f.id == uuid.Nil {
		f.id = uuid.New()
	}
	f.created = append(f.created, p)
	return f.id, nil
}

func (f *fakeStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeGrader struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeGrader) RequestGrading(ctx context.Context, id uuid.UUID, p *model.SubmissionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func testPayload() *model.SubmissionPayload {
	return &model.SubmissionPayload{
		AttemptID:   uuid.New(),
		ExamID:      uuid.New(),
		StudentName: "Test Student",
		Answers:     map[string]string{uuid.NewString(): "B"},
		MaxScore:    10,
	}
}

func TestCoordinatorSubmitPersistsThenGrades(t *testing.T) {
	store := &fakeStore{}
	grader := &fakeGrader{}
	c := NewCoordinator(store, grader, 3, zerolog.Nop())

	out, err := c.Submit(context.Background(), SubmitReasonManual, testPayload())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, model.SubmissionStatusSubmitted, out.Status)
	assert.NotEqual(t, uuid.Nil, out.SubmissionID)

	c.gradingWG.Wait()
	assert.Equal(t, 1, grader.calls, "grading requested exactly once, after persistence")
	assert.Equal(t, model.GradingStatusRequested, c.GradingStatus())
}

func TestCoordinatorIdempotentSubmit(t *testing.T) {
	store := &fakeStore{}
	c := NewCoordinator(store, &fakeGrader{}, 3, zerolog.Nop())

	first, err := c.Submit(context.Background(), SubmitReasonManual, testPayload())
	require.NoError(t, err)

	// A second submit is a no-op returning the existing outcome.
	second, err := c.Submit(context.Background(), SubmitReasonTimeout, testPayload())
	require.NoError(t, err)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Equal(t, 1, store.createdCount(), "exactly one persisted submission")
	c.gradingWG.Wait()
}

func TestCoordinatorPersistenceFailureIsRetryable(t *testing.T) {
	store := &fakeStore{failures: 2}
	grader := &fakeGrader{}
	c := NewCoordinator(store, grader, 3, zerolog.Nop())

	payload := testPayload()
	out, err := c.Submit(context.Background(), SubmitReasonManual, payload)
	require.Error(t, err)
	assert.Equal(t, model.SubmissionStatusFailed, out.Status)
	assert.Same(t, payload, c.Payload(), "payload retained in memory for retry")
	assert.Equal(t, 0, grader.calls, "grading never requested for an unpersisted submission")

	// First retry still fails.
	_, err = c.Retry(context.Background())
	require.Error(t, err)
	assert.Equal(t, model.SubmissionStatusFailed, c.Status())

	// Second retry succeeds; exactly one record exists.
	out, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, out.Status)
	assert.Equal(t, 1, store.createdCount())
	assert.Same(t, payload, store.created[0], "retry reuses the original snapshot")
	c.gradingWG.Wait()
}

func TestCoordinatorRetryBudget(t *testing.T) {
	store := &fakeStore{failures: 100}
	c := NewCoordinator(store, nil, 2, zerolog.Nop())

	_, err := c.Submit(context.Background(), SubmitReasonManual, testPayload())
	require.Error(t, err)

	_, err = c.Retry(context.Background())
	require.Error(t, err)
	_, err = c.Retry(context.Background())
	require.Error(t, err)

	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestCoordinatorGradingFailureNonFatal(t *testing.T) {
	store := &fakeStore{}
	grader := &fakeGrader{err: errors.New("grading service down")}
	c := NewCoordinator(store, grader, 3, zerolog.Nop())

	out, err := c.Submit(context.Background(), SubmitReasonTimeout, testPayload())
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, out.Status)

	c.gradingWG.Wait()
	// The submission stays durable and submitted; only grading degrades.
	assert.Equal(t, model.SubmissionStatusSubmitted, c.Status())
	assert.Equal(t, model.GradingStatusFailed, c.GradingStatus())
}

func TestCoordinatorRetryBeforeSubmit(t *testing.T) {
	c := NewCoordinator(&fakeStore{}, nil, 3, zerolog.Nop())
	_, err := c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNotActive)
}
