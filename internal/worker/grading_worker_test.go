package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/invigilo/invigilo-backend/internal/grader"
	"github.com/invigilo/invigilo-backend/internal/model"
)

type fakeGrader struct {
	result *grader.GradeResult
	err    error
	calls  int
}

func (f *fakeGrader) GradeAnswer(ctx context.Context, q model.Question, answer string) (*grader.GradeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestWorker(llm AnswerGrader) *GradingWorker {
	return NewGradingWorker(nil, nil, llm, nil, zerolog.Nop())
}

func singleChoice(correct string, points int) model.Question {
	return model.Question{
		ID:            uuid.New(),
		Kind:          model.QuestionKindSingleChoice,
		Points:        points,
		CorrectChoice: correct,
	}
}

func TestScoreSingleChoice(t *testing.T) {
	llm := &fakeGrader{}
	w := newTestWorker(llm)
	q := singleChoice("B", 4)

	tests := []struct {
		name   string
		answer string
		want   float64
	}{
		{"correct", "B", 4},
		{"correct with whitespace", " b ", 4},
		{"wrong", "C", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := w.scoreQuestion(context.Background(), q, tt.answer, tt.answer != "")
			assert.Equal(t, tt.want, score.Score)
		})
	}

	// Single-choice never reaches the model.
	assert.Zero(t, llm.calls)
}

func TestScoreFreeFormUsesModel(t *testing.T) {
	llm := &fakeGrader{result: &grader.GradeResult{Score: 3.5, Feedback: "mostly right"}}
	w := newTestWorker(llm)

	q := model.Question{ID: uuid.New(), Kind: model.QuestionKindShortText, Points: 5}
	score := w.scoreQuestion(context.Background(), q, "some essay", true)

	assert.Equal(t, 3.5, score.Score)
	assert.Equal(t, "mostly right", score.Feedback)
	assert.Equal(t, 1, llm.calls)
}

func TestScoreFreeFormModelFailureFallsBackToManualReview(t *testing.T) {
	llm := &fakeGrader{err: errors.New("rate limited")}
	w := newTestWorker(llm)

	q := model.Question{ID: uuid.New(), Kind: model.QuestionKindCode, Points: 5}
	score := w.scoreQuestion(context.Background(), q, "func f() {}", true)

	assert.Zero(t, score.Score)
	assert.Contains(t, score.Feedback, "manual review")
}

func TestScoreUnanswered(t *testing.T) {
	w := newTestWorker(&fakeGrader{result: &grader.GradeResult{Score: 5}})

	q := model.Question{ID: uuid.New(), Kind: model.QuestionKindCode, Points: 5}
	score := w.scoreQuestion(context.Background(), q, "", false)

	assert.Zero(t, score.Score)
	assert.Equal(t, "No answer given.", score.Feedback)
}

func TestScoreWithoutModelPendingReview(t *testing.T) {
	w := newTestWorker(nil)

	q := model.Question{ID: uuid.New(), Kind: model.QuestionKindDiagram, Points: 5}
	score := w.scoreQuestion(context.Background(), q, "diagram-json", true)

	assert.Zero(t, score.Score)
	assert.Equal(t, "Pending manual review.", score.Feedback)
}
