package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// SubmissionRepository persists completed attempts and their scores.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Create stores the submission and its answers in one transaction.
// attempt_id carries a unique constraint, so a concurrent duplicate resolves
// to the already-stored record instead of a second row.
func (r *SubmissionRepository) Create(ctx context.Context, p *model.SubmissionPayload) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback(ctx)

	var submissionID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO submissions
		   (attempt_id, exam_id, student_name, student_email,
		    time_taken_minutes, max_score, violation_count, grading_status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', $8)
		 ON CONFLICT (attempt_id) DO UPDATE SET attempt_id = EXCLUDED.attempt_id
		 RETURNING id`,
		p.AttemptID, p.ExamID, p.StudentName, p.StudentEmail,
		p.TimeTakenMinutes, p.MaxScore, p.ViolationCount, p.SubmittedAt,
	).Scan(&submissionID)
	if err != nil {
		return uuid.Nil, err
	}

	if len(p.Answers) > 0 {
		rows := make([][]interface{}, 0, len(p.Answers))
		for qid, answer := range p.Answers {
			questionID, err := uuid.Parse(qid)
			if err != nil {
				return uuid.Nil, err
			}
			rows = append(rows, []interface{}{submissionID, questionID, answer})
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"submission_answers"},
			[]string{"submission_id", "question_id", "answer"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			// CopyFrom cannot upsert; a retried submit hits the unique
			// constraint here. Treat the whole insert as already done.
			if isUniqueViolation(err) {
				_ = tx.Rollback(ctx)
				return submissionID, nil
			}
			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return submissionID, nil
}

// GetByAttemptID retrieves the submission stored for an attempt.
func (r *SubmissionRepository) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, student_name, student_email,
		        time_taken_minutes, max_score, violation_count,
		        grading_status, final_score, submitted_at
		 FROM submissions WHERE attempt_id = $1`, attemptID,
	).Scan(&s.ID, &s.AttemptID, &s.ExamID, &s.StudentName, &s.StudentEmail,
		&s.TimeTakenMinutes, &s.MaxScore, &s.ViolationCount,
		&s.GradingStatus, &s.FinalScore, &s.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListAnswers returns a submission's stored answers keyed by question ID.
func (r *SubmissionRepository) ListAnswers(ctx context.Context, submissionID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer FROM submission_answers WHERE submission_id = $1`,
		submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[uuid.UUID]string)
	for rows.Next() {
		var qid uuid.UUID
		var answer string
		if err := rows.Scan(&qid, &answer); err != nil {
			return nil, err
		}
		answers[qid] = answer
	}
	return answers, rows.Err()
}

// UpdateGradingStatus transitions a submission's grading status.
func (r *SubmissionRepository) UpdateGradingStatus(ctx context.Context, submissionID uuid.UUID, status model.GradingStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET grading_status = $1 WHERE id = $2`,
		status, submissionID)
	return err
}

// StoreScores records the per-question scores and the final total in one
// transaction, marking grading as completed.
func (r *SubmissionRepository) StoreScores(ctx context.Context, submissionID uuid.UUID, scores []model.QuestionScore, finalScore float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows := make([][]interface{}, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, []interface{}{submissionID, s.QuestionID, s.Score, s.Feedback})
	}
	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"submission_scores"},
		[]string{"submission_id", "question_id", "score", "feedback"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE submissions
		 SET grading_status = 'COMPLETED', final_score = $1
		 WHERE id = $2`,
		finalScore, submissionID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	// 23505 = unique_violation
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
