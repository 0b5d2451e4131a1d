package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// ViolationRepository persists the append-only integrity log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// ViolationRow is one queued violation with its attempt context.
type ViolationRow struct {
	AttemptID  uuid.UUID
	ExamID     uuid.UUID
	Category   model.ViolationCategory
	Message    string
	Severity   model.Severity
	OccurredAt time.Time
}

// BulkInsert inserts a batch of violations with CopyFrom.
func (r *ViolationRepository) BulkInsert(ctx context.Context, batch []*ViolationRow) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.AttemptID, v.ExamID, v.Category, v.Message, v.Severity, v.OccurredAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violations"},
		[]string{"attempt_id", "exam_id", "category", "message", "severity", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores a single violation. Fallback path when a bulk insert fails.
func (r *ViolationRepository) Insert(ctx context.Context, v *ViolationRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violations (attempt_id, exam_id, category, message, severity, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.AttemptID, v.ExamID, v.Category, v.Message, v.Severity, v.OccurredAt)
	return err
}

// ListByAttempt returns the stored violations for an attempt, oldest first.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, category, message, severity, occurred_at
		 FROM violations
		 WHERE attempt_id = $1
		 ORDER BY occurred_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ViolationRecord
	for rows.Next() {
		var rec model.ViolationRecord
		if err := rows.Scan(&rec.ID, &rec.Category, &rec.Message, &rec.Severity, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
