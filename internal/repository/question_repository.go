package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
)

const paperCacheTTL = 30 * time.Minute

// QuestionRepository handles question data access with a Redis paper cache.
// A published exam's question list is immutable, so it caches well.
type QuestionRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool, rdb *redis.Client) *QuestionRepository {
	return &QuestionRepository{pool: pool, rdb: rdb}
}

// cachedQuestion is the Redis representation of a question. model.Question
// hides CorrectChoice from JSON so it can never leak to students; the cache
// is server-internal and must keep it.
type cachedQuestion struct {
	ID            uuid.UUID          `json:"id"`
	ExamID        uuid.UUID          `json:"exam_id"`
	Text          string             `json:"text"`
	Kind          model.QuestionKind `json:"kind"`
	Position      int                `json:"position"`
	Points        int                `json:"points"`
	Payload       json.RawMessage    `json:"payload,omitempty"`
	CorrectChoice string             `json:"correct_choice,omitempty"`
}

func toCached(questions []model.Question) []cachedQuestion {
	out := make([]cachedQuestion, len(questions))
	for i, q := range questions {
		out[i] = cachedQuestion{
			ID:            q.ID,
			ExamID:        q.ExamID,
			Text:          q.Text,
			Kind:          q.Kind,
			Position:      q.Position,
			Points:        q.Points,
			Payload:       q.Payload,
			CorrectChoice: q.CorrectChoice,
		}
	}
	return out
}

func fromCached(cached []cachedQuestion) []model.Question {
	out := make([]model.Question, len(cached))
	for i, c := range cached {
		out[i] = model.Question{
			ID:            c.ID,
			ExamID:        c.ExamID,
			Text:          c.Text,
			Kind:          c.Kind,
			Position:      c.Position,
			Points:        c.Points,
			Payload:       c.Payload,
			CorrectChoice: c.CorrectChoice,
		}
	}
	return out
}

// ListByExam returns the exam's questions ordered by position, reading
// through the Redis cache. A cache miss falls back to PostgreSQL and
// repopulates the cache.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamPaperKey(examID.String())

	cached, err := r.rdb.Get(ctx, key).Result()
	if err == nil {
		var entries []cachedQuestion
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			return fromCached(entries), nil
		}
		// Corrupt cache entry; fall through to the database.
		r.rdb.Del(ctx, key)
	}

	questions, err := r.listFromDB(ctx, examID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(toCached(questions)); err == nil {
		r.rdb.Set(ctx, key, data, paperCacheTTL)
	}
	return questions, nil
}

// WarmCache loads an exam's paper into Redis. Called at startup for every
// published exam.
func (r *QuestionRepository) WarmCache(ctx context.Context, examID uuid.UUID) error {
	questions, err := r.listFromDB(ctx, examID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(toCached(questions))
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, config.CacheKey.ExamPaperKey(examID.String()), data, paperCacheTTL).Err()
}

func (r *QuestionRepository) listFromDB(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, kind, position, points, payload, COALESCE(correct_choice, '')
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY position ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Text, &q.Kind, &q.Position,
			&q.Points, &q.Payload, &q.CorrectChoice); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
