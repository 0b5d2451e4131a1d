package worker

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
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker consumes persist_violations_queue and writes the
// append-only integrity log in batches. A flood of violations (rapid tab
// switching) must never slow the session down, so the session only enqueues.
type ViolationWorker struct {
	repo *repository.ViolationRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewViolationWorker creates a new ViolationWorker.
func NewViolationWorker(repo *repository.ViolationRepository, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

type violationPayload struct {
	AttemptID  string `json:"attempt_id"`
	ExamID     string `json:"exam_id"`
	Category   string `json:"category"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	OccurredAt int64  `json:"occurred_at"`
}

// Start runs the batching loop. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*violationPayload, 0, BatchSize)
	lastFlush := time.Now()

	for {
		// Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlush = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload violationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then row-by-row fallback, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*violationPayload) {
	rows, bad := w.toRows(batch)
	for _, b := range bad {
		w.log.Error().Str("attempt_id", b.AttemptID).Msg("Dropping violation with invalid UUID")
	}
	if len(rows) == 0 {
		return
	}

	if err := w.repo.BulkInsert(ctx, rows); err != nil {
		w.log.Warn().Err(err).Int("count", len(rows)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, rows)
	}
}

func (w *ViolationWorker) toRows(batch []*violationPayload) ([]*repository.ViolationRow, []*violationPayload) {
	rows := make([]*repository.ViolationRow, 0, len(batch))
	var bad []*violationPayload

	for _, p := range batch {
		attemptID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			bad = append(bad, p)
			continue
		}
		examID, err := uuid.Parse(p.ExamID)
		if err != nil {
			bad = append(bad, p)
			continue
		}
		rows = append(rows, &repository.ViolationRow{
			AttemptID:  attemptID,
			ExamID:     examID,
			Category:   model.ViolationCategory(p.Category),
			Message:    p.Message,
			Severity:   model.Severity(p.Severity),
			OccurredAt: time.Unix(p.OccurredAt, 0),
		})
	}
	return rows, bad
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, rows []*repository.ViolationRow) {
	requeueList := make([]*repository.ViolationRow, 0)

	for _, row := range rows {
		if err := w.repo.Insert(ctx, row); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", row.AttemptID.String()).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, row)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, rows []*repository.ViolationRow) {
	pipe := w.rdb.Pipeline()
	for _, row := range rows {
		p := violationPayload{
			AttemptID:  row.AttemptID.String(),
			ExamID:     row.ExamID.String(),
			Category:   string(row.Category),
			Message:    row.Message,
			Severity:   string(row.Severity),
			OccurredAt: row.OccurredAt.Unix(),
		}
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(rows)).Msg("Requeued failed items back to Redis")
		// Back off if the database is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*violationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
