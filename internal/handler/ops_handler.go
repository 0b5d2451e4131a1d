package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/response"
)

// OpsHandler serves operational endpoints: health and worker queue depths.
type OpsHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *OpsHandler {
	return &OpsHandler{
		pool:      pool,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "ops_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis. Returns 503 when either is unreachable.
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	dbOK, redisOK := true, true

	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Postgres ping failed")
		dbOK = false
		status = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis ping failed")
		redisOK = false
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   map[bool]string{true: "ok", false: "degraded"}[dbOK && redisOK],
		"postgres": dbOK,
		"redis":    redisOK,
		"uptime_s": int(time.Since(h.startTime).Seconds()),
	})
}

// Queues godoc
// GET /api/v1/ops/queues
// Reports worker queue depths for operator dashboards.
func (h *OpsHandler) Queues(c *gin.Context) {
	ctx := c.Request.Context()

	pipe := h.rdb.Pipeline()
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	violationsCmd := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	gradingCmd := pipe.LLen(ctx, config.WorkerKey.GradingQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"queue_answers":    answersCmd.Val(),
		"queue_violations": violationsCmd.Val(),
		"queue_grading":    gradingCmd.Val(),
	})
}
