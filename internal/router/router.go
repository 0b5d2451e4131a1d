package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/handler"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
	Ops     *handler.OpsHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens *service.TokenService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.Ops.Health)

	// Rate limiter for the attempt start endpoint (10 requests per minute
	// per IP) to slow down access-code guessing.
	startLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ─── 1. Public: start an attempt ───────────────────────────────────
	public := router.Group("/api/v1")
	{
		public.POST("/attempts", startLimiter.Middleware(), handlers.Attempt.Start)
	}

	// ─── 2. Attempt group (attempt token required) ─────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.RequireAttemptToken(tokens))
	{
		attempts.GET("/state", handlers.Attempt.State)
		attempts.GET("/paper", handlers.Attempt.Paper)
		attempts.PUT("/answers", handlers.Attempt.SetAnswer)
		attempts.POST("/navigation", handlers.Attempt.Navigate)
		attempts.POST("/submit", handlers.Attempt.Submit)
		attempts.POST("/submit/retry", handlers.Attempt.Retry)
		attempts.GET("/violations", handlers.Attempt.Violations)
	}

	// ─── 3. WebSocket group (token via query param) ────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptWSAuth(tokens))
	{
		ws.GET("/attempts/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Ops group ──────────────────────────────────────────────────
	ops := router.Group("/api/v1/ops")
	{
		ops.GET("/queues", handlers.Ops.Queues)
	}

	return router
}
