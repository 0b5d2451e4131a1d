package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/session"
	ws "github.com/invigilo/invigilo-backend/internal/websocket"
)

// tickInterval is how often the authoritative remaining time is streamed to
// the client.
const tickInterval = time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt: answers and environment signals in,
// remediation directives and the authoritative countdown out.
type WSHandler struct {
	attempts *service.AttemptService
	hub      *service.DirectiveHub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, hub *service.DirectiveHub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/stream?token=...
// Upgrades to WebSocket for the duration of the attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctrl, err := h.attempts.Controller(claims.AttemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active attempt"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("attempt_id", claims.AttemptID.String()).
		Logger()
	wsLog.Info().Msg("Client connected")

	// Route remediation directives from the session to this connection.
	h.hub.Attach(claims.AttemptID, func(directive string) {
		_ = conn.WriteEvent(ws.EventDirective, ws.DirectivePayload{Directive: directive})
	})
	defer h.hub.Detach(claims.AttemptID)

	// Stream the countdown until the socket dies or the session goes
	// terminal.
	stopTicks := make(chan struct{})
	defer close(stopTicks)
	go h.streamTicks(conn, ctrl, stopTicks)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c, conn, claims.AttemptID, msg)
		case ws.ActionNav:
			h.handleNav(conn, claims.AttemptID, msg)
		case ws.ActionSignal:
			h.handleSignal(conn, ctrl, msg)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, claims.AttemptID)
		case ws.ActionPing:
			_ = conn.WriteEvent(ws.EventPong, nil)
		default:
			_ = conn.WriteError(response.ErrInvalidPayload)
		}
	}
}

// streamTicks pushes the remaining seconds every second. The server clock is
// authoritative; the client only displays what it is told.
func (h *WSHandler) streamTicks(conn *ws.Conn, ctrl *session.Controller, stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteEvent(ws.EventTick, ws.TickPayload{
				RemainingSeconds: int64(ctrl.TimeRemaining()),
			}); err != nil {
				return
			}
			if s := ctrl.Status(); s == session.StateSubmitted || s == session.StateSubmissionFailed {
				return
			}
		}
	}
}

func (h *WSHandler) handleAnswer(c *gin.Context, conn *ws.Conn, attemptID uuid.UUID, msg *ws.ClientMessage) {
	var p ws.AnswerPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.QuestionID == uuid.Nil {
		_ = conn.WriteError(response.ErrInvalidPayload)
		return
	}

	count, err := h.attempts.SetAnswer(c.Request.Context(), attemptID, &model.SetAnswerRequest{
		QuestionID: p.QuestionID,
		Value:      p.Value,
	})
	if err != nil {
		_ = conn.WriteError(sessionErrCode(err))
		return
	}

	_ = conn.WriteEvent(ws.EventSaved, ws.SavedPayload{
		QuestionID:    p.QuestionID,
		AnsweredCount: count,
	})
}

func (h *WSHandler) handleNav(conn *ws.Conn, attemptID uuid.UUID, msg *ws.ClientMessage) {
	var p ws.NavPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		_ = conn.WriteError(response.ErrInvalidPayload)
		return
	}

	index, err := h.attempts.Navigate(attemptID, &model.NavigateRequest{Op: p.Op, Index: p.Index})
	if err != nil {
		_ = conn.WriteError(sessionErrCode(err))
		return
	}

	_ = conn.WriteEvent(ws.EventNav, ws.NavResultPayload{Index: index})
}

// handleSignal feeds an environment signal to the monitor and reports the
// updated violation totals back. Signals are advisory; the session is never
// terminated for them.
func (h *WSHandler) handleSignal(conn *ws.Conn, ctrl *session.Controller, msg *ws.ClientMessage) {
	var p ws.SignalPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil || p.Kind == "" {
		_ = conn.WriteError(response.ErrInvalidPayload)
		return
	}

	before := ctrl.ViolationSummary().Total
	ctrl.ReportSignal(session.Signal{Kind: session.SignalKind(p.Kind), Detail: p.Detail})
	summary := ctrl.ViolationSummary()

	// Unknown signal kinds record nothing; only acknowledge real violations.
	if summary.Total == before {
		return
	}

	var last ws.ViolationPayload
	if n := len(summary.Recent); n > 0 {
		rec := summary.Recent[n-1]
		last = ws.ViolationPayload{
			Category: string(rec.Category),
			Severity: string(rec.Severity),
			Total:    summary.Total,
			Risk:     string(summary.Risk),
		}
	}
	_ = conn.WriteEvent(ws.EventViolation, last)
}

func (h *WSHandler) handleSubmit(c *gin.Context, conn *ws.Conn, attemptID uuid.UUID) {
	out, err := h.attempts.Submit(c.Request.Context(), attemptID)
	if err != nil {
		if out != nil {
			// Persistence failed; the payload is retained and the client may
			// retry over HTTP or this socket.
			_ = conn.WriteEvent(ws.EventSubmitted, ws.SubmittedPayload{
				Status: string(out.Status),
				Reason: string(out.Reason),
			})
			return
		}
		_ = conn.WriteError(sessionErrCode(err))
		return
	}

	_ = conn.WriteEvent(ws.EventSubmitted, ws.SubmittedPayload{
		SubmissionID: out.SubmissionID.String(),
		Status:       string(out.Status),
		Reason:       string(out.Reason),
	})
}

// sessionErrCode maps session/service errors to API error codes.
func sessionErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		return response.ErrAttemptNotFound
	case errors.Is(err, session.ErrSessionLocked), errors.Is(err, session.ErrNotActive):
		return response.ErrSessionLocked
	case errors.Is(err, session.ErrRetryExhausted):
		return response.ErrRetryExhausted
	default:
		return response.ErrInternal
	}
}
