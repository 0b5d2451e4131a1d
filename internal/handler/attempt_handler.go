package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/session"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// AttemptHandler serves the proctored attempt endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// Start godoc
// POST /api/v1/attempts
// Validates the access code and starts a proctored session, returning the
// attempt token and the question paper.
func (h *AttemptHandler) Start(c *gin.Context) {
	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attempts.Start(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotAvailable):
			response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrInvalidAccessCode):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidAccessCode)
		case errors.Is(err, session.ErrNoQuestions):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// State godoc
// GET /api/v1/attempts/state
// Returns the recoverable session view for reconnecting clients.
func (h *AttemptHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.attempts.State(claims.AttemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Paper godoc
// GET /api/v1/attempts/paper
// Returns the attempt's question list without grading data.
func (h *AttemptHandler) Paper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, err := h.attempts.Controller(claims.AttemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"questions":     ctrl.Questions(),
		"current_index": ctrl.CurrentIndex(),
	})
}

// SetAnswer godoc
// PUT /api/v1/attempts/answers
// Records an answer. Rejected once the session is locked.
func (h *AttemptHandler) SetAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	count, err := h.attempts.SetAnswer(c.Request.Context(), claims.AttemptID, &req)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answered_count": count})
}

// Navigate godoc
// POST /api/v1/attempts/navigation
// Moves between questions (next, previous, goto).
func (h *AttemptHandler) Navigate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	index, err := h.attempts.Navigate(claims.AttemptID, &req)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"current_index": index})
}

// Submit godoc
// POST /api/v1/attempts/submit
// Runs the explicit submission. Idempotent: repeat calls return the stored
// outcome.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	out, err := h.attempts.Submit(c.Request.Context(), claims.AttemptID)
	if err != nil {
		h.failSubmitError(c, out, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Retry godoc
// POST /api/v1/attempts/submit/retry
// Re-attempts persistence after a failed submission.
func (h *AttemptHandler) Retry(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	out, err := h.attempts.Retry(c.Request.Context(), claims.AttemptID)
	if err != nil {
		h.failSubmitError(c, out, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Violations godoc
// GET /api/v1/attempts/violations
// Returns the live violation summary and the durable log.
func (h *AttemptHandler) Violations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	summary, stored, err := h.attempts.Violations(c.Request.Context(), claims.AttemptID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"summary": summary,
		"stored":  stored,
	})
}

func (h *AttemptHandler) failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, session.ErrSessionLocked):
		response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
	case errors.Is(err, session.ErrNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failSubmitError distinguishes a failed-but-retryable submission from a
// terminal retry exhaustion. The outcome, when present, is included so the
// client knows its answers are retained.
func (h *AttemptHandler) failSubmitError(c *gin.Context, out *session.Outcome, err error) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, session.ErrRetryExhausted):
		response.Fail(c, http.StatusConflict, response.ErrRetryExhausted)
	case errors.Is(err, session.ErrNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionLocked)
	default:
		response.FailWithData(c, http.StatusBadGateway, response.ErrSubmissionFailed, out)
	}
}
