package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Attempt tokens ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam / attempt ────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidAccessCode ErrCode = "INVALID_ACCESS_CODE"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"
	ErrAttemptNotFound   ErrCode = "ATTEMPT_NOT_FOUND"
	ErrSessionLocked     ErrCode = "SESSION_LOCKED"
	ErrSubmissionFailed  ErrCode = "SUBMISSION_FAILED"
	ErrRetryExhausted    ErrCode = "RETRY_EXHAUSTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "An attempt token is required."
	case ErrTokenInvalid:
		return "The attempt token is not valid."
	case ErrTokenExpired:
		return "The attempt token has expired."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "The request payload is not valid."
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrInvalidAccessCode:
		return "The exam access code is incorrect."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrAttemptNotFound:
		return "No active attempt was found for this token."
	case ErrSessionLocked:
		return "The attempt has already been submitted and no longer accepts changes."
	case ErrSubmissionFailed:
		return "Submission could not be stored. Your answers are preserved; please retry."
	case ErrRetryExhausted:
		return "The submission retry limit has been reached. Please contact the operator."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
