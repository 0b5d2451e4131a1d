package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationCategory classifies a detected integrity violation.
type ViolationCategory string

const (
	ViolationTabSwitch         ViolationCategory = "TAB_SWITCH"
	ViolationFocusLoss         ViolationCategory = "FOCUS_LOSS"
	ViolationExitAttempt       ViolationCategory = "EXIT_ATTEMPT"
	ViolationNavigationAttempt ViolationCategory = "NAVIGATION_ATTEMPT"
	ViolationBlockedShortcut   ViolationCategory = "BLOCKED_SHORTCUT"
	ViolationSuspiciousKeys    ViolationCategory = "SUSPICIOUS_KEYS"
	ViolationRightClick        ViolationCategory = "RIGHT_CLICK"
	ViolationMediaUnavailable  ViolationCategory = "MEDIA_UNAVAILABLE"
)

// Severity grades how strongly a violation correlates with dishonesty.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ViolationRecord is one append-only entry in the integrity log. Records are
// never mutated or removed after creation.
type ViolationRecord struct {
	ID         uuid.UUID         `json:"id"`
	Category   ViolationCategory `json:"category"`
	Message    string            `json:"message"`
	Severity   Severity          `json:"severity"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// RiskLevel is the advisory classification derived from the violation log.
// It is surfaced to the student and operator but never gates submission.
type RiskLevel string

const (
	RiskNormal RiskLevel = "NORMAL"
	RiskMedium RiskLevel = "MEDIUM_RISK"
	RiskHigh   RiskLevel = "HIGH_RISK"
)

// ClassifyRisk computes the advisory risk level from severity counters.
func ClassifyRisk(highCount, mediumCount int) RiskLevel {
	switch {
	case highCount > 2:
		return RiskHigh
	case highCount > 0 || mediumCount > 3:
		return RiskMedium
	default:
		return RiskNormal
	}
}

// ViolationSummary is the operator/student-facing view of the log.
type ViolationSummary struct {
	Total  int               `json:"total"`
	Risk   RiskLevel         `json:"risk"`
	Recent []ViolationRecord `json:"recent"`
}
