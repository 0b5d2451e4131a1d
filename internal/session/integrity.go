package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// SignalKind identifies an environment condition observed by the host
// (browser tab state, focus, navigation, keyboard, media acquisition).
type SignalKind string

const (
	SignalPageHidden        SignalKind = "page_hidden"
	SignalWindowBlur        SignalKind = "window_blur"
	SignalUnloadRequested   SignalKind = "unload_requested"
	SignalHistoryNavigation SignalKind = "history_navigation"
	SignalDevtoolsShortcut  SignalKind = "devtools_shortcut"
	SignalClipboardShortcut SignalKind = "clipboard_shortcut"
	SignalContextMenu       SignalKind = "context_menu"
	SignalMediaError        SignalKind = "media_error"
)

// Signal is one environment event delivered to the monitor. Signals are
// injected rather than read from ambient globals so the monitor can be tested
// with synthetic events.
type Signal struct {
	Kind   SignalKind
	Detail string
}

// Remediator applies best-effort corrective actions back in the exam taker's
// environment. Implementations must be non-blocking.
type Remediator interface {
	RequestRefocus()
	EnterFullscreen()
	CancelNavigation()
	BlockUnload()
	SuppressDefault()
}

// MediaCapture controls the optional camera stream. The monitor owns the
// stream exclusively for the lifetime of the armed state and only starts or
// stops it; frame analysis is out of scope.
type MediaCapture interface {
	Start(ctx context.Context) error
	Stop()
}

// ViolationSink receives every violation record for durable storage. Record
// must not block; queue-backed implementations satisfy this.
type ViolationSink interface {
	Record(v model.ViolationRecord)
}

// fullscreenDelay is how long after a tab switch the monitor waits before
// asking the client to re-enter full-screen.
const fullscreenDelay = 500 * time.Millisecond

// defaultRecentLimit bounds the violation records kept for display. Severity
// counters are never truncated.
const defaultRecentLimit = 25

// Monitor observes environment signals, converts them into an append-only
// violation log and applies best-effort remediation. It never terminates the
// session itself — the composition root decides policy, and the shipped
// policy is to always allow the attempt to continue.
//
// The monitor has two states: armed and disarmed. Disarming is one-way and
// releases the media stream exactly once, regardless of which exit path
// triggered it.
type Monitor struct {
	mu          sync.Mutex
	armed       bool
	disarmOnce  sync.Once
	remediator  Remediator
	media       MediaCapture
	sink        ViolationSink
	log         zerolog.Logger
	recent      []model.ViolationRecord
	recentLimit int
	total       int
	highCount   int
	mediumCount int
}

// NewMonitor creates a disarmed monitor. remediator, media and sink may each
// be nil, in which case the corresponding behavior is skipped.
func NewMonitor(remediator Remediator, media MediaCapture, sink ViolationSink, log zerolog.Logger) *Monitor {
	return &Monitor{
		remediator:  remediator,
		media:       media,
		sink:        sink,
		log:         log.With().Str("component", "integrity_monitor").Logger(),
		recentLimit: defaultRecentLimit,
	}
}

// Arm attaches the monitor and acquires the media stream. Media acquisition
// failure is logged as a high-severity violation and the session continues
// without video — degrade, not fail.
func (m *Monitor) Arm(ctx context.Context) {
	m.mu.Lock()
	m.armed = true
	m.mu.Unlock()

	if m.media == nil {
		return
	}
	if err := m.media.Start(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Media acquisition failed, continuing without video")
		m.record(model.ViolationMediaUnavailable, model.SeverityHigh, "camera acquisition failed: "+err.Error())
	}
}

// Observe processes one environment signal. Signals arriving after disarm are
// dropped. Records are appended in observation order; no deduplication.
func (m *Monitor) Observe(sig Signal) {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	switch sig.Kind {
	case SignalPageHidden:
		m.record(model.ViolationTabSwitch, model.SeverityHigh, detailOr(sig, "exam tab became hidden"))
		if m.remediator != nil {
			m.remediator.RequestRefocus()
			time.AfterFunc(fullscreenDelay, m.delayedFullscreen)
		}
	case SignalWindowBlur:
		m.record(model.ViolationFocusLoss, model.SeverityHigh, detailOr(sig, "exam window lost focus"))
		if m.remediator != nil {
			m.remediator.RequestRefocus()
		}
	case SignalUnloadRequested:
		m.record(model.ViolationExitAttempt, model.SeverityHigh, detailOr(sig, "page unload requested"))
		if m.remediator != nil {
			m.remediator.BlockUnload()
		}
	case SignalHistoryNavigation:
		m.record(model.ViolationNavigationAttempt, model.SeverityHigh, detailOr(sig, "browser navigation attempted"))
		if m.remediator != nil {
			m.remediator.CancelNavigation()
		}
	case SignalDevtoolsShortcut:
		m.record(model.ViolationBlockedShortcut, model.SeverityHigh, detailOr(sig, "inspection shortcut pressed"))
		if m.remediator != nil {
			m.remediator.SuppressDefault()
		}
	case SignalClipboardShortcut:
		// Log only — copy/paste is recorded but not suppressed.
		m.record(model.ViolationSuspiciousKeys, model.SeverityLow, detailOr(sig, "clipboard shortcut pressed"))
	case SignalContextMenu:
		m.record(model.ViolationRightClick, model.SeverityLow, detailOr(sig, "context menu requested"))
		if m.remediator != nil {
			m.remediator.SuppressDefault()
		}
	case SignalMediaError:
		m.record(model.ViolationMediaUnavailable, model.SeverityHigh, detailOr(sig, "media stream failed"))
	default:
		m.log.Debug().Str("kind", string(sig.Kind)).Msg("Ignoring unknown signal")
	}
}

// delayedFullscreen fires the deferred full-screen request unless the monitor
// was disarmed in the meantime.
func (m *Monitor) delayedFullscreen() {
	m.mu.Lock()
	armed := m.armed
	m.mu.Unlock()
	if armed && m.remediator != nil {
		m.remediator.EnterFullscreen()
	}
}

func (m *Monitor) record(cat model.ViolationCategory, sev model.Severity, msg string) {
	rec := model.ViolationRecord{
		ID:         uuid.New(),
		Category:   cat,
		Message:    msg,
		Severity:   sev,
		OccurredAt: time.Now(),
	}

	m.mu.Lock()
	m.total++
	switch sev {
	case model.SeverityHigh:
		m.highCount++
	case model.SeverityMedium:
		m.mediumCount++
	}
	m.recent = append(m.recent, rec)
	if len(m.recent) > m.recentLimit {
		m.recent = m.recent[len(m.recent)-m.recentLimit:]
	}
	m.mu.Unlock()

	m.log.Info().
		Str("category", string(cat)).
		Str("severity", string(sev)).
		Msg("Violation recorded")

	if m.sink != nil {
		m.sink.Record(rec)
	}
}

// Disarm detaches the monitor and releases the media stream. One-way and
// idempotent: normal submission, timeout and abrupt teardown all funnel here,
// and the stream is released on every path.
func (m *Monitor) Disarm() {
	m.disarmOnce.Do(func() {
		m.mu.Lock()
		m.armed = false
		m.mu.Unlock()
		if m.media != nil {
			m.media.Stop()
		}
		m.log.Debug().Msg("Monitor disarmed")
	})
}

// Armed reports whether the monitor is still observing.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Count returns the total number of violations for this attempt. Monotonically
// non-decreasing; disarming never removes entries.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Summary returns the total count, advisory risk classification, and the most
// recent records retained for display.
func (m *Monitor) Summary() model.ViolationSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := make([]model.ViolationRecord, len(m.recent))
	copy(recent, m.recent)
	return model.ViolationSummary{
		Total:  m.total,
		Risk:   model.ClassifyRisk(m.highCount, m.mediumCount),
		Recent: recent,
	}
}

func detailOr(sig Signal, fallback string) string {
	if sig.Detail != "" {
		return sig.Detail
	}
	return fallback
}
