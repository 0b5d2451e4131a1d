package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

type fakeRemediator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRemediator) call(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRemediator) RequestRefocus()   { f.call("refocus") }
func (f *fakeRemediator) EnterFullscreen()  { f.call("fullscreen") }
func (f *fakeRemediator) CancelNavigation() { f.call("cancel_navigation") }
func (f *fakeRemediator) BlockUnload()      { f.call("block_unload") }
func (f *fakeRemediator) SuppressDefault()  { f.call("suppress_default") }

func (f *fakeRemediator) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeRemediator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMedia struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
}

func (f *fakeMedia) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeMedia) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

type fakeSink struct {
	mu      sync.Mutex
	records []model.ViolationRecord
}

func (f *fakeSink) Record(v model.ViolationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, v)
}

func newTestMonitor(r Remediator, m MediaCapture, s ViolationSink) *Monitor {
	return NewMonitor(r, m, s, zerolog.Nop())
}

func TestMonitorSeverityMapping(t *testing.T) {
	tests := []struct {
		kind     SignalKind
		category model.ViolationCategory
		severity model.Severity
	}{
		{SignalPageHidden, model.ViolationTabSwitch, model.SeverityHigh},
		{SignalWindowBlur, model.ViolationFocusLoss, model.SeverityHigh},
		{SignalUnloadRequested, model.ViolationExitAttempt, model.SeverityHigh},
		{SignalHistoryNavigation, model.ViolationNavigationAttempt, model.SeverityHigh},
		{SignalDevtoolsShortcut, model.ViolationBlockedShortcut, model.SeverityHigh},
		{SignalClipboardShortcut, model.ViolationSuspiciousKeys, model.SeverityLow},
		{SignalContextMenu, model.ViolationRightClick, model.SeverityLow},
		{SignalMediaError, model.ViolationMediaUnavailable, model.SeverityHigh},
	}

	for _, tt := range tests {
		sink := &fakeSink{}
		mon := newTestMonitor(&fakeRemediator{}, nil, sink)
		mon.Arm(context.Background())
		mon.Observe(Signal{Kind: tt.kind})

		if len(sink.records) != 1 {
			t.Fatalf("%s: recorded %d violations, want 1", tt.kind, len(sink.records))
		}
		rec := sink.records[0]
		if rec.Category != tt.category {
			t.Errorf("%s: category = %s, want %s", tt.kind, rec.Category, tt.category)
		}
		if rec.Severity != tt.severity {
			t.Errorf("%s: severity = %s, want %s", tt.kind, rec.Severity, tt.severity)
		}
	}
}

func TestMonitorRemediation(t *testing.T) {
	rem := &fakeRemediator{}
	mon := newTestMonitor(rem, nil, nil)
	mon.Arm(context.Background())

	mon.Observe(Signal{Kind: SignalWindowBlur})
	if !rem.has("refocus") {
		t.Error("focus loss should request refocus")
	}

	mon.Observe(Signal{Kind: SignalUnloadRequested})
	if !rem.has("block_unload") {
		t.Error("exit attempt should block unload")
	}

	mon.Observe(Signal{Kind: SignalHistoryNavigation})
	if !rem.has("cancel_navigation") {
		t.Error("navigation attempt should be cancelled")
	}

	mon.Observe(Signal{Kind: SignalContextMenu})
	if !rem.has("suppress_default") {
		t.Error("right click should suppress default")
	}

	// Tab switch schedules a deferred full-screen re-entry.
	mon.Observe(Signal{Kind: SignalPageHidden})
	deadline := time.Now().Add(2 * time.Second)
	for !rem.has("fullscreen") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !rem.has("fullscreen") {
		t.Error("tab switch should re-enter full-screen after a short delay")
	}

	// Clipboard shortcuts are log-only.
	before := rem.count()
	mon.Observe(Signal{Kind: SignalClipboardShortcut})
	if rem.count() != before {
		t.Error("clipboard shortcut must not trigger remediation")
	}
}

func TestMonitorDisarmReleasesMediaOnce(t *testing.T) {
	media := &fakeMedia{}
	mon := newTestMonitor(nil, media, nil)
	mon.Arm(context.Background())

	if media.started != 1 {
		t.Fatalf("media started %d times, want 1", media.started)
	}

	mon.Disarm()
	mon.Disarm()
	mon.Disarm()

	if media.stopped != 1 {
		t.Errorf("media stopped %d times, want exactly 1", media.stopped)
	}
	if mon.Armed() {
		t.Error("monitor should be disarmed")
	}
}

func TestMonitorDropsSignalsAfterDisarm(t *testing.T) {
	mon := newTestMonitor(nil, nil, nil)
	mon.Arm(context.Background())
	mon.Observe(Signal{Kind: SignalWindowBlur})
	mon.Observe(Signal{Kind: SignalWindowBlur})
	mon.Disarm()
	mon.Observe(Signal{Kind: SignalWindowBlur})

	// Disarming never removes prior entries, and later signals are dropped.
	if got := mon.Count(); got != 2 {
		t.Errorf("Count after disarm = %d, want 2", got)
	}
}

func TestMonitorMediaFailureDegradesNotFails(t *testing.T) {
	media := &fakeMedia{startErr: errors.New("permission denied")}
	mon := newTestMonitor(nil, media, nil)
	mon.Arm(context.Background())

	if !mon.Armed() {
		t.Error("monitor must stay armed when media acquisition fails")
	}
	sum := mon.Summary()
	if sum.Total != 1 {
		t.Fatalf("violations = %d, want 1", sum.Total)
	}
	if sum.Recent[0].Category != model.ViolationMediaUnavailable {
		t.Errorf("category = %s, want %s", sum.Recent[0].Category, model.ViolationMediaUnavailable)
	}
	if sum.Recent[0].Severity != model.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", sum.Recent[0].Severity)
	}
}

func TestMonitorRecentBoundedButCountIsNot(t *testing.T) {
	mon := newTestMonitor(nil, nil, nil)
	mon.recentLimit = 5
	mon.Arm(context.Background())

	for i := 0; i < 20; i++ {
		mon.Observe(Signal{Kind: SignalContextMenu})
	}

	sum := mon.Summary()
	if len(sum.Recent) != 5 {
		t.Errorf("recent retained %d records, want 5", len(sum.Recent))
	}
	if sum.Total != 20 {
		t.Errorf("total = %d, want 20 (never truncated)", sum.Total)
	}
}

func TestRiskClassification(t *testing.T) {
	tests := []struct {
		high, medium int
		want         model.RiskLevel
	}{
		{0, 0, model.RiskNormal},
		{0, 3, model.RiskNormal},
		{0, 4, model.RiskMedium},
		{1, 0, model.RiskMedium},
		{2, 0, model.RiskMedium},
		{3, 0, model.RiskHigh},
		{5, 10, model.RiskHigh},
	}
	for _, tt := range tests {
		if got := model.ClassifyRisk(tt.high, tt.medium); got != tt.want {
			t.Errorf("ClassifyRisk(%d, %d) = %s, want %s", tt.high, tt.medium, got, tt.want)
		}
	}
}

func TestMonitorThreeHighViolationsIsHighRisk(t *testing.T) {
	mon := newTestMonitor(&fakeRemediator{}, nil, nil)
	mon.Arm(context.Background())

	mon.Observe(Signal{Kind: SignalPageHidden})
	mon.Observe(Signal{Kind: SignalPageHidden})
	mon.Observe(Signal{Kind: SignalUnloadRequested})

	if sum := mon.Summary(); sum.Risk != model.RiskHigh {
		t.Errorf("risk = %s, want %s", sum.Risk, model.RiskHigh)
	}
}
