package session

import (
	"sync/atomic"
	"testing"
)

func TestClockCountdownMonotonic(t *testing.T) {
	var ticks []int
	var expires int32

	c := NewClock(3, func(remaining int) {
		ticks = append(ticks, remaining)
	}, func() {
		atomic.AddInt32(&expires, 1)
	})

	// Five ticks against a 3 second budget: the two extra ticks must be
	// swallowed after expiry.
	for i := 0; i < 5; i++ {
		c.tick()
	}

	want := []int{2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("tick count = %d, want %d (%v)", len(ticks), len(want), ticks)
	}
	for i, r := range want {
		if ticks[i] != r {
			t.Errorf("ticks[%d] = %d, want %d", i, ticks[i], r)
		}
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] > ticks[i-1] {
			t.Errorf("remaining increased: %d -> %d", ticks[i-1], ticks[i])
		}
	}

	if got := atomic.LoadInt32(&expires); got != 1 {
		t.Errorf("expire fired %d times, want exactly 1", got)
	}
	if !c.Expired() {
		t.Error("clock should report expired")
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
}

func TestClockExpireIsLastTick(t *testing.T) {
	var last int
	c := NewClock(2, func(remaining int) { last = remaining }, nil)
	for i := 0; i < 10; i++ {
		c.tick()
	}
	if last != 0 {
		t.Errorf("last delivered tick = %d, want 0", last)
	}
}

func TestClockStopIdempotent(t *testing.T) {
	c := NewClock(10, nil, nil)
	c.Start()
	c.Stop()
	c.Stop() // must not panic
	c.Stop()
}

func TestClockStopAfterExpiry(t *testing.T) {
	c := NewClock(1, nil, nil)
	c.tick()
	if !c.Expired() {
		t.Fatal("expected expiry after one tick")
	}
	c.Stop() // safe after self-stop on expiry
}

func TestClockZeroDuration(t *testing.T) {
	fired := 0
	c := NewClock(0, nil, func() { fired++ })
	c.tick()
	c.tick()
	if fired != 1 {
		t.Errorf("expire fired %d times, want 1", fired)
	}
}
