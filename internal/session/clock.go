package session

import (
	"sync"
	"time"
)

// Clock is the single countdown timer of an attempt. It decrements once per
// interval, reports each tick, and fires the expiry callback exactly once when
// the remaining time reaches zero. After expiry the clock stops permanently.
//
// The expiry callback is the sole producer of the "time expired" trigger; the
// composition root maps it to a forced submission.
type Clock struct {
	mu        sync.Mutex
	remaining int
	interval  time.Duration
	ticks     <-chan time.Time // injected tick source for tests; nil → ticker
	onTick    func(remaining int)
	onExpire  func()
	stopCh    chan struct{}
	stopOnce  sync.Once
	expired   bool
}

// NewClock creates a countdown clock for durationSeconds. Both callbacks are
// optional. The tick interval defaults to one second.
func NewClock(durationSeconds int, onTick func(remaining int), onExpire func()) *Clock {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return &Clock{
		remaining: durationSeconds,
		interval:  time.Second,
		onTick:    onTick,
		onExpire:  onExpire,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the countdown in a background goroutine.
func (c *Clock) Start() {
	go c.run()
}

func (c *Clock) run() {
	ticks := c.ticks
	if ticks == nil {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticks:
			if c.tick() {
				return
			}
		}
	}
}

// tick processes one countdown step. It returns true once the clock has
// expired, which is guaranteed to be the last delivered tick.
func (c *Clock) tick() bool {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return true
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.expired = true
	}
	c.mu.Unlock()

	// Callbacks run outside the lock so handlers may call back into the
	// clock (e.g. Stop) without deadlocking.
	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired {
		if c.onExpire != nil {
			c.onExpire()
		}
		c.Stop()
	}
	return expired
}

// Remaining returns the seconds left on the countdown, clamped at zero.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown has reached zero.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Stop cancels the underlying timer. Safe to call multiple times and after
// expiry.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
