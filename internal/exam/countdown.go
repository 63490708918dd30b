package exam

import (
	"context"
	"sync"
	"time"
)

// CountdownState is the lifecycle of a Countdown.
type CountdownState int

const (
	CountdownRunning CountdownState = iota
	// CountdownExpired is terminal: expiry has fired.
	CountdownExpired
	// CountdownStopped is terminal: the session ended before expiry.
	CountdownStopped
)

func (s CountdownState) String() string {
	switch s {
	case CountdownRunning:
		return "running"
	case CountdownExpired:
		return "expired"
	case CountdownStopped:
		return "stopped"
	}
	return "unknown"
}

// DefaultTimeLow is the remaining time at which the low-time warning fires.
const DefaultTimeLow = 5 * time.Minute

// Countdown reports whole seconds remaining until end and fires expiry once,
// on the first tick strictly after end.
type Countdown struct {
	end     time.Time
	timeLow time.Duration

	mu       sync.Mutex
	state    CountdownState
	lowFired bool
	last     int64

	onTick    func(remaining int64)
	onTimeLow func(remaining int64)
	onExpire  func()

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// CountdownOption configures a Countdown.
type CountdownOption func(*Countdown)

// OnTick is called with the remaining seconds on every tick before expiry.
func OnTick(fn func(remaining int64)) CountdownOption {
	return func(c *Countdown) { c.onTick = fn }
}

// OnTimeLow is called once when the remaining time first drops to the threshold.
func OnTimeLow(fn func(remaining int64)) CountdownOption {
	return func(c *Countdown) { c.onTimeLow = fn }
}

// OnExpire is called exactly once when the countdown expires.
func OnExpire(fn func()) CountdownOption {
	return func(c *Countdown) { c.onExpire = fn }
}

// WithTimeLow overrides the low-time threshold.
func WithTimeLow(d time.Duration) CountdownOption {
	return func(c *Countdown) {
		if d > 0 {
			c.timeLow = d
		}
	}
}

// NewCountdown creates a running Countdown toward end. Nothing ticks until Start or Run.
func NewCountdown(end time.Time, opts ...CountdownOption) *Countdown {
	c := &Countdown{
		end:     end,
		timeLow: DefaultTimeLow,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// End returns the deadline.
func (c *Countdown) End() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.end
}

// Extend moves a running countdown's deadline to end if end is later. The low-time
// warning is re-armed when the new deadline lies beyond the threshold again.
// It reports whether the deadline moved.
func (c *Countdown) Extend(end time.Time, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CountdownRunning || !end.After(c.end) {
		return false
	}
	c.end = end
	if end.Sub(now) > c.timeLow {
		c.lowFired = false
	}
	return true
}

// State returns the current lifecycle state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the seconds reported by the last tick.
func (c *Countdown) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Tick advances the countdown to now and returns the remaining whole seconds.
// Ticks after expiry or stop are ignored.
func (c *Countdown) Tick(now time.Time) int64 {
	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return 0
	}
	if now.After(c.end) {
		c.state = CountdownExpired
		c.last = 0
		onExpire := c.onExpire
		c.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
		return 0
	}

	remaining := wholeSeconds(c.end.Sub(now))
	c.last = remaining
	fireLow := !c.lowFired && remaining > 0 && time.Duration(remaining)*time.Second <= c.timeLow
	if fireLow {
		c.lowFired = true
	}
	onTick, onTimeLow := c.onTick, c.onTimeLow
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if fireLow && onTimeLow != nil {
		onTimeLow(remaining)
	}
	return remaining
}

// Run feeds ticks into the countdown until it leaves the running state,
// Stop is called, ctx is cancelled, or ticks is closed.
func (c *Countdown) Run(ctx context.Context, ticks <-chan time.Time) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case now, ok := <-ticks:
			if !ok {
				return
			}
			c.Tick(now)
			if c.State() != CountdownRunning {
				return
			}
		}
	}
}

// Start ticks immediately and then once per second on its own goroutine.
func (c *Countdown) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		c.Tick(time.Now())
		if c.State() != CountdownRunning {
			close(c.done)
			return
		}
		c.Run(ctx, ticker.C)
	}()
}

// Stop halts ticking without firing expiry. It never blocks, so it is safe to call
// from inside a tick callback.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.state == CountdownRunning {
		c.state = CountdownStopped
	}
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when the ticking goroutine has exited.
func (c *Countdown) Done() <-chan struct{} { return c.done }
