package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// Urgency is a read-only presentation bucket for the remaining time.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Remaining returns max(0, startedAt+duration-now).
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	left := startedAt.Add(duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Timer counts down an exam from a fixed start. Expiry depends only on the wall clock,
// so a reload or a late tick recomputes the same answer.
type Timer struct {
	clock     clock.WithTicker
	startedAt time.Time
	duration  time.Duration
	tick      time.Duration
	onExpire  func()
	onTick    func(time.Duration)
	fired     atomic.Bool
}

// NewTimer creates a Timer. onExpire runs at most once, on the goroutine that detects expiry.
func NewTimer(clk clock.WithTicker, startedAt time.Time, duration, tick time.Duration, onExpire func()) *Timer {
	if tick <= 0 {
		tick = time.Second
	}
	return &Timer{
		clock:     clk,
		startedAt: startedAt,
		duration:  duration,
		tick:      tick,
		onExpire:  onExpire,
	}
}

// OnTick registers fn to receive the remaining time after every tick that did not expire.
// It must be called before Run.
func (t *Timer) OnTick(fn func(remaining time.Duration)) {
	t.onTick = fn
}

// Remaining returns the time left right now.
func (t *Timer) Remaining() time.Duration {
	return Remaining(t.startedAt, t.duration, t.clock.Now())
}

// RemainingSeconds returns the whole seconds left.
func (t *Timer) RemainingSeconds() int {
	return int(t.Remaining() / time.Second)
}

// Expired reports whether the deadline has passed.
func (t *Timer) Expired() bool {
	return t.Remaining() == 0
}

// Check is the tick body: it fires onExpire the first time the timer is seen expired.
// It returns true only on the call that fired.
func (t *Timer) Check() bool {
	if !t.Expired() {
		return false
	}
	if !t.fired.CompareAndSwap(false, true) {
		return false
	}
	if t.onExpire != nil {
		t.onExpire()
	}
	return true
}

// Run checks the timer immediately and then on every tick until ctx is done
// or the timer has fired.
func (t *Timer) Run(ctx context.Context) error {
	if t.Check() || t.fired.Load() {
		return nil
	}

	ticker := t.clock.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if t.Check() {
				return nil
			}
			if t.onTick != nil {
				t.onTick(t.Remaining())
			}
		}
	}
}

// Urgency buckets the remaining time for display.
func (t *Timer) Urgency() Urgency {
	return UrgencyFor(t.Remaining())
}

// UrgencyFor buckets d: under a minute is critical, under five minutes is a warning.
func UrgencyFor(d time.Duration) Urgency {
	switch {
	case d < time.Minute:
		return UrgencyCritical
	case d < 5*time.Minute:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// FormatRemaining renders seconds as H:MM:SS when at least an hour is left, else M:SS.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
