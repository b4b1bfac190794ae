package core

import "time"

// Clock supplies the loop's millisecond time base. The value wraps after
// about 49 days; all comparisons use wrap-safe subtraction.
type Clock interface {
	Millis() uint32
}

// MonotonicClock counts milliseconds since it was created
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Millis returns ms since the clock was created
func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

// ManualClock is advanced explicitly (tests, simulation)
type ManualClock struct {
	Now uint32
}

// Millis returns the current manual time
func (c *ManualClock) Millis() uint32 {
	return c.Now
}

// Advance moves the clock forward by ms
func (c *ManualClock) Advance(ms uint32) {
	c.Now += ms
}

// timeReached reports whether now is at or after deadline (wrap-safe)
func timeReached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// Interval fires at a fixed cadence. The first check fires immediately;
// missed periods are skipped rather than replayed.
type Interval struct {
	Period uint32
	next   uint32
	armed  bool
}

// NewInterval creates an interval of period ms. Period 0 fires on every check.
func NewInterval(period uint32) Interval {
	return Interval{Period: period}
}

// Due reports whether the interval has elapsed and rearms it
func (i *Interval) Due(now uint32) bool {
	if i.Period == 0 {
		return true
	}
	if !i.armed {
		i.armed = true
		i.next = now + i.Period
		return true
	}
	if !timeReached(now, i.next) {
		return false
	}
	i.next += i.Period
	if timeReached(now, i.next) {
		i.next = now + i.Period
	}
	return true
}

// Reset makes the next check fire immediately
func (i *Interval) Reset() {
	i.armed = false
}
