package device

import "time"

// Clock is the device microsecond counter. It wraps around like the
// hardware counter does.
type Clock interface {
	Micros() uint32
}

// SystemClock counts microseconds since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a SystemClock.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Micros implements Clock.
func (c *SystemClock) Micros() uint32 {
	return uint32(time.Since(c.start) / time.Microsecond)
}

// ClockFunc is func type of Clock.
type ClockFunc func() uint32

// Micros implements Clock.
func (f ClockFunc) Micros() uint32 {
	return f()
}

// reached indicates t is at or before now, tolerating wrap-around.
func reached(now, t uint32) bool {
	return int32(now-t) >= 0
}
