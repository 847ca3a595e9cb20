// internal/hal/clock.go
package hal

import "time"

// monotonicClock derives a millisecond tick from the Go runtime's
// monotonic clock source.
type monotonicClock struct {
	start time.Time
}

// NewClock returns the host monotonic clock, starting at zero.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}
