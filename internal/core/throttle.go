package core

import "time"

// DefaultPositionInterval bounds continuous position telemetry.
const DefaultPositionInterval = 500 * time.Millisecond

// positionThrottle rate-limits continuous position samples. The newest
// sample always supersedes any pending one; intermediate values are
// discarded, never queued.
type positionThrottle struct {
	interval time.Duration
	last     time.Time
	pending  float64
	armed    bool
}

func newPositionThrottle(interval time.Duration) positionThrottle {
	if interval <= 0 {
		interval = DefaultPositionInterval
	}
	return positionThrottle{interval: interval}
}

// Offer submits a sample at the given instant. It reports whether the sample
// may be sent now; a declined sample is retained as pending until the window
// closes or a newer sample replaces it.
func (t *positionThrottle) Offer(now time.Time, value float64) bool {
	if t.last.IsZero() || now.Sub(t.last) >= t.interval {
		t.last = now
		t.armed = false
		return true
	}
	t.pending = value
	t.armed = true
	return false
}

// Due returns the pending sample if the window has closed.
func (t *positionThrottle) Due(now time.Time) (float64, bool) {
	if !t.armed || now.Sub(t.last) < t.interval {
		return 0, false
	}
	t.last = now
	t.armed = false
	return t.pending, true
}

// Remaining reports how long until a pending sample becomes due.
func (t *positionThrottle) Remaining(now time.Time) (time.Duration, bool) {
	if !t.armed {
		return 0, false
	}
	rest := t.interval - now.Sub(t.last)
	if rest < 0 {
		rest = 0
	}
	return rest, true
}

// Reset clears the window and any pending sample, e.g. after an explicit
// seek already carried the freshest position.
func (t *positionThrottle) Reset(now time.Time) {
	t.last = now
	t.armed = false
}
