package core

import (
	"testing"
	"time"
)

func TestThrottleFirstSampleSendsImmediately(t *testing.T) {
	throttle := newPositionThrottle(500 * time.Millisecond)
	now := time.Unix(1000, 0)

	if !throttle.Offer(now, 1.0) {
		t.Fatalf("first sample should pass")
	}
}

func TestThrottleLatestValueWins(t *testing.T) {
	throttle := newPositionThrottle(500 * time.Millisecond)
	now := time.Unix(1000, 0)

	if !throttle.Offer(now, 1.0) {
		t.Fatalf("first sample should pass")
	}
	if throttle.Offer(now.Add(100*time.Millisecond), 2.0) {
		t.Fatalf("sample inside window should be held")
	}
	if throttle.Offer(now.Add(200*time.Millisecond), 3.0) {
		t.Fatalf("sample inside window should be held")
	}

	if _, ok := throttle.Due(now.Add(300 * time.Millisecond)); ok {
		t.Fatalf("nothing due before window closes")
	}
	value, ok := throttle.Due(now.Add(500 * time.Millisecond))
	if !ok {
		t.Fatalf("pending sample should be due")
	}
	if value != 3.0 {
		t.Fatalf("expected latest value 3.0, got %v", value)
	}
	if _, ok := throttle.Due(now.Add(2 * time.Second)); ok {
		t.Fatalf("pending sample must only fire once")
	}
}

func TestThrottleAtMostOncePerWindow(t *testing.T) {
	throttle := newPositionThrottle(500 * time.Millisecond)
	start := time.Unix(1000, 0)

	sent := 0
	for i := 0; i < 10; i++ {
		if throttle.Offer(start.Add(time.Duration(i)*100*time.Millisecond), float64(i)) {
			sent++
		}
	}
	// 900 ms of samples at 100 ms spacing: sends at 0 and 500.
	if sent != 2 {
		t.Fatalf("expected 2 sends in 900ms, got %d", sent)
	}
}

func TestThrottleRemaining(t *testing.T) {
	throttle := newPositionThrottle(500 * time.Millisecond)
	now := time.Unix(1000, 0)

	throttle.Offer(now, 1.0)
	if _, armed := throttle.Remaining(now); armed {
		t.Fatalf("nothing pending after a passed sample")
	}

	throttle.Offer(now.Add(200*time.Millisecond), 2.0)
	rest, armed := throttle.Remaining(now.Add(200 * time.Millisecond))
	if !armed || rest != 300*time.Millisecond {
		t.Fatalf("expected 300ms remaining, got %v armed=%v", rest, armed)
	}
}

func TestThrottleReset(t *testing.T) {
	throttle := newPositionThrottle(500 * time.Millisecond)
	now := time.Unix(1000, 0)

	throttle.Offer(now, 1.0)
	throttle.Offer(now.Add(100*time.Millisecond), 2.0)
	throttle.Reset(now.Add(150 * time.Millisecond))

	if _, ok := throttle.Due(now.Add(10 * time.Second)); ok {
		t.Fatalf("reset must drop the pending sample")
	}
}
