package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("Allow before threshold at failure %d", i)
		}
		b.RecordFailure()
	}

	if state, _ := b.Snapshot(); state != StateOpen {
		t.Fatalf("state = %v, want open", state)
	}
	if b.Allow() {
		t.Fatal("open breaker admitted a call inside cooldown")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.Allow()
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("expected fast-fail inside cooldown")
	}

	// After cooldown exactly one probe is admitted.
	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expected probe after cooldown")
	}
	if b.Allow() {
		t.Fatal("second concurrent probe admitted")
	}

	b.RecordSuccess()
	if state, failures := b.Snapshot(); state != StateClosed || failures != 0 {
		t.Fatalf("after probe success: state=%v failures=%d", state, failures)
	}
	if !b.Allow() {
		t.Fatal("closed breaker refused a call")
	}
}

func TestBreakerLateFailureDoesNotExtendCooldown(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.Allow()
	b.RecordFailure()

	// A straggling in-flight call fails halfway through the cooldown.
	now = now.Add(30 * time.Second)
	b.RecordFailure()

	// The probe window still opens one cooldown after the original trip.
	now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Fatal("late failure pushed the probe window out")
	}
}

func TestBreakerReleaseProbeReadmits(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.Allow()
	b.RecordFailure()

	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expected probe after cooldown")
	}
	b.ReleaseProbe()
	if !b.Allow() {
		t.Fatal("released slot refused the next probe")
	}
	if b.Allow() {
		t.Fatal("two concurrent probes admitted")
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, time.Minute)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.Allow()
	b.RecordFailure()

	now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("expected probe after cooldown")
	}
	b.RecordFailure()

	if state, _ := b.Snapshot(); state != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", state)
	}
	if b.Allow() {
		t.Fatal("reopened breaker admitted a call")
	}
}
