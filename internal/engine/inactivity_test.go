package engine

import (
	"testing"
	"time"
)

func TestInactivityPolicy(t *testing.T) {
	policy := InactivityPolicy{PauseAfter: 30 * time.Minute, NotifyAfter: 5 * time.Minute}
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// Gap within threshold: no action.
	d := policy.Evaluate(base, base.Add(10*time.Minute))
	if d.ShouldPause || d.ShouldNotify {
		t.Errorf("Expected no action for 10m gap, got %+v", d)
	}
	if d.Gap != 10*time.Minute {
		t.Errorf("Expected 10m gap, got %v", d.Gap)
	}

	// Gap exactly at threshold: still no action (strictly greater pauses).
	d = policy.Evaluate(base, base.Add(30*time.Minute))
	if d.ShouldPause {
		t.Errorf("Expected no pause at exactly the threshold")
	}

	// Gap beyond threshold: pause, effective at lastActive.
	d = policy.Evaluate(base, base.Add(45*time.Minute))
	if !d.ShouldPause {
		t.Fatalf("Expected pause for 45m gap")
	}
	if !d.EffectiveAt.Equal(base) {
		t.Errorf("Expected effective time at lastActive, got %v", d.EffectiveAt)
	}
	if !d.ShouldNotify {
		t.Errorf("Expected notify for a 45m gap")
	}
}

func TestInactivityPolicyNotifyFloor(t *testing.T) {
	// A pause threshold below the notify floor pauses silently.
	policy := InactivityPolicy{PauseAfter: time.Minute, NotifyAfter: 5 * time.Minute}
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	d := policy.Evaluate(base, base.Add(3*time.Minute))
	if !d.ShouldPause {
		t.Fatalf("Expected pause for 3m gap with 1m threshold")
	}
	if d.ShouldNotify {
		t.Errorf("Expected no notification below the notify floor")
	}
}

func TestInactivityPolicyClockSkew(t *testing.T) {
	policy := InactivityPolicy{PauseAfter: 30 * time.Minute, NotifyAfter: 5 * time.Minute}
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	// lastActive in the future (skew) clamps the gap to zero.
	d := policy.Evaluate(base.Add(time.Hour), base)
	if d.ShouldPause {
		t.Errorf("Expected no pause for negative gap")
	}
	if d.Gap != 0 {
		t.Errorf("Expected clamped gap, got %v", d.Gap)
	}
}

func TestActivityMonitor(t *testing.T) {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	m := NewActivityMonitor(base)

	if !m.LastActive().Equal(base) {
		t.Errorf("Expected monitor primed at base")
	}

	m.Record(base.Add(time.Minute))
	if !m.LastActive().Equal(base.Add(time.Minute)) {
		t.Errorf("Expected last-active advanced")
	}

	// Out-of-order signals never rewind the timestamp.
	m.Record(base.Add(30 * time.Second))
	if !m.LastActive().Equal(base.Add(time.Minute)) {
		t.Errorf("Expected stale signal ignored, got %v", m.LastActive())
	}

	// Reset may rewind (resume-from-suspend re-prime).
	m.Reset(base)
	if !m.LastActive().Equal(base) {
		t.Errorf("Expected reset to re-prime, got %v", m.LastActive())
	}
}
