package engine

import "time"

// Decision is the outcome of an inactivity check. The policy performs no
// I/O; the caller applies the pause and delivers the notification.
type Decision struct {
	ShouldPause bool
	// EffectiveAt is the instant the pause takes effect: the last observed
	// activity, not the check time, so idle time is never credited as work.
	EffectiveAt  time.Time
	ShouldNotify bool
	Gap          time.Duration
}

// InactivityPolicy decides whether the active task must be force-paused
// given an observed activity gap.
type InactivityPolicy struct {
	// PauseAfter is the gap beyond which the active task is paused.
	PauseAfter time.Duration
	// NotifyAfter is the gap beyond which the pause also surfaces a
	// user-visible notification.
	NotifyAfter time.Duration
}

// Evaluate computes the decision for the given last-active instant. It is
// pure and safe to call repeatedly: applying the resulting pause twice is
// harmless because pausing a non-WORKING task is a no-op.
func (p InactivityPolicy) Evaluate(lastActive, now time.Time) Decision {
	gap := now.Sub(lastActive)
	if gap < 0 {
		gap = 0
	}
	d := Decision{Gap: gap, EffectiveAt: lastActive}
	if gap <= p.PauseAfter {
		return d
	}
	d.ShouldPause = true
	d.ShouldNotify = gap > p.NotifyAfter
	return d
}
