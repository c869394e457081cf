package engine

import (
	"sync"
	"time"
)

// ActivityMonitor tracks the single "last observed user activity" timestamp.
// Every raw signal (keypress, focus, HTTP ping, another context's write)
// funnels into Record; consumers only ever read LastActive.
type ActivityMonitor struct {
	mu         sync.RWMutex
	lastActive time.Time
}

// NewActivityMonitor returns a monitor primed at the given instant, so a
// fresh process never reports a bogus giant gap.
func NewActivityMonitor(now time.Time) *ActivityMonitor {
	return &ActivityMonitor{lastActive: now}
}

// Record moves the last-active timestamp forward. Stale signals (older than
// the current value) are ignored so out-of-order pings cannot rewind it.
func (m *ActivityMonitor) Record(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.After(m.lastActive) {
		m.lastActive = now
	}
}

// LastActive returns the most recent recorded activity.
func (m *ActivityMonitor) LastActive() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastActive
}

// Reset re-primes the monitor, used when a context resumes after suspension.
func (m *ActivityMonitor) Reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActive = now
}
