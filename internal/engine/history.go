package engine

import (
	"time"

	"github.com/ldi/tempo/pkg/models"
)

// openIndex returns the index of the open (unexited) history entry, or -1.
// The invariant maintained by all mutations is that at most one entry is
// open and it is the last one.
func openIndex(history []models.HistoryEntry) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ExitedAt == nil {
			return i
		}
	}
	return -1
}

// OpenEntry returns the currently open history entry, or nil.
func OpenEntry(history []models.HistoryEntry) *models.HistoryEntry {
	if i := openIndex(history); i >= 0 {
		return &history[i]
	}
	return nil
}

// CloseOpenEntry closes the last entry at the given instant. It is a no-op
// when the last entry is already closed, and never touches earlier entries.
func CloseOpenEntry(history []models.HistoryEntry, at time.Time) []models.HistoryEntry {
	if len(history) == 0 {
		return history
	}
	last := &history[len(history)-1]
	if last.ExitedAt == nil {
		exited := at
		if exited.Before(last.EnteredAt) {
			// Clock skew guard: an interval never ends before it begins.
			exited = last.EnteredAt
		}
		last.ExitedAt = &exited
	}
	return history
}

// AppendEntry opens a new entry for status at the given instant. If an entry
// for the same status is already open anywhere in the log, it is a no-op:
// this de-duplicates replays racing in from other contexts.
func AppendEntry(history []models.HistoryEntry, status models.TaskStatus, at time.Time) []models.HistoryEntry {
	for i := range history {
		if history[i].Status == status && history[i].ExitedAt == nil {
			return history
		}
	}
	return append(history, models.HistoryEntry{Status: status, EnteredAt: at})
}

// DurationByStatus accumulates time per status across the log. Closed
// entries contribute their full interval; the open entry, if any,
// contributes now - enteredAt. Negative intervals from clock skew clamp to
// zero.
func DurationByStatus(history []models.HistoryEntry, now time.Time) map[models.TaskStatus]time.Duration {
	totals := make(map[models.TaskStatus]time.Duration)
	for _, e := range history {
		end := now
		if e.ExitedAt != nil {
			end = *e.ExitedAt
		}
		d := end.Sub(e.EnteredAt)
		if d < 0 {
			d = 0
		}
		totals[e.Status] += d
	}
	return totals
}
