package engine

import (
	"log/slog"
	"time"

	"github.com/ldi/tempo/pkg/models"
)

// Conflict flags that both the local state and an incoming snapshot carry a
// WORKING task and they are not the same task. Resolution is a user
// decision; the engine only surfaces it.
type Conflict struct {
	Local    *models.Task
	Incoming *models.Task
}

// ApplyRemote reconciles a snapshot broadcast by another context.
//
// Strict last-writer-wins: the snapshot is rejected unless its timestamp is
// strictly newer than the last accepted one (ties are rejected to avoid
// oscillation between contexts with equal clocks). If the snapshot would
// switch the active task, nothing is applied and the conflict is returned
// for the caller to resolve.
//
// applied reports whether the board state was replaced.
func (b *Board) ApplyRemote(snap *models.Snapshot) (applied bool, conflict *Conflict) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !snap.Timestamp.After(b.lastAccepted) {
		return false, nil
	}

	incoming := snap.ActiveTask()
	var local *models.Task
	for _, t := range b.tasks {
		if t.Status == models.TaskStatusWorking {
			local = t
			break
		}
	}
	if local != nil && incoming != nil && local.ID != incoming.ID {
		b.logger.Warn("active-task conflict from remote snapshot",
			slog.String("local", local.ID),
			slog.String("incoming", incoming.ID))
		return false, &Conflict{Local: local.Clone(), Incoming: incoming.Clone()}
	}

	b.loadLocked(snap)
	return true, nil
}

// ResolveConflict applies the user's choice for a conflict raised by
// ApplyRemote. Keeping the incoming snapshot force-pauses the local active
// task now (its session is real work up to this moment) before the board
// adopts the remote state; keeping the local state simply discards the
// snapshot while still advancing the accepted timestamp, so the stale
// remote write cannot be re-offered forever.
func (b *Board) ResolveConflict(snap *models.Snapshot, keepIncoming bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !keepIncoming {
		if snap.Timestamp.After(b.lastAccepted) {
			b.lastAccepted = snap.Timestamp
		}
		return
	}
	now := b.Now()
	for _, t := range b.tasks {
		if t.Status == models.TaskStatusWorking {
			b.pauseLocked(t, now, now)
		}
	}
	b.loadLocked(snap)
}

// LastAccepted returns the timestamp of the most recent accepted write,
// local or remote.
func (b *Board) LastAccepted() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAccepted
}
