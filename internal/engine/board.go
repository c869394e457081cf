package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/tempo/pkg/models"
)

// Persister is the storage collaborator. A returned nil error means the
// snapshot is durable; the board only broadcasts after a successful save.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// Broadcaster fans a committed snapshot out to other contexts.
type Broadcaster interface {
	Publish(snap *models.Snapshot)
}

// Direction of a column move.
type Direction string

const (
	MoveLeft  Direction = "left"
	MoveRight Direction = "right"
)

// Board owns all tasks and workspaces of one context and is the only writer
// to them. It enforces the single-active-task invariant: at most one task is
// WORKING at any committed point.
//
// Mutations are local-first: apply in memory, persist, then broadcast. A
// persistence failure is returned to the caller without rolling back memory;
// the caller retries.
type Board struct {
	mu sync.Mutex

	tasks              map[string]*models.Task
	workspaces         map[string]*models.Workspace
	currentWorkspaceID string
	lastAccepted       time.Time

	store     Persister
	broadcast Broadcaster
	logger    *slog.Logger

	// Now and NewID are swappable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

// NewBoard creates an empty board. store and broadcast may be nil for a
// purely in-memory board (tests, dry runs).
func NewBoard(store Persister, broadcast Broadcaster, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		tasks:      make(map[string]*models.Task),
		workspaces: make(map[string]*models.Workspace),
		store:      store,
		broadcast:  broadcast,
		logger:     logger,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

// Load replaces the board state with a persisted snapshot. If several tasks
// claim WORKING (a broken invariant left behind by a crash or a concurrent
// writer), the one with the most recent StartedAt stays active and the rest
// are force-paused at load time. Recovery is logged, never fatal.
func (b *Board) Load(snap *models.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadLocked(snap)
	b.repairActiveLocked(b.Now())
}

func (b *Board) loadLocked(snap *models.Snapshot) {
	b.tasks = make(map[string]*models.Task, len(snap.Tasks))
	for _, t := range snap.Tasks {
		b.tasks[t.ID] = t.Clone()
	}
	b.workspaces = make(map[string]*models.Workspace, len(snap.Workspaces))
	for _, w := range snap.Workspaces {
		b.workspaces[w.ID] = w.Clone()
	}
	b.currentWorkspaceID = snap.CurrentWorkspaceID
	if snap.Timestamp.After(b.lastAccepted) {
		b.lastAccepted = snap.Timestamp
	}
}

func (b *Board) repairActiveLocked(now time.Time) {
	var working []*models.Task
	for _, t := range b.tasks {
		if t.Status == models.TaskStatusWorking {
			working = append(working, t)
		}
	}
	if len(working) <= 1 {
		return
	}
	sort.Slice(working, func(i, j int) bool {
		ti, tj := working[i], working[j]
		switch {
		case ti.StartedAt == nil:
			return false
		case tj.StartedAt == nil:
			return true
		default:
			return ti.StartedAt.After(*tj.StartedAt)
		}
	})
	for _, t := range working[1:] {
		b.pauseLocked(t, now, now)
		b.logger.Warn("force-paused task to restore single-active invariant",
			slog.String("task_id", t.ID),
			slog.String("title", t.Title),
			slog.String("kept", working[0].ID))
	}
}

// commit persists the current state and, once durable, broadcasts it.
// Callers hold b.mu.
func (b *Board) commit(ctx context.Context) error {
	ts := b.Now()
	if !ts.After(b.lastAccepted) {
		// Monotonicity guard against coarse clocks: two commits in the
		// same tick must still be ordered for last-writer-wins receivers.
		ts = b.lastAccepted.Add(time.Millisecond)
	}
	b.lastAccepted = ts
	snap := b.snapshotLocked(ts)
	if b.store != nil {
		if err := b.store.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}
	if b.broadcast != nil {
		b.broadcast.Publish(snap)
	}
	return nil
}

func (b *Board) snapshotLocked(ts time.Time) *models.Snapshot {
	snap := &models.Snapshot{
		CurrentWorkspaceID: b.currentWorkspaceID,
		Timestamp:          ts,
		Tasks:              make([]*models.Task, 0, len(b.tasks)),
		Workspaces:         make([]*models.Workspace, 0, len(b.workspaces)),
	}
	for _, t := range b.tasks {
		snap.Tasks = append(snap.Tasks, t.Clone())
	}
	sort.Slice(snap.Tasks, func(i, j int) bool {
		return snap.Tasks[i].CreatedAt.Before(snap.Tasks[j].CreatedAt)
	})
	for _, w := range b.workspaces {
		snap.Workspaces = append(snap.Workspaces, w.Clone())
	}
	sort.Slice(snap.Workspaces, func(i, j int) bool {
		return snap.Workspaces[i].CreatedAt.Before(snap.Workspaces[j].CreatedAt)
	})
	return snap
}

// Snapshot returns a deep copy of the current state.
func (b *Board) Snapshot() *models.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(b.lastAccepted)
}

// CreateTask adds a new task with a single open history entry for its
// initial status. An empty status defaults to NEW; an empty workspace
// defaults to the current one.
func (b *Board) CreateTask(ctx context.Context, title string, status models.TaskStatus, workspaceID string) (*models.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if status == "" {
		status = models.TaskStatusNew
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status: %s", status)
	}
	if workspaceID == "" {
		workspaceID = b.currentWorkspaceID
	}

	now := b.Now()
	t := &models.Task{
		ID:          b.NewID(),
		WorkspaceID: workspaceID,
		Title:       title,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		History:     []models.HistoryEntry{{Status: status, EnteredAt: now}},
	}
	b.tasks[t.ID] = t
	if err := b.commit(ctx); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// MoveTask steps a task one column left or right along the status order,
// clamped at both ends (past-the-end moves are no-ops). Moving off WORKING
// drops StartedAt without crediting the session; moving onto WORKING does
// NOT arm the timer or pause another active task -- only StartWorking does.
// The asymmetry is deliberate: a move steps through WORKING without timing
// it.
func (b *Board) MoveTask(ctx context.Context, id string, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	var dest models.TaskStatus
	switch dir {
	case MoveLeft:
		dest = t.Status.Prev()
	case MoveRight:
		dest = t.Status.Next()
	default:
		return fmt.Errorf("unknown direction: %s", dir)
	}
	if dest == t.Status {
		return nil
	}

	now := b.Now()
	t.History = CloseOpenEntry(t.History, now)
	t.History = AppendEntry(t.History, dest, now)
	t.Status = dest
	if dest != models.TaskStatusWorking {
		t.StartedAt = nil
	}
	t.UpdatedAt = now
	return b.commit(ctx)
}

// StartWorking makes the task the single active one. If another task is
// WORKING it is paused first at the same instant, so no time is lost or
// double-counted between the two. Resuming a previously paused task keeps
// its accumulated total. Unknown ids are a no-op.
func (b *Board) StartWorking(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	if t.Status == models.TaskStatusWorking {
		return nil
	}

	now := b.Now()
	for _, other := range b.tasks {
		if other.ID != id && other.Status == models.TaskStatusWorking {
			b.pauseLocked(other, now, now)
		}
	}
	t.History = CloseOpenEntry(t.History, now)
	t.History = AppendEntry(t.History, models.TaskStatusWorking, now)
	t.Status = models.TaskStatusWorking
	startedAt := now
	t.StartedAt = &startedAt
	t.UpdatedAt = now
	return b.commit(ctx)
}

// Pause stops the live session of a WORKING task, crediting the elapsed
// session to its total, and parks it in IN_PROGRESS. A no-op for tasks that
// are not WORKING, which makes retried pauses harmless.
func (b *Board) Pause(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok || t.Status != models.TaskStatusWorking {
		return nil
	}
	now := b.Now()
	b.pauseLocked(t, now, now)
	return b.commit(ctx)
}

// pauseLocked moves a WORKING task to IN_PROGRESS, closing its session at
// effectiveAt. effectiveAt may lie in the past (inactivity auto-pause);
// UpdatedAt still reflects the wall clock of the mutation.
func (b *Board) pauseLocked(t *models.Task, effectiveAt, now time.Time) {
	if t.Status != models.TaskStatusWorking {
		return
	}
	t.TotalWorkingTime += models.Duration(sessionTime(t.StartedAt, effectiveAt))
	t.History = CloseOpenEntry(t.History, effectiveAt)
	t.History = AppendEntry(t.History, models.TaskStatusInProgress, effectiveAt)
	t.Status = models.TaskStatusInProgress
	t.StartedAt = nil
	t.UpdatedAt = now
}

// MarkDone completes a task from any status, bypassing the column order. A
// WORKING task first accrues its live session exactly like Pause. Unknown
// ids are a no-op.
func (b *Board) MarkDone(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	now := b.Now()
	if t.Status == models.TaskStatusWorking {
		t.TotalWorkingTime += models.Duration(sessionTime(t.StartedAt, now))
	}
	t.History = CloseOpenEntry(t.History, now)
	t.History = AppendEntry(t.History, models.TaskStatusDone, now)
	t.Status = models.TaskStatusDone
	t.StartedAt = nil
	t.UpdatedAt = now
	return b.commit(ctx)
}

// AutoPause applies an inactivity decision to the active task, if any. The
// session is credited only up to the decision's effective instant (the last
// observed activity). It returns the paused task for notification purposes,
// or nil when nothing was paused.
func (b *Board) AutoPause(ctx context.Context, d Decision) (*models.Task, error) {
	if !d.ShouldPause {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var active *models.Task
	for _, t := range b.tasks {
		if t.Status == models.TaskStatusWorking {
			active = t
			break
		}
	}
	if active == nil {
		return nil, nil
	}
	b.pauseLocked(active, d.EffectiveAt, b.Now())
	b.logger.Info("task auto-paused due to inactivity",
		slog.String("task_id", active.ID),
		slog.String("title", active.Title),
		slog.Duration("gap", d.Gap))
	if err := b.commit(ctx); err != nil {
		return nil, err
	}
	return active.Clone(), nil
}

// EditTask merges a typed partial update into the task's descriptive
// fields. Status, timer and history are out of reach here. Unknown ids are
// a no-op.
func (b *Board) EditTask(ctx context.Context, id string, patch models.TaskPatch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Tags != nil {
		t.Tags = append([]string(nil), (*patch.Tags)...)
	}
	if patch.TaskType != nil {
		t.TaskType = *patch.TaskType
	}
	if patch.Deadline != nil {
		deadline := *patch.Deadline
		t.Deadline = &deadline
	}
	t.UpdatedAt = b.Now()
	return b.commit(ctx)
}

// SetWorkingTime replaces the accumulated working time outright. This is a
// manual correction that bypasses session accrual and leaves history alone.
func (b *Board) SetWorkingTime(ctx context.Context, id string, total time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	if total < 0 {
		total = 0
	}
	t.TotalWorkingTime = models.Duration(total)
	t.UpdatedAt = b.Now()
	return b.commit(ctx)
}

// DeleteTask removes a task entirely. Unknown ids are a no-op.
func (b *Board) DeleteTask(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tasks[id]; !ok {
		return nil
	}
	delete(b.tasks, id)
	return b.commit(ctx)
}

// Task returns a copy of the task, or nil when unknown.
func (b *Board) Task(id string) *models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tasks[id]; ok {
		return t.Clone()
	}
	return nil
}

// ActiveTask returns a copy of the WORKING task, or nil.
func (b *Board) ActiveTask() *models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tasks {
		if t.Status == models.TaskStatusWorking {
			return t.Clone()
		}
	}
	return nil
}

// Tasks returns copies of all tasks ordered by creation time.
func (b *Board) Tasks() []*models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasksLocked(func(*models.Task) bool { return true })
}

// TasksByStatus returns copies of the tasks in the given column.
func (b *Board) TasksByStatus(status models.TaskStatus) []*models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasksLocked(func(t *models.Task) bool { return t.Status == status })
}

// TasksByWorkspace returns copies of the tasks in the given workspace.
func (b *Board) TasksByWorkspace(workspaceID string) []*models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasksLocked(func(t *models.Task) bool { return t.WorkspaceID == workspaceID })
}

func (b *Board) tasksLocked(keep func(*models.Task) bool) []*models.Task {
	var out []*models.Task
	for _, t := range b.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WorkedTime returns the task's total working time including the live
// session, if one is open.
func (b *Board) WorkedTime(id string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok {
		return 0
	}
	total := time.Duration(t.TotalWorkingTime)
	if t.Status == models.TaskStatusWorking {
		total += sessionTime(t.StartedAt, now)
	}
	return total
}

// TimeReport returns the per-status duration breakdown derived from the
// task's history, with the open entry measured up to now.
func (b *Board) TimeReport(id string, now time.Time) map[models.TaskStatus]time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok {
		return nil
	}
	return DurationByStatus(t.History, now)
}

// CreateWorkspace adds a named board partition. The first workspace created
// becomes current.
func (b *Board) CreateWorkspace(ctx context.Context, name string) (*models.Workspace, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}
	now := b.Now()
	w := &models.Workspace{
		ID:        b.NewID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.workspaces[w.ID] = w
	if b.currentWorkspaceID == "" {
		b.currentWorkspaceID = w.ID
	}
	if err := b.commit(ctx); err != nil {
		return nil, err
	}
	return w.Clone(), nil
}

// UpdateWorkspace renames a workspace and/or replaces its task types.
// Unknown ids are a no-op.
func (b *Board) UpdateWorkspace(ctx context.Context, id string, name *string, taskTypes *[]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.workspaces[id]
	if !ok {
		return nil
	}
	if name != nil && *name != "" {
		w.Name = *name
	}
	if taskTypes != nil {
		w.TaskTypes = append([]string(nil), (*taskTypes)...)
	}
	w.UpdatedAt = b.Now()
	return b.commit(ctx)
}

// DeleteWorkspace removes a workspace and every task in it. Unknown ids are
// a no-op.
func (b *Board) DeleteWorkspace(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.workspaces[id]; !ok {
		return nil
	}
	delete(b.workspaces, id)
	for tid, t := range b.tasks {
		if t.WorkspaceID == id {
			delete(b.tasks, tid)
		}
	}
	if b.currentWorkspaceID == id {
		b.currentWorkspaceID = ""
		for _, w := range b.workspaces {
			if b.currentWorkspaceID == "" || w.CreatedAt.Before(b.workspaces[b.currentWorkspaceID].CreatedAt) {
				b.currentWorkspaceID = w.ID
			}
		}
	}
	return b.commit(ctx)
}

// Workspaces returns copies of all workspaces ordered by creation time.
func (b *Board) Workspaces() []*models.Workspace {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*models.Workspace
	for _, w := range b.workspaces {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Workspace returns a copy of the workspace, or nil when unknown.
func (b *Board) Workspace(id string) *models.Workspace {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.workspaces[id]; ok {
		return w.Clone()
	}
	return nil
}

// CurrentWorkspaceID returns the id of the workspace surfaces render by
// default.
func (b *Board) CurrentWorkspaceID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentWorkspaceID
}

// SetCurrentWorkspace switches the default workspace. Unknown ids are a
// no-op.
func (b *Board) SetCurrentWorkspace(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.workspaces[id]; !ok {
		return nil
	}
	b.currentWorkspaceID = id
	return b.commit(ctx)
}

// sessionTime is the elapsed live session, clamped at zero against clock
// skew and nil StartedAt.
func sessionTime(startedAt *time.Time, until time.Time) time.Duration {
	if startedAt == nil {
		return 0
	}
	d := until.Sub(*startedAt)
	if d < 0 {
		return 0
	}
	return d
}
