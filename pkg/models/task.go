package models

import "time"

type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "NEW"
	TaskStatusUpNext     TaskStatus = "UP_NEXT"
	TaskStatusWorking    TaskStatus = "WORKING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
	TaskStatusDone       TaskStatus = "DONE"
)

// StatusOrder is the total order used by board column layout and by
// left/right moves. It is a first-class artifact: moves step through this
// slice and clamp at both ends.
var StatusOrder = []TaskStatus{
	TaskStatusNew,
	TaskStatusUpNext,
	TaskStatusWorking,
	TaskStatusInProgress,
	TaskStatusBlocked,
	TaskStatusDone,
}

// Index returns the position of s in StatusOrder, or -1 for an unknown status.
func (s TaskStatus) Index() int {
	for i, st := range StatusOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	return s.Index() >= 0
}

// Next returns the status one step to the right, clamped at DONE.
func (s TaskStatus) Next() TaskStatus {
	i := s.Index()
	if i < 0 || i == len(StatusOrder)-1 {
		return s
	}
	return StatusOrder[i+1]
}

// Prev returns the status one step to the left, clamped at NEW.
func (s TaskStatus) Prev() TaskStatus {
	i := s.Index()
	if i <= 0 {
		return s
	}
	return StatusOrder[i-1]
}

// HistoryEntry is one interval of a task's status history. ExitedAt is nil
// while the entry is open; only the last entry may be open.
type HistoryEntry struct {
	Status    TaskStatus `json:"status"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

type Task struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	TaskType    string         `json:"task_type,omitempty"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	// TotalWorkingTime accumulates closed WORKING sessions only. The live
	// session, if any, is derived from StartedAt at read time.
	TotalWorkingTime Duration       `json:"total_working_time_ms"`
	History          []HistoryEntry `json:"history"`
}

// Clone returns a deep copy so snapshots handed to other contexts never
// alias the board's live state.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		at := *t.StartedAt
		c.StartedAt = &at
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	c.History = make([]HistoryEntry, len(t.History))
	for i, e := range t.History {
		c.History[i] = e
		if e.ExitedAt != nil {
			at := *e.ExitedAt
			c.History[i].ExitedAt = &at
		}
	}
	return &c
}

// TaskPatch is a typed partial update for Edit. Nil fields are left
// untouched; status and history are deliberately not patchable here.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	TaskType    *string    `json:"task_type,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}
