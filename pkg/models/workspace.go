package models

import "time"

// Workspace is a named partition of the board. Every task belongs to
// exactly one workspace.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaskTypes []string  `json:"task_types,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *Workspace) Clone() *Workspace {
	c := *w
	if w.TaskTypes != nil {
		c.TaskTypes = append([]string(nil), w.TaskTypes...)
	}
	return &c
}
