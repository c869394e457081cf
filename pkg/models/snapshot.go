package models

import "time"

// Snapshot is the whole-board state exchanged with the store and broadcast
// to other contexts. Timestamp is the wall-clock of the write that produced
// it; receivers apply strict last-writer-wins on it.
type Snapshot struct {
	Tasks              []*Task      `json:"tasks"`
	Workspaces         []*Workspace `json:"workspaces"`
	CurrentWorkspaceID string       `json:"current_workspace_id,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
}

// ActiveTask returns the WORKING task in the snapshot, or nil.
func (s *Snapshot) ActiveTask() *Task {
	for _, t := range s.Tasks {
		if t.Status == TaskStatusWorking {
			return t
		}
	}
	return nil
}
