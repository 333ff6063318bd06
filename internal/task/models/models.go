package models

import (
	"time"

	id "tasktrail/pkg/domain"
)

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID          id.TaskID
	UserID      id.UserID
	Title       string
	Description *string
	Status      id.TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Snapshot is the activity payload describing the task's state.
func (t *Task) Snapshot() map[string]any {
	snap := map[string]any{
		"id":          t.ID.String(),
		"user_id":     t.UserID.String(),
		"title":       t.Title,
		"description": nil,
		"status":      t.Status.String(),
		"created_at":  t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.Description != nil {
		snap["description"] = *t.Description
	}
	return snap
}

// Patch is a validated partial update. Nil fields are left unchanged;
// ClearDescription sets the description to null.
type Patch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *id.TaskStatus
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	switch {
	case p.ClearDescription:
		t.Description = nil
	case p.Description != nil:
		d := *p.Description
		t.Description = &d
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	return t
}
