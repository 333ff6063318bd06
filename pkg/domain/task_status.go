package domain

import dErrors "tasktrail/pkg/domain-errors"

// TaskStatus is the workflow state of a task.
// Invariant: the value must be one of the supported statuses.
//
// Usage: construct via ParseTaskStatus at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "In Progress"
	TaskStatusCompleted  TaskStatus = "Completed"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskStatusPending:    true,
	TaskStatusInProgress: true,
	TaskStatusCompleted:  true,
}

// ParseTaskStatus constructs a TaskStatus from external input.
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "status is required")
	}
	st := TaskStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of: Pending, In Progress, Completed")
	}
	return st, nil
}

// IsValid checks if the status is one of the supported enum values.
func (s TaskStatus) IsValid() bool {
	return validTaskStatuses[s]
}

func (s TaskStatus) String() string {
	return string(s)
}
