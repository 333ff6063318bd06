package domain

import (
	"github.com/google/uuid"

	dErrors "tasktrail/pkg/domain-errors"
)

// Typed identifiers keep user and task IDs from being swapped by accident.
// Construct them via the Parse functions at trust boundaries.
type (
	UserID uuid.UUID
	TaskID uuid.UUID
)

// ParseUserID parses a non-nil UUID user identifier.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseTaskID parses a non-nil UUID task identifier.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s, "task_id")
	return TaskID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id TaskID) String() string { return uuid.UUID(id).String() }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id TaskID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

func (id *TaskID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = TaskID(u)
	return nil
}
