package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	id "tasktrail/pkg/domain"
	dErrors "tasktrail/pkg/domain-errors"
)

const MaxTitleLen = 255

// Optional distinguishes an absent JSON field from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`

	status id.TaskStatus
}

func (r *CreateTaskRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(r.Title) > MaxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "title may not be greater than 255 characters")
	}
	st, err := id.ParseTaskStatus(r.Status)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

// ParsedStatus is valid after Validate succeeds.
func (r *CreateTaskRequest) ParsedStatus() id.TaskStatus { return r.status }

type UpdateTaskRequest struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Status      Optional[string] `json:"status"`

	patch Patch
}

// Validate checks the fields that are present. A present title or status
// must not be null or empty.
func (r *UpdateTaskRequest) Validate() error {
	var p Patch
	if r.Title.Set {
		if r.Title.Value == nil || strings.TrimSpace(*r.Title.Value) == "" {
			return dErrors.New(dErrors.CodeValidation, "title is required")
		}
		title := strings.TrimSpace(*r.Title.Value)
		if len(title) > MaxTitleLen {
			return dErrors.New(dErrors.CodeValidation, "title may not be greater than 255 characters")
		}
		p.Title = &title
	}
	if r.Description.Set {
		if r.Description.Value == nil {
			p.ClearDescription = true
		} else {
			p.Description = r.Description.Value
		}
	}
	if r.Status.Set {
		raw := ""
		if r.Status.Value != nil {
			raw = *r.Status.Value
		}
		st, err := id.ParseTaskStatus(raw)
		if err != nil {
			return err
		}
		p.Status = &st
	}
	r.patch = p
	return nil
}

// Patch is valid after Validate succeeds.
func (r *UpdateTaskRequest) Patch() Patch { return r.patch }

type TaskResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func ToTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		UserID:      t.UserID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type TaskEnvelope struct {
	Message string       `json:"message,omitempty"`
	Task    TaskResponse `json:"task"`
}

type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
