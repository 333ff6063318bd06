package models

import (
	"time"

	"tasktrail/pkg/activity"
)

// SubmitRequest is the body accepted by both submission endpoints.
//
// The snake_case fields are the schema older producers still send. They are
// only consulted when the matching camelCase field is absent.
type SubmitRequest struct {
	ActorID    activity.Ref   `json:"actorId"`
	SubjectID  activity.Ref   `json:"subjectId"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload"`
	OccurredAt *time.Time     `json:"occurredAt"`

	LegacyUserID    activity.Ref   `json:"user_id"`
	LegacyTaskID    activity.Ref   `json:"task_id"`
	LegacyTaskData  map[string]any `json:"task_data"`
	LegacyAuthData  map[string]any `json:"auth_data"`
	LegacyTimestamp *time.Time     `json:"timestamp"`
}

// Event resolves aliases and returns the submission as an unsaved event.
func (r *SubmitRequest) Event() activity.Event {
	ev := activity.Event{
		Action:    r.Action,
		ActorID:   r.ActorID,
		SubjectID: r.SubjectID,
		Payload:   r.Payload,
	}
	if ev.ActorID.IsZero() {
		ev.ActorID = r.LegacyUserID
	}
	if ev.SubjectID.IsZero() {
		ev.SubjectID = r.LegacyTaskID
	}
	if ev.Payload == nil {
		ev.Payload = r.LegacyTaskData
	}
	if ev.Payload == nil {
		ev.Payload = r.LegacyAuthData
	}
	switch {
	case r.OccurredAt != nil:
		ev.OccurredAt = r.OccurredAt.UTC()
	case r.LegacyTimestamp != nil:
		ev.OccurredAt = r.LegacyTimestamp.UTC()
	}
	return ev
}

// SubmitResponse wraps the stored record.
type SubmitResponse struct {
	Message string         `json:"message"`
	Event   activity.Event `json:"event"`
}

// ListResponse carries every stored event, newest first.
type ListResponse struct {
	Events []activity.Event `json:"events"`
}

// ErrorResponse is returned for rejected submissions and store failures.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
