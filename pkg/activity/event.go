// Package activity defines the ActivityEvent shape shared by the emitter in
// the task API and the ingestion service that stores events.
package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UnknownActor stands in for the actor of auth events submitted before the
// caller has an identity (failed registration, failed login).
const UnknownActor Ref = "unknown"

// Actions emitted by the task API. The ingestion service accepts any
// non-empty action; these are the ones this repository produces.
const (
	ActionRegisterSuccess          = "register_success"
	ActionRegisterValidationFailed = "register_validation_failed"
	ActionRegisterError            = "register_error"
	ActionLoginSuccess             = "login_success"
	ActionLoginValidationFailed    = "login_validation_failed"
	ActionLoginFailed              = "login_failed"
	ActionLogout                   = "logout"

	ActionTaskCreated = "task.created"
	ActionTaskUpdated = "task.updated"
	ActionTaskDeleted = "task.deleted"
)

// Event is one immutable record of a notable action in the task API.
// ID and OccurredAt are assigned by the ingestion service when absent.
type Event struct {
	ID         string         `json:"id,omitempty"`
	Action     string         `json:"action"`
	ActorID    Ref            `json:"actorId,omitempty"`
	SubjectID  Ref            `json:"subjectId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Ref identifies a user or resource in another service. Integer-keyed and
// UUID-keyed producers share the field, so decoding accepts a JSON string or
// number and always yields the textual form.
type Ref string

func (r Ref) String() string { return string(r) }

func (r Ref) IsZero() bool { return r == "" }

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*r = Ref(strconv.FormatInt(i, 10))
		return nil
	}
	*r = Ref(n.String())
	return nil
}
