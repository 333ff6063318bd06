package activity

import (
	"fmt"
	"strings"
)

// Field limits for submissions.
const (
	MaxActionLen = 128
	MaxRefLen    = 128
)

// FieldError describes one rejected field of a submission.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// FieldErrors is the full list of problems with a submission.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks the shape every stored event must have. When requireActor
// is false a missing actor is not an error; callers substitute UnknownActor.
func Validate(e Event, requireActor bool) FieldErrors {
	var errs FieldErrors

	action := strings.TrimSpace(e.Action)
	switch {
	case action == "":
		errs = append(errs, FieldError{"action", "required"})
	case len(action) > MaxActionLen:
		errs = append(errs, FieldError{"action", fmt.Sprintf("max length %d", MaxActionLen)})
	}

	switch {
	case e.ActorID.IsZero() && requireActor:
		errs = append(errs, FieldError{"actorId", "required"})
	case len(e.ActorID) > MaxRefLen:
		errs = append(errs, FieldError{"actorId", fmt.Sprintf("max length %d", MaxRefLen)})
	}

	if len(e.SubjectID) > MaxRefLen {
		errs = append(errs, FieldError{"subjectId", fmt.Sprintf("max length %d", MaxRefLen)})
	}

	return errs
}

// Normalize trims the action and fills the actor sentinel for auth events.
func Normalize(e Event, defaultActor bool) Event {
	e.Action = strings.TrimSpace(e.Action)
	if defaultActor && e.ActorID.IsZero() {
		e.ActorID = UnknownActor
	}
	return e
}
