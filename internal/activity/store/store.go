// Package store holds the append-only backends for activity events.
//
// Every backend assigns the event id, defaults OccurredAt to receipt time,
// and lists newest first with ties broken by the most recent append. None of
// them can update or delete a stored event.
package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"tasktrail/pkg/activity"
)

// prepare stamps the server-owned fields of a new record and detaches the
// payload from the caller. The payload is reduced to its JSON form, so every
// backend stores the same value the wire would carry.
func prepare(ev activity.Event, now func() time.Time) (activity.Event, error) {
	ev.ID = uuid.NewString()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()

	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return activity.Event{}, fmt.Errorf("marshal activity payload: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return activity.Event{}, fmt.Errorf("unmarshal activity payload: %w", err)
		}
		ev.Payload = payload
	}
	return ev, nil
}

// clonePayload deep-copies a JSON-shaped payload.
func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := maps.Clone(p)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		s := slices.Clone(t)
		for i := range s {
			s[i] = cloneValue(s[i])
		}
		return s
	default:
		return v
	}
}
