package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrail/pkg/activity"
)

func decode(t *testing.T, body string) activity.Event {
	t.Helper()
	var req SubmitRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req.Event()
}

func TestSubmitRequest_Canonical(t *testing.T) {
	ev := decode(t, `{"actorId":7,"action":"task.created","subjectId":42,"payload":{"title":"x"},"occurredAt":"2024-05-01T12:00:00+02:00"}`)

	assert.Equal(t, "task.created", ev.Action)
	assert.Equal(t, activity.Ref("7"), ev.ActorID)
	assert.Equal(t, activity.Ref("42"), ev.SubjectID)
	assert.Equal(t, map[string]any{"title": "x"}, ev.Payload)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.Empty(t, ev.ID)
}

func TestSubmitRequest_LegacyAliases(t *testing.T) {
	t.Run("task log", func(t *testing.T) {
		ev := decode(t, `{"user_id":3,"task_id":9,"action":"Task Created","task_data":{"title":"y"},"timestamp":"2024-01-02T03:04:05Z"}`)
		assert.Equal(t, activity.Ref("3"), ev.ActorID)
		assert.Equal(t, activity.Ref("9"), ev.SubjectID)
		assert.Equal(t, map[string]any{"title": "y"}, ev.Payload)
		assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ev.OccurredAt)
	})

	t.Run("auth log", func(t *testing.T) {
		ev := decode(t, `{"user_id":0,"action":"login_failed","auth_data":{"email":"a@b.co"}}`)
		assert.Equal(t, activity.Ref("0"), ev.ActorID)
		assert.Equal(t, map[string]any{"email": "a@b.co"}, ev.Payload)
		assert.True(t, ev.OccurredAt.IsZero())
	})

	t.Run("canonical wins", func(t *testing.T) {
		ev := decode(t, `{"actorId":"u-1","user_id":"u-2","subjectId":"t-1","task_id":"t-2","payload":{"a":1},"task_data":{"b":2},"action":"x"}`)
		assert.Equal(t, activity.Ref("u-1"), ev.ActorID)
		assert.Equal(t, activity.Ref("t-1"), ev.SubjectID)
		assert.Equal(t, map[string]any{"a": float64(1)}, ev.Payload)
	})
}
