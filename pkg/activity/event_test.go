package activity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Ref
	}{
		{"integer", `7`, "7"},
		{"string", `"7f1c"`, "7f1c"},
		{"null", `null`, ""},
		{"large integer", `9007199254740993`, "9007199254740993"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Ref
			require.NoError(t, json.Unmarshal([]byte(tt.in), &r))
			assert.Equal(t, tt.want, r)
		})
	}

	t.Run("rejects objects", func(t *testing.T) {
		var r Ref
		assert.Error(t, json.Unmarshal([]byte(`{"id":1}`), &r))
	})
}

func TestEvent_DecodesSubmission(t *testing.T) {
	body := `{"actorId":7,"action":"task.created","subjectId":42,"payload":{"title":"x"}}`

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(body), &ev))

	assert.Equal(t, Ref("7"), ev.ActorID)
	assert.Equal(t, Ref("42"), ev.SubjectID)
	assert.Equal(t, "task.created", ev.Action)
	assert.Equal(t, "x", ev.Payload["title"])
	assert.True(t, ev.OccurredAt.IsZero())
}

func TestEvent_EncodesCamelCase(t *testing.T) {
	ev := Event{
		ID:         "e1",
		Action:     ActionTaskDeleted,
		ActorID:    "u1",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)

	s := string(b)
	assert.Contains(t, s, `"actorId":"u1"`)
	assert.Contains(t, s, `"occurredAt":"2024-01-01T00:00:00Z"`)
	assert.NotContains(t, s, "subjectId", "absent subject is omitted")
}

func TestValidate(t *testing.T) {
	t.Run("requires action", func(t *testing.T) {
		errs := Validate(Event{ActorID: "1"}, true)
		require.Len(t, errs, 1)
		assert.Equal(t, "action", errs[0].Field)
	})

	t.Run("whitespace action is missing", func(t *testing.T) {
		errs := Validate(Event{Action: "   ", ActorID: "1"}, true)
		require.Len(t, errs, 1)
	})

	t.Run("requires actor for task logs", func(t *testing.T) {
		errs := Validate(Event{Action: ActionTaskCreated}, true)
		require.Len(t, errs, 1)
		assert.Equal(t, "actorId", errs[0].Field)
	})

	t.Run("auth logs tolerate missing actor", func(t *testing.T) {
		assert.Empty(t, Validate(Event{Action: ActionLoginFailed}, false))
	})

	t.Run("caps lengths", func(t *testing.T) {
		errs := Validate(Event{
			Action:    strings.Repeat("a", MaxActionLen+1),
			ActorID:   Ref(strings.Repeat("b", MaxRefLen+1)),
			SubjectID: Ref(strings.Repeat("c", MaxRefLen+1)),
		}, true)
		assert.Len(t, errs, 3)
		assert.Contains(t, errs.Error(), "max length")
	})
}

func TestNormalize(t *testing.T) {
	ev := Normalize(Event{Action: "  login_failed "}, true)
	assert.Equal(t, ActionLoginFailed, ev.Action)
	assert.Equal(t, UnknownActor, ev.ActorID)

	ev = Normalize(Event{Action: ActionTaskCreated}, false)
	assert.True(t, ev.ActorID.IsZero())
}
