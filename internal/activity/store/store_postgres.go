package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tasktrail/pkg/activity"
	"tasktrail/pkg/platform/sentinel"
)

// PostgresStore persists events in the activity_events table. The seq column
// records append order for tie-breaking.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Append(ctx context.Context, ev activity.Event) (activity.Event, error) {
	ev, err := prepare(ev, s.now)
	if err != nil {
		return activity.Event{}, err
	}
	ev.OccurredAt = ev.OccurredAt.Truncate(time.Microsecond)

	var payload []byte
	if ev.Payload != nil {
		payload, err = json.Marshal(ev.Payload)
		if err != nil {
			return activity.Event{}, fmt.Errorf("marshal activity payload: %w", err)
		}
	}

	query := `
		INSERT INTO activity_events (id, action, actor_id, subject_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID,
		ev.Action,
		string(ev.ActorID),
		string(ev.SubjectID),
		payload,
		ev.OccurredAt,
	)
	if err != nil {
		return activity.Event{}, fmt.Errorf("insert activity event: %w: %w", sentinel.ErrUnavailable, err)
	}
	return ev, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]activity.Event, error) {
	query := `
		SELECT id, action, actor_id, subject_id, payload, occurred_at
		FROM activity_events
		ORDER BY occurred_at DESC, seq DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer rows.Close()

	events := []activity.Event{}
	for rows.Next() {
		var (
			ev        activity.Event
			actorID   string
			subjectID string
			payload   []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Action, &actorID, &subjectID, &payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		ev.ActorID = activity.Ref(actorID)
		ev.SubjectID = activity.Ref(subjectID)
		ev.OccurredAt = ev.OccurredAt.UTC()
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode activity payload %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w: %w", sentinel.ErrUnavailable, err)
	}
	return events, nil
}
