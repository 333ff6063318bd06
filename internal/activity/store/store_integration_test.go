//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tasktrail/pkg/activity"
	"tasktrail/pkg/testutil/containers"
)

// appendLister is the contract every backend honors.
type appendLister interface {
	Append(ctx context.Context, ev activity.Event) (activity.Event, error)
	ListAll(ctx context.Context) ([]activity.Event, error)
}

type BackendSuite struct {
	suite.Suite
	newStore func() appendLister
	reset    func()
	store    appendLister
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	suite.Run(t, &BackendSuite{
		newStore: func() appendLister { return NewPostgres(pg.DB) },
		reset: func() {
			if err := pg.Truncate(context.Background(), "activity_events"); err != nil {
				t.Fatalf("truncate: %v", err)
			}
		},
	})
}

func TestMongoStoreSuite(t *testing.T) {
	mc := containers.GetManager().GetMongo(t)
	db := mc.Database("task_logger_test")
	suite.Run(t, &BackendSuite{
		newStore: func() appendLister {
			st := NewMongo(db)
			if err := st.EnsureIndexes(context.Background()); err != nil {
				t.Fatalf("ensure indexes: %v", err)
			}
			return st
		},
		reset: func() {
			if err := db.Drop(context.Background()); err != nil {
				t.Fatalf("drop: %v", err)
			}
		},
	})
}

func (s *BackendSuite) SetupTest() {
	s.ctx = context.Background()
	s.reset()
	s.store = s.newStore()
}

func (s *BackendSuite) TestAppendRoundTrip() {
	occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stored, err := s.store.Append(s.ctx, activity.Event{
		Action:     "task.created",
		ActorID:    "7",
		SubjectID:  "42",
		Payload:    map[string]any{"title": "x"},
		OccurredAt: occurred,
	})
	s.Require().NoError(err)
	s.NotEmpty(stored.ID)

	events, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(stored.ID, events[0].ID)
	s.Equal("task.created", events[0].Action)
	s.Equal(activity.Ref("7"), events[0].ActorID)
	s.Equal(activity.Ref("42"), events[0].SubjectID)
	s.Equal("x", events[0].Payload["title"])
	s.True(occurred.Equal(events[0].OccurredAt))
}

func (s *BackendSuite) TestNewestFirstWithAppendOrderTies() {
	t1 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	older, err := s.store.Append(s.ctx, activity.Event{Action: "a", ActorID: "1", OccurredAt: t1})
	s.Require().NoError(err)
	newer, err := s.store.Append(s.ctx, activity.Event{Action: "b", ActorID: "1", OccurredAt: t2})
	s.Require().NoError(err)
	tieLater, err := s.store.Append(s.ctx, activity.Event{Action: "c", ActorID: "1", OccurredAt: t1})
	s.Require().NoError(err)

	events, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(newer.ID, events[0].ID)
	s.Equal(tieLater.ID, events[1].ID)
	s.Equal(older.ID, events[2].ID)
}

func (s *BackendSuite) TestDuplicatesAreDistinctRecords() {
	ev := activity.Event{Action: "login_success", ActorID: "5"}
	first, err := s.store.Append(s.ctx, ev)
	s.Require().NoError(err)
	second, err := s.store.Append(s.ctx, ev)
	s.Require().NoError(err)

	s.NotEqual(first.ID, second.ID)
	events, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *BackendSuite) TestEmptyListIsNotNil() {
	events, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.NotNil(events)
	s.Empty(events)
}
