package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasktrail/pkg/activity"
	"tasktrail/pkg/platform/sentinel"
)

// MongoCollection is the collection events are written to.
const MongoCollection = "activity_events"

// MongoStore persists events as documents. Seq is an ObjectID minted at
// append time, so sorting on it approximates append order.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

type mongoEvent struct {
	ID         string             `bson:"_id"`
	Seq        primitive.ObjectID `bson:"seq"`
	Action     string             `bson:"action"`
	ActorID    string             `bson:"actor_id,omitempty"`
	SubjectID  string             `bson:"subject_id,omitempty"`
	Payload    bson.M             `bson:"payload,omitempty"`
	OccurredAt time.Time          `bson:"occurred_at"`
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(MongoCollection), now: time.Now}
}

// EnsureIndexes creates the listing index. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "occurred_at", Value: -1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, ev activity.Event) (activity.Event, error) {
	ev, err := prepare(ev, s.now)
	if err != nil {
		return activity.Event{}, err
	}
	ev.OccurredAt = ev.OccurredAt.Truncate(time.Millisecond)
	doc := mongoEvent{
		ID:         ev.ID,
		Seq:        primitive.NewObjectID(),
		Action:     ev.Action,
		ActorID:    string(ev.ActorID),
		SubjectID:  string(ev.SubjectID),
		Payload:    ev.Payload,
		OccurredAt: ev.OccurredAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return activity.Event{}, fmt.Errorf("insert activity event: %w: %w", sentinel.ErrUnavailable, err)
	}
	return ev, nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]activity.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "seq", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w: %w", sentinel.ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	events := []activity.Event{}
	for cur.Next(ctx) {
		var doc mongoEvent
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode activity event: %w", err)
		}
		events = append(events, activity.Event{
			ID:         doc.ID,
			Action:     doc.Action,
			ActorID:    activity.Ref(doc.ActorID),
			SubjectID:  activity.Ref(doc.SubjectID),
			Payload:    doc.Payload,
			OccurredAt: doc.OccurredAt.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity events: %w: %w", sentinel.ErrUnavailable, err)
	}
	return events, nil
}
