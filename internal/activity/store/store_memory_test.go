package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktrail/pkg/activity"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	receipt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Append assigns id and receipt time", func(t *testing.T) {
		store := NewInMemoryStore().WithClock(func() time.Time { return receipt })

		got, err := store.Append(ctx, activity.Event{ID: "client-chosen", Action: "task.created", ActorID: "7"})
		require.NoError(t, err)

		_, err = uuid.Parse(got.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "client-chosen", got.ID)
		assert.Equal(t, receipt, got.OccurredAt)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Append keeps submitted time", func(t *testing.T) {
		store := NewInMemoryStore()
		at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600))

		got, err := store.Append(ctx, activity.Event{Action: "x", ActorID: "7", OccurredAt: at})
		require.NoError(t, err)
		assert.True(t, got.OccurredAt.Equal(at))
		assert.Equal(t, time.UTC, got.OccurredAt.Location())
	})

	t.Run("duplicate submissions produce two records", func(t *testing.T) {
		store := NewInMemoryStore()
		ev := activity.Event{Action: "login_success", ActorID: "7", OccurredAt: receipt}

		first, err := store.Append(ctx, ev)
		require.NoError(t, err)
		second, err := store.Append(ctx, ev)
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("ListAll is newest first with later appends winning ties", func(t *testing.T) {
		store := NewInMemoryStore()
		t1 := receipt
		t2 := receipt.Add(time.Minute)

		older, _ := store.Append(ctx, activity.Event{Action: "a", ActorID: "1", OccurredAt: t1})
		newer, _ := store.Append(ctx, activity.Event{Action: "b", ActorID: "1", OccurredAt: t2})
		tieFirst, _ := store.Append(ctx, activity.Event{Action: "c", ActorID: "1", OccurredAt: t1})

		all, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{newer.ID, tieFirst.ID, older.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	})

	t.Run("stored events cannot be mutated through returned values", func(t *testing.T) {
		store := NewInMemoryStore()
		payload := map[string]any{"title": "x"}
		got, err := store.Append(ctx, activity.Event{Action: "a", ActorID: "1", Payload: payload})
		require.NoError(t, err)

		payload["title"] = "changed"
		got.Payload["title"] = "changed too"
		all, _ := store.ListAll(ctx)
		all[0].Payload["title"] = "and again"

		all, _ = store.ListAll(ctx)
		assert.Equal(t, "x", all[0].Payload["title"])
	})

	t.Run("nested payload values are detached too", func(t *testing.T) {
		store := NewInMemoryStore()
		nested := map[string]any{"status": "Pending"}
		tags := []any{"a", map[string]any{"k": "v"}}
		got, err := store.Append(ctx, activity.Event{Action: "a", ActorID: "1", Payload: map[string]any{
			"task": nested,
			"tags": tags,
		}})
		require.NoError(t, err)

		nested["status"] = "Completed"
		tags[1].(map[string]any)["k"] = "changed"
		got.Payload["task"].(map[string]any)["status"] = "Completed"

		all, _ := store.ListAll(ctx)
		all[0].Payload["tags"].([]any)[1].(map[string]any)["k"] = "changed again"

		all, _ = store.ListAll(ctx)
		assert.Equal(t, map[string]any{"status": "Pending"}, all[0].Payload["task"])
		assert.Equal(t, []any{"a", map[string]any{"k": "v"}}, all[0].Payload["tags"])
	})

	t.Run("payload that cannot be encoded is rejected", func(t *testing.T) {
		store := NewInMemoryStore()
		_, err := store.Append(ctx, activity.Event{Action: "a", ActorID: "1", Payload: map[string]any{"ch": make(chan int)}})
		require.Error(t, err)
		assert.Zero(t, store.Len())
	})

	t.Run("empty store lists an empty slice", func(t *testing.T) {
		all, err := NewInMemoryStore().ListAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, activity.Event{Action: "task.updated", ActorID: "1"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, store.Len())
}
