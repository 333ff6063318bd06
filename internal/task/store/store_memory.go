package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tasktrail/internal/task/models"
	id "tasktrail/pkg/domain"
	"tasktrail/pkg/platform/sentinel"
)

// InMemoryTaskStore keeps tasks in a map. Lookups are scoped to the owner;
// a task owned by someone else is reported as not found.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[id.TaskID]*models.Task
}

func New() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[id.TaskID]*models.Task)}
}

func (s *InMemoryTaskStore) Create(_ context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("task %s: %w", task.ID, sentinel.ErrConflict)
	}
	s.tasks[task.ID] = clone(task)
	return nil
}

// ListByOwner returns the owner's tasks, newest first.
func (s *InMemoryTaskStore) ListByOwner(_ context.Context, owner id.UserID) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, 0)
	for _, t := range s.tasks {
		if t.UserID == owner {
			out = append(out, clone(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryTaskStore) FindByOwner(_ context.Context, owner id.UserID, taskID id.TaskID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok || t.UserID != owner {
		return nil, sentinel.ErrNotFound
	}
	return clone(t), nil
}

func (s *InMemoryTaskStore) Update(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[task.ID]
	if !ok || existing.UserID != task.UserID {
		return sentinel.ErrNotFound
	}
	s.tasks[task.ID] = clone(task)
	return nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, owner id.UserID, taskID id.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.UserID != owner {
		return sentinel.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func clone(t *models.Task) *models.Task {
	cp := *t
	if t.Description != nil {
		d := *t.Description
		cp.Description = &d
	}
	return &cp
}
