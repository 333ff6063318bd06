// Package service implements owner-scoped task CRUD and reports each change
// to the activity log once it is committed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/task/models"
	"tasktrail/pkg/activity"
	id "tasktrail/pkg/domain"
	dErrors "tasktrail/pkg/domain-errors"
	"tasktrail/pkg/platform/sentinel"
	"tasktrail/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, task *models.Task) error
	ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Task, error)
	FindByOwner(ctx context.Context, owner id.UserID, taskID id.TaskID) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, owner id.UserID, taskID id.TaskID) error
}

// ActivityEmitter records task changes. It never fails the caller.
type ActivityEmitter interface {
	Emit(ctx context.Context, ev activity.Event)
}

// ErrTaskNotFound is returned for missing tasks and tasks owned by someone else.
var ErrTaskNotFound = dErrors.New(dErrors.CodeNotFound, "Task not found")

type Service struct {
	store    Store
	activity ActivityEmitter
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(store Store, emitter ActivityEmitter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		activity: emitter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.timestamp(ctx)
	task := &models.Task{
		ID:          id.TaskID(uuid.New()),
		UserID:      owner,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.ParsedStatus(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create task")
	}

	s.logger.InfoContext(ctx, "task created",
		"task_id", task.ID.String(),
		"user_id", owner.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitChange(ctx, activity.ActionTaskCreated, task)
	return task, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Task, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tasks")
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}

func (s *Service) Get(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, owner, taskID)
}

// Update applies a partial update. Only fields present in the request change.
func (s *Service) Update(ctx context.Context, taskID id.TaskID, req models.UpdateTaskRequest) (*models.Task, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	current, err := s.find(ctx, owner, taskID)
	if err != nil {
		return nil, err
	}

	updated := req.Patch().Apply(*current)
	updated.UpdatedAt = s.timestamp(ctx)
	if err := s.store.Update(ctx, &updated); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update task")
	}

	s.emitChange(ctx, activity.ActionTaskUpdated, &updated)
	return &updated, nil
}

// Delete removes the task. The emitted snapshot is the state before deletion.
func (s *Service) Delete(ctx context.Context, taskID id.TaskID) error {
	owner, err := caller(ctx)
	if err != nil {
		return err
	}
	current, err := s.find(ctx, owner, taskID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, owner, taskID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrTaskNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete task")
	}

	s.emitChange(ctx, activity.ActionTaskDeleted, current)
	return nil
}

func (s *Service) find(ctx context.Context, owner id.UserID, taskID id.TaskID) (*models.Task, error) {
	task, err := s.store.FindByOwner(ctx, owner, taskID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load task")
	}
	return task, nil
}

func (s *Service) emitChange(ctx context.Context, action string, task *models.Task) {
	if s.activity == nil {
		return
	}
	s.activity.Emit(ctx, activity.Event{
		Action:    action,
		ActorID:   activity.Ref(task.UserID.String()),
		SubjectID: activity.Ref(task.ID.String()),
		Payload:   task.Snapshot(),
	})
}

// timestamp prefers the injected clock, then the request's start time.
func (s *Service) timestamp(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return requestcontext.Now(ctx).UTC()
}

func caller(ctx context.Context) (id.UserID, error) {
	owner := requestcontext.UserID(ctx)
	if owner.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return owner, nil
}
