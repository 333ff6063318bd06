package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasktrail/internal/task/models"
	id "tasktrail/pkg/domain"
	dErrors "tasktrail/pkg/domain-errors"
	"tasktrail/pkg/platform/httputil"
	request "tasktrail/pkg/platform/middleware/request"
)

// Service defines the interface for task operations.
type Service interface {
	Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error)
	List(ctx context.Context) ([]*models.Task, error)
	Get(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	Update(ctx context.Context, taskID id.TaskID, req models.UpdateTaskRequest) (*models.Task, error)
	Delete(ctx context.Context, taskID id.TaskID) error
}

// Handler serves the authenticated task CRUD routes.
type Handler struct {
	tasks       Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

func New(tasks Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{tasks: tasks, logger: logger, requireAuth: requireAuth}
}

// Register registers the task routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := models.TaskListResponse{Tasks: make([]models.TaskResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, models.ToTaskResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.CreateTaskRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	task, err := h.tasks.Create(ctx, *req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, models.TaskEnvelope{
		Message: "Task created successfully",
		Task:    models.ToTaskResponse(task),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.TaskEnvelope{Task: models.ToTaskResponse(task)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateTaskRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	task, err := h.tasks.Update(ctx, taskID, *req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.TaskEnvelope{
		Message: "Task updated successfully",
		Task:    models.ToTaskResponse(task),
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), taskID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{Message: "Task deleted successfully"})
}

// taskID parses the path id. A malformed id cannot name a task, so it is a 404.
func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (id.TaskID, bool) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w)
		return id.TaskID{}, false
	}
	return taskID, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		writeNotFound(w)
		return
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "task request failed",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func writeNotFound(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusNotFound, models.MessageResponse{Message: "Task not found"})
}
