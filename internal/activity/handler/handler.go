package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tasktrail/internal/activity/models"
	"tasktrail/pkg/activity"
	dErrors "tasktrail/pkg/domain-errors"
	"tasktrail/pkg/platform/httputil"
	"tasktrail/pkg/platform/middleware/admin"
	request "tasktrail/pkg/platform/middleware/request"
)

// Service defines the ingestion operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, ev activity.Event) (activity.Event, error)
	SubmitAuth(ctx context.Context, ev activity.Event) (activity.Event, error)
	List(ctx context.Context) ([]activity.Event, error)
}

// Handler serves the ingestion endpoints.
type Handler struct {
	service   Service
	logger    *slog.Logger
	readToken string
}

// New creates a Handler. An empty readToken leaves GET /api/logs open.
func New(service Service, logger *slog.Logger, readToken string) *Handler {
	return &Handler{service: service, logger: logger, readToken: readToken}
}

// Register mounts the ingestion routes on r.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(request.Recovery(h.logger))
	api.Use(request.RequestID)
	api.Use(request.Logger(h.logger))
	api.Use(chimw.Timeout(10 * time.Second))
	api.Use(request.ContentTypeJSON)

	api.Post("/logs", h.handleSubmit)
	api.Post("/auth-logs", h.handleSubmitAuth)
	api.With(admin.RequireAdminToken(h.readToken, h.logger)).Get("/logs", h.handleList)

	r.Mount("/api", api)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.Submit, "Log created successfully", "Error creating log")
}

func (h *Handler) handleSubmitAuth(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.SubmitAuth, "Auth log created successfully", "Error creating auth log")
}

type submitFunc func(ctx context.Context, ev activity.Event) (activity.Event, error)

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, fn submitFunc, okMsg, errMsg string) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req models.SubmitRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid activity submission",
			"request_id", requestID,
			"error", err,
		)
		writeFailure(w, http.StatusBadRequest, errMsg, err)
		return
	}

	stored, err := fn(ctx, req.Event())
	if err != nil {
		status := dErrors.ToHTTPStatus(dErrors.CodeOf(err))
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "failed to store activity event",
				"request_id", requestID,
				"error", err,
			)
		} else {
			h.logger.WarnContext(ctx, "rejected activity submission",
				"request_id", requestID,
				"error", err,
			)
		}
		writeFailure(w, status, errMsg, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.SubmitResponse{Message: okMsg, Event: stored})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list activity events",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		writeFailure(w, http.StatusInternalServerError, "Error fetching logs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Events: events})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeFailure(w http.ResponseWriter, status int, message string, err error) {
	httputil.WriteJSON(w, status, models.ErrorResponse{Message: message, Error: err.Error()})
}
