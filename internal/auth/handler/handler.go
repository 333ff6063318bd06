package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tasktrail/internal/auth/models"
	"tasktrail/internal/auth/service"
	"tasktrail/pkg/activity"
	dErrors "tasktrail/pkg/domain-errors"
	"tasktrail/pkg/platform/httputil"
	request "tasktrail/pkg/platform/middleware/request"
)

// Service defines the interface for auth operations.
type Service interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*service.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	ReportMalformed(ctx context.Context, action string, cause error)
}

// Handler serves registration, login and logout.
type Handler struct {
	auth        Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
	limit       func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit throttles register and login.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		if mw != nil {
			h.limit = mw
		}
	}
}

// New creates a Handler. requireAuth guards logout and me.
func New(auth Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler, opts ...Option) *Handler {
	h := &Handler{
		auth:        auth,
		logger:      logger,
		requireAuth: requireAuth,
		limit:       func(next http.Handler) http.Handler { return next },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.limit)
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid register request",
			"request_id", requestID,
			"error", err,
		)
		h.auth.ReportMalformed(ctx, activity.ActionRegisterValidationFailed, err)
		httputil.WriteError(w, err)
		return
	}

	user, err := h.auth.Register(ctx, req)
	if err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			httputil.WriteJSON(w, http.StatusBadRequest, models.ValidationErrorResponse{Errors: verrs})
			return
		}
		h.logger.ErrorContext(ctx, "registration failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Registration failed"})
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, models.RegisterResponse{
		Message: "User registered successfully",
		User:    models.ToUserResponse(user),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid login request",
			"request_id", requestID,
			"error", err,
		)
		h.auth.ReportMalformed(ctx, activity.ActionLoginValidationFailed, err)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.auth.Login(ctx, req)
	if err != nil {
		var verrs models.ValidationErrors
		if errors.As(err, &verrs) {
			httputil.WriteJSON(w, http.StatusBadRequest, models.ValidationErrorResponse{Errors: verrs})
			return
		}
		if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.logger.ErrorContext(ctx, "login failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.TokenResponse{
		AccessToken: res.Token,
		TokenType:   "bearer",
		ExpiresIn:   int(res.ExpiresIn.Seconds()),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.auth.Logout(ctx); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.MessageResponse{Message: "Successfully logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToUserResponse(user))
}
