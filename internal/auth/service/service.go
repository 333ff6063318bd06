// Package service implements registration, login and logout for the task API
// and reports each outcome to the activity log.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tasktrail/internal/auth/models"
	"tasktrail/internal/auth/password"
	jwttoken "tasktrail/internal/jwt_token"
	"tasktrail/pkg/activity"
	id "tasktrail/pkg/domain"
	dErrors "tasktrail/pkg/domain-errors"
	"tasktrail/pkg/platform/sentinel"
	"tasktrail/pkg/requestcontext"
)

type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, expiresIn time.Duration) (jwttoken.IssuedToken, error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) error
}

// ActivityEmitter records auth outcomes. It never fails the caller.
type ActivityEmitter interface {
	Emit(ctx context.Context, ev activity.Event)
}

type Config struct {
	TokenTTL time.Duration
}

type Service struct {
	users    UserStore
	tokens   TokenIssuer
	trl      RevocationList
	hasher   PasswordHasher
	activity ActivityEmitter
	logger   *slog.Logger
	cfg      Config
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

func New(
	users UserStore,
	tokens TokenIssuer,
	trl RevocationList,
	hasher PasswordHasher,
	emitter ActivityEmitter,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	s := &Service{
		users:    users,
		tokens:   tokens,
		trl:      trl,
		hasher:   hasher,
		activity: emitter,
		logger:   slog.Default(),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the request, creates the user and reports the outcome.
// Validation failures come back as a CodeValidation error wrapping
// models.ValidationErrors.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.Normalize()

	verrs := req.Check()
	if _, taken := verrs["email"]; !taken && req.Email != "" {
		_, err := s.users.FindByEmail(ctx, req.Email)
		switch {
		case err == nil:
			verrs.Add("email", "The email has already been taken.")
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, s.registerFailed(ctx, req.Email, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user"))
		}
	}
	if len(verrs) > 0 {
		return nil, s.rejectRegistration(ctx, req.Email, verrs)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.registerFailed(ctx, req.Email, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password"))
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           id.UserID(uuid.New()),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			verrs = models.ValidationErrors{}
			verrs.Add("email", "The email has already been taken.")
			return nil, s.rejectRegistration(ctx, req.Email, verrs)
		}
		return nil, s.registerFailed(ctx, req.Email, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user"))
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, activity.Event{
		Action:  activity.ActionRegisterSuccess,
		ActorID: activity.Ref(user.ID.String()),
		Payload: map[string]any{"user_id": user.ID.String(), "email": user.Email},
	})
	return user, nil
}

func (s *Service) rejectRegistration(ctx context.Context, email string, verrs models.ValidationErrors) error {
	s.emit(ctx, activity.Event{
		Action:  activity.ActionRegisterValidationFailed,
		ActorID: activity.UnknownActor,
		Payload: map[string]any{"email": email, "errors": verrs},
	})
	return dErrors.Wrap(verrs, dErrors.CodeValidation, "invalid registration")
}

// ReportMalformed records a register or login body that could not be decoded
// as the matching validation failure.
func (s *Service) ReportMalformed(ctx context.Context, action string, cause error) {
	verrs := models.ValidationErrors{}
	verrs.Add("body", cause.Error())
	s.emit(ctx, activity.Event{
		Action:  action,
		ActorID: activity.UnknownActor,
		Payload: map[string]any{"errors": verrs},
	})
}

func (s *Service) registerFailed(ctx context.Context, email string, err error) error {
	s.logger.ErrorContext(ctx, "registration failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, activity.Event{
		Action:  activity.ActionRegisterError,
		ActorID: activity.UnknownActor,
		Payload: map[string]any{"email": email, "error": err.Error()},
	})
	return err
}

// LoginResult is an issued access token.
type LoginResult struct {
	User      *models.User
	Token     string
	ExpiresIn time.Duration
}

// Login checks the credentials and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*LoginResult, error) {
	req.Normalize()
	if verrs := req.Check(); len(verrs) > 0 {
		s.emit(ctx, activity.Event{
			Action:  activity.ActionLoginValidationFailed,
			ActorID: activity.UnknownActor,
			Payload: map[string]any{"email": req.Email, "errors": verrs},
		})
		return nil, dErrors.Wrap(verrs, dErrors.CodeValidation, "invalid login")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if err == nil {
		err = s.hasher.Verify(req.Password, user.PasswordHash)
		if err != nil && !errors.Is(err, password.ErrMismatch) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "login failed",
			"request_id", requestcontext.RequestID(ctx),
		)
		s.emit(ctx, activity.Event{
			Action:  activity.ActionLoginFailed,
			ActorID: activity.UnknownActor,
			Payload: map[string]any{"email": req.Email},
		})
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	issued, err := s.tokens.GenerateAccessToken(user.ID, s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.emit(ctx, activity.Event{
		Action:  activity.ActionLoginSuccess,
		ActorID: activity.Ref(user.ID.String()),
		Payload: map[string]any{"email": user.Email},
	})
	return &LoginResult{User: user, Token: issued.Token, ExpiresIn: s.cfg.TokenTTL}, nil
}

// Logout revokes the caller's current token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context) error {
	userID := requestcontext.UserID(ctx)
	jti := requestcontext.TokenID(ctx)
	if userID.IsNil() || jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	ttl := requestcontext.TokenExpiry(ctx).Sub(s.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.trl.RevokeToken(ctx, jti, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}

	s.emit(ctx, activity.Event{
		Action:  activity.ActionLogout,
		ActorID: activity.Ref(userID.String()),
	})
	return nil
}

// Me returns the authenticated user.
func (s *Service) Me(ctx context.Context) (*models.User, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	return user, nil
}

// IsTokenRevoked adapts the revocation list for the auth middleware.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.trl.IsRevoked(ctx, jti)
}

func (s *Service) emit(ctx context.Context, ev activity.Event) {
	if s.activity == nil {
		return
	}
	s.activity.Emit(ctx, ev)
}
