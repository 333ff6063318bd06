package testutil

import (
	"net/http"
	"time"

	id "tasktrail/pkg/domain"
	"tasktrail/pkg/requestcontext"
)

// WithUserID puts the user on the request context the way RequireAuth would.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAuth adds the user and the token identity of an authenticated request.
func WithAuth(req *http.Request, userID id.UserID, jti string, expiresAt time.Time) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithToken(ctx, jti, expiresAt)
	return req.WithContext(ctx)
}
