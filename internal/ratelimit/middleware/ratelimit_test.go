package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"tasktrail/internal/ratelimit/models"
	"tasktrail/internal/ratelimit/store/bucket"
	pkgtestutil "tasktrail/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPerIP(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(bucket.NewInMemoryBucketStore(), 2, time.Minute, pkgtestutil.NopLogger(), WithRegisterer(reg))
	h := m.PerIP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1:1234").Code)
	rr := serve(h, "10.0.0.1:5678")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = serve(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later.","retry_after":60}`, rr.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected))

	assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2:1234").Code, "other clients unaffected")
}

func TestPerIP_StoreFailureFailsOpen(t *testing.T) {
	m := New(failingStore{}, 1, time.Minute, pkgtestutil.NopLogger())
	h := m.PerIP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusNoContent, serve(h, "10.0.0.1:1").Code)
}
