package httptransport

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	activityhandler "tasktrail/internal/activity/handler"
	activityservice "tasktrail/internal/activity/service"
	activitystore "tasktrail/internal/activity/store"
	authhandler "tasktrail/internal/auth/handler"
	authmodels "tasktrail/internal/auth/models"
	"tasktrail/internal/auth/password"
	authservice "tasktrail/internal/auth/service"
	"tasktrail/internal/auth/store/revocation"
	"tasktrail/internal/auth/store/user"
	jwttoken "tasktrail/internal/jwt_token"
	"tasktrail/internal/platform/metrics"
	ratelimitmw "tasktrail/internal/ratelimit/middleware"
	"tasktrail/internal/ratelimit/store/bucket"
	taskhandler "tasktrail/internal/task/handler"
	taskmodels "tasktrail/internal/task/models"
	taskservice "tasktrail/internal/task/service"
	taskstore "tasktrail/internal/task/store"
	"tasktrail/pkg/activity/emitter"
	authmw "tasktrail/pkg/platform/middleware/auth"
	"tasktrail/pkg/testutil"
)

// emitterTarget is where each channel sends, and whether it is on.
type emitterTarget struct {
	URL     string
	Enabled bool
}

// newAPI wires the task API the way cmd/server does, on in-memory stores.
func newAPI(t *testing.T, tasks, auth emitterTarget, authOpts ...authhandler.Option) chi.Router {
	t.Helper()
	logger := testutil.NopLogger()

	jwtSvc := jwttoken.NewJWTService("test-signing-key", "tasktrail")
	taskEmitter := emitter.New(emitter.Config{Name: "task", URL: tasks.URL, Enabled: tasks.Enabled, Timeout: 500 * time.Millisecond},
		emitter.WithLogger(logger))
	authEmitter := emitter.New(emitter.Config{Name: "auth", URL: auth.URL, Enabled: auth.Enabled, Timeout: 500 * time.Millisecond},
		emitter.WithLogger(logger))

	authSvc := authservice.New(
		user.New(),
		jwtSvc,
		revocation.NewInMemoryTRL(time.Now),
		password.NewHasher(bcrypt.MinCost),
		authEmitter,
		authservice.Config{TokenTTL: time.Hour},
		authservice.WithLogger(logger),
	)
	requireAuth := authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtSvc), authSvc, logger)
	taskSvc := taskservice.New(taskstore.New(), taskEmitter, taskservice.WithLogger(logger))

	reg := prometheus.NewRegistry()
	return NewRouter(RouterConfig{
		Logger:   logger,
		Metrics:  metrics.New(reg, "server"),
		Gatherer: reg,
		API: []Registrar{
			authhandler.New(authSvc, logger, requireAuth, authOpts...),
			taskhandler.New(taskSvc, logger, requireAuth),
		},
	})
}

// newIngestion starts a real ingestion service on an in-memory store.
func newIngestion(t *testing.T) (*httptest.Server, *activitystore.InMemoryStore) {
	t.Helper()
	st := activitystore.NewInMemoryStore()
	r := chi.NewRouter()
	activityhandler.New(activityservice.New(st), testutil.NopLogger(), "").Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

// closedURL points at a port nothing listens on.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func register(t *testing.T, api http.Handler, email string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(api, testutil.NewJSONRequest(t, http.MethodPost, "/api/register", authmodels.RegisterRequest{
		Name:                 "Jane",
		Email:                email,
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	}))
}

func login(t *testing.T, api http.Handler, email string) string {
	t.Helper()
	rr := testutil.DoRequest(api, testutil.NewJSONRequest(t, http.MethodPost, "/api/login", authmodels.LoginRequest{
		Email:    email,
		Password: "secret1",
	}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	return testutil.UnmarshalResponse[authmodels.TokenResponse](t, rr).AccessToken
}

func createTask(t *testing.T, api http.Handler, token, body string) *taskmodels.TaskEnvelope {
	t.Helper()
	req := testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPost, "/api/tasks", body), token)
	rr := testutil.DoRequest(api, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return testutil.UnmarshalResponse[taskmodels.TaskEnvelope](t, rr)
}

func TestRouter_Health(t *testing.T) {
	api := newAPI(t, emitterTarget{}, emitterTarget{})

	rr := testutil.DoRequest(api, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	rr = testutil.DoRequest(api, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "message", "API is working")

	rr = testutil.DoRequest(api, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "tasktrail_http_requests_total")
}

func TestScenario_TaskLifecycleIsLogged(t *testing.T) {
	ingest, events := newIngestion(t)
	api := newAPI(t,
		emitterTarget{URL: ingest.URL + "/api/logs", Enabled: true},
		emitterTarget{URL: ingest.URL + "/api/auth-logs", Enabled: true},
	)

	testutil.Scenario(t, "A: a task change lands in the activity log", func(t *testing.T) {
		var token, taskID string

		testutil.Given(t, "a registered, logged-in user", func(t *testing.T) {
			testutil.AssertStatus(t, register(t, api, "jane@example.com"), http.StatusCreated)
			token = login(t, api, "jane@example.com")
		})

		testutil.When(t, "the user creates, updates and deletes a task", func(t *testing.T) {
			created := createTask(t, api, token, `{"title":"Write report","status":"Pending"}`)
			assert.Equal(t, "Task created successfully", created.Message)
			taskID = created.Task.ID

			req := testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPatch, "/api/tasks/"+taskID, `{"status":"Completed"}`), token)
			rr := testutil.DoRequest(api, req)
			testutil.AssertStatus(t, rr, http.StatusOK)
			assert.Equal(t, "Completed", testutil.UnmarshalResponse[taskmodels.TaskEnvelope](t, rr).Task.Status)

			req = testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodDelete, "/api/tasks/"+taskID, ""), token)
			rr = testutil.DoRequest(api, req)
			testutil.AssertStatus(t, rr, http.StatusOK)
			testutil.AssertJSONContains(t, rr, "message", "Task deleted successfully")
		})

		testutil.Then(t, "the log holds each step newest first", func(t *testing.T) {
			list, err := events.ListAll(t.Context())
			require.NoError(t, err)

			actions := make([]string, 0, len(list))
			for _, ev := range list {
				actions = append(actions, ev.Action)
			}
			assert.Equal(t, []string{"task.deleted", "task.updated", "task.created", "login_success", "register_success"}, actions)
			assert.Equal(t, taskID, list[0].SubjectID.String())
			assert.Equal(t, "Completed", list[0].Payload["status"])
		})
	})
}

func TestScenario_UnreachableLoggerDoesNotFailRegistration(t *testing.T) {
	testutil.Scenario(t, "D: the ingestion service is down", func(t *testing.T) {
		api := newAPI(t, emitterTarget{}, emitterTarget{URL: closedURL(t), Enabled: true})

		testutil.When(t, "a user registers", func(t *testing.T) {
			rr := register(t, api, "down@example.com")

			testutil.Then(t, "registration still succeeds", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				resp := testutil.UnmarshalResponse[authmodels.RegisterResponse](t, rr)
				assert.Equal(t, "down@example.com", resp.User.Email)
			})
		})

		testutil.Then(t, "the user can log in", func(t *testing.T) {
			assert.NotEmpty(t, login(t, api, "down@example.com"))
		})
	})
}

func TestScenario_DisabledTaskChannelSendsNothing(t *testing.T) {
	var hits atomic.Int32
	counter := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(counter.Close)

	testutil.Scenario(t, "C: task events are disabled", func(t *testing.T) {
		api := newAPI(t, emitterTarget{URL: counter.URL, Enabled: false}, emitterTarget{URL: counter.URL, Enabled: false})
		testutil.AssertStatus(t, register(t, api, "quiet@example.com"), http.StatusCreated)
		token := login(t, api, "quiet@example.com")
		created := createTask(t, api, token, `{"title":"x","status":"Pending"}`)

		testutil.When(t, "the task is updated", func(t *testing.T) {
			req := testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPut, "/api/tasks/"+created.Task.ID, `{"title":"y"}`), token)
			rr := testutil.DoRequest(api, req)
			testutil.AssertStatus(t, rr, http.StatusOK)
		})

		testutil.Then(t, "no submission is attempted", func(t *testing.T) {
			assert.Zero(t, hits.Load())
		})
	})
}

func TestAuthFlow(t *testing.T) {
	api := newAPI(t, emitterTarget{}, emitterTarget{})
	testutil.AssertStatus(t, register(t, api, "flow@example.com"), http.StatusCreated)

	t.Run("duplicate email is a validation error", func(t *testing.T) {
		rr := register(t, api, "FLOW@example.com")
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		resp := testutil.UnmarshalResponse[authmodels.ValidationErrorResponse](t, rr)
		assert.Contains(t, resp.Errors["email"], "The email has already been taken.")
	})

	t.Run("mismatched confirmation is a validation error", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/register",
			`{"name":"A","email":"a@example.com","password":"secret1","password_confirmation":"other"}`))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/login",
			`{"email":"flow@example.com","password":"wrong-pass"}`))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("login issues a bearer token", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/login",
			`{"email":"flow@example.com","password":"secret1"}`))
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[authmodels.TokenResponse](t, rr)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, 3600, resp.ExpiresIn)
	})

	t.Run("logout revokes the token", func(t *testing.T) {
		token := login(t, api, "flow@example.com")

		rr := testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/me", nil), token))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "email", "flow@example.com")

		rr = testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodPost, "/api/logout", nil), token))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "message", "Successfully logged out")

		rr = testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/tasks", nil), token))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("tasks require a token", func(t *testing.T) {
		rr := testutil.DoRequest(api, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestTaskOwnership(t *testing.T) {
	api := newAPI(t, emitterTarget{}, emitterTarget{})
	testutil.AssertStatus(t, register(t, api, "owner@example.com"), http.StatusCreated)
	testutil.AssertStatus(t, register(t, api, "intruder@example.com"), http.StatusCreated)
	owner := login(t, api, "owner@example.com")
	intruder := login(t, api, "intruder@example.com")

	created := createTask(t, api, owner, `{"title":"private","description":"notes","status":"In Progress"}`)
	path := "/api/tasks/" + created.Task.ID

	t.Run("owner sees the task", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/tasks", nil), owner))
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[taskmodels.TaskListResponse](t, rr)
		require.Len(t, resp.Tasks, 1)
		require.NotNil(t, resp.Tasks[0].Description)
		assert.Equal(t, "notes", *resp.Tasks[0].Description)
	})

	t.Run("another user gets 404 for every verb", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			rr := testutil.DoRequest(api, testutil.WithBearer(testutil.NewRequestWithBody(t, method, path, `{"title":"mine now"}`), intruder))
			testutil.AssertStatus(t, rr, http.StatusNotFound)
			testutil.AssertJSONContains(t, rr, "message", "Task not found")
		}
	})

	t.Run("another user's list is empty", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/tasks", nil), intruder))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.JSONEq(t, `{"tasks":[]}`, rr.Body.String())
	})

	t.Run("malformed id is 404", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/api/tasks/42", nil), owner))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("null description clears it", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPatch, path, `{"description":null}`), owner))
		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[taskmodels.TaskEnvelope](t, rr)
		assert.Nil(t, resp.Task.Description)
		assert.Equal(t, "private", resp.Task.Title)
		assert.Equal(t, "Task updated successfully", resp.Message)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.WithBearer(testutil.NewRequestWithBody(t, http.MethodPost, "/api/tasks", `{"title":"x","status":"Done"}`), owner))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestAuthRateLimit(t *testing.T) {
	limiter := ratelimitmw.New(bucket.NewInMemoryBucketStore(), 2, time.Minute, testutil.NopLogger())
	api := newAPI(t, emitterTarget{}, emitterTarget{}, authhandler.WithRateLimit(limiter.PerIP))

	assert.Equal(t, http.StatusCreated, register(t, api, "rl@example.com").Code)
	assert.Equal(t, http.StatusBadRequest, register(t, api, "rl@example.com").Code)

	rr := register(t, api, "rl2@example.com")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limit_exceeded", (*testutil.UnmarshalResponse[map[string]any](t, rr))["error"])

	me := testutil.DoRequest(api, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, me.Code, "authenticated routes are not throttled")
}

func TestRejectedAuthRequestsAreLogged(t *testing.T) {
	ingest, events := newIngestion(t)
	api := newAPI(t, emitterTarget{}, emitterTarget{URL: ingest.URL + "/api/auth-logs", Enabled: true})

	t.Run("empty credentials are a validation error", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/login",
			`{"email":"","password":""}`))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		resp := testutil.UnmarshalResponse[authmodels.ValidationErrorResponse](t, rr)
		assert.Contains(t, resp.Errors, "email")
		assert.Contains(t, resp.Errors, "password")
	})

	t.Run("malformed register body", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/register", `{"name":`))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("malformed login body", func(t *testing.T) {
		rr := testutil.DoRequest(api, testutil.NewRequestWithBody(t, http.MethodPost, "/api/login", `[`))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	list, err := events.ListAll(t.Context())
	require.NoError(t, err)
	actions := make([]string, 0, len(list))
	for _, ev := range list {
		actions = append(actions, ev.Action)
		assert.Equal(t, "unknown", ev.ActorID.String())
	}
	assert.Equal(t, []string{"login_validation_failed", "register_validation_failed", "login_validation_failed"}, actions)
}
