package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	authhandler "tasktrail/internal/auth/handler"
	"tasktrail/internal/auth/password"
	authservice "tasktrail/internal/auth/service"
	"tasktrail/internal/auth/store/revocation"
	"tasktrail/internal/auth/store/user"
	jwttoken "tasktrail/internal/jwt_token"
	"tasktrail/internal/platform/config"
	"tasktrail/internal/platform/httpserver"
	"tasktrail/internal/platform/logger"
	"tasktrail/internal/platform/metrics"
	"tasktrail/internal/platform/postgres"
	platformredis "tasktrail/internal/platform/redis"
	ratelimitmw "tasktrail/internal/ratelimit/middleware"
	"tasktrail/internal/ratelimit/store/bucket"
	taskhandler "tasktrail/internal/task/handler"
	taskservice "tasktrail/internal/task/service"
	taskstore "tasktrail/internal/task/store"
	httptransport "tasktrail/internal/transport/http"
	"tasktrail/pkg/activity/emitter"
	"tasktrail/pkg/platform/circuit"
	authmw "tasktrail/pkg/platform/middleware/auth"
)

const purgeInterval = 10 * time.Minute

// main wires the task API: stores, services, activity emitters and the HTTP
// router. Business logic lives in the internal service packages.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.FromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type authStores struct {
	users authservice.UserStore
	trl   authservice.RevocationList
	tasks taskservice.Store
	// purge is set when revocations live in Postgres and need sweeping.
	purge func(ctx context.Context) (int64, error)
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stores, closeStores, err := openStores(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	emitterMetrics := emitter.NewMetrics(reg)
	taskEmitter := newEmitter("task", cfg.Activity.TaskLogsURL(), cfg.Activity.TaskEventsEnabled, cfg.Activity, emitterMetrics, log)
	authEmitter := newEmitter("auth", cfg.Activity.AuthLogsURL(), cfg.Activity.AuthEventsEnabled, cfg.Activity, emitterMetrics, log)

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)
	authSvc := authservice.New(
		stores.users,
		jwtSvc,
		stores.trl,
		password.NewHasher(bcrypt.DefaultCost),
		authEmitter,
		authservice.Config{TokenTTL: cfg.TokenTTL},
		authservice.WithLogger(log),
	)
	taskSvc := taskservice.New(stores.tasks, taskEmitter, taskservice.WithLogger(log))
	requireAuth := authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtSvc), authSvc, log)

	var authOpts []authhandler.Option
	if cfg.RateLimit.Enabled() {
		limiter := ratelimitmw.New(bucket.NewInMemoryBucketStore(), cfg.RateLimit.Limit, cfg.RateLimit.Window, log,
			ratelimitmw.WithRegisterer(reg))
		authOpts = append(authOpts, authhandler.WithRateLimit(limiter.PerIP))
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Metrics:  metrics.New(reg, "server"),
		Gatherer: reg,
		API: []httptransport.Registrar{
			authhandler.New(authSvc, log, requireAuth, authOpts...),
			taskhandler.New(taskSvc, log, requireAuth),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting tasktrail",
			"addr", cfg.Addr,
			"task_events", cfg.Activity.TaskEventsEnabled,
			"auth_events", cfg.Activity.AuthEventsEnabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		taskEmitter.Close()
		authEmitter.Close()
		return err
	})
	if stores.purge != nil {
		g.Go(func() error {
			ticker := time.NewTicker(purgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					n, err := stores.purge(gctx)
					if err != nil {
						log.Warn("failed to purge expired revocations", "error", err)
						continue
					}
					log.Debug("purged expired revocations", "count", n)
				}
			}
		})
	}
	return g.Wait()
}

// openStores picks Postgres when DATABASE_URL is set and Redis for the
// revocation list when REDIS_URL is set; anything unset stays in memory.
func openStores(ctx context.Context, cfg config.Server, reg prometheus.Registerer, log *slog.Logger) (authStores, func(), error) {
	stores := authStores{
		users: user.New(),
		trl:   revocation.NewInMemoryTRL(time.Now),
		tasks: taskstore.New(),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores, closeAll, err
		}
		closers = append(closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db, postgres.ServerMigrations, log); err != nil {
			closeAll()
			return stores, func() {}, err
		}
		stores = postgresStores(db)
		log.Info("using postgres stores")
	}

	if cfg.Redis.URL != "" {
		rc, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return stores, func() {}, err
		}
		closers = append(closers, func() { _ = rc.Close() })
		latency := promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "tasktrail_token_revocation_check_ms",
			Help:    "Latency of revocation lookups in Redis, in milliseconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 25, 50},
		})
		stores.trl = revocation.NewRedisTRL(rc.Client, revocation.WithLatencyHistogram(latency))
		stores.purge = nil
		log.Info("using redis revocation list")
	}
	return stores, closeAll, nil
}

func postgresStores(db *sql.DB) authStores {
	trl := revocation.NewPostgresTRL(db)
	return authStores{
		users: user.NewPostgres(db),
		trl:   trl,
		tasks: taskstore.NewPostgres(db),
		purge: trl.PurgeExpired,
	}
}

func newEmitter(name, url string, enabled bool, cfg config.Activity, m *emitter.Metrics, log *slog.Logger) *emitter.Emitter {
	breaker := circuit.New("activity-"+name,
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown),
	)
	return emitter.New(
		emitter.Config{Name: name, URL: url, Enabled: enabled, Timeout: cfg.Timeout},
		emitter.WithLogger(log),
		emitter.WithMetrics(m),
		emitter.WithBreaker(breaker),
		emitter.WithAsyncBuffer(cfg.Buffer),
	)
}
