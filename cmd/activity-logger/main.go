package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tasktrail/internal/activity/handler"
	activitymetrics "tasktrail/internal/activity/metrics"
	"tasktrail/internal/activity/service"
	"tasktrail/internal/activity/store"
	"tasktrail/internal/activity/stream"
	"tasktrail/internal/platform/config"
	"tasktrail/internal/platform/httpserver"
	"tasktrail/internal/platform/logger"
	"tasktrail/internal/platform/metrics"
	platformmongo "tasktrail/internal/platform/mongo"
	"tasktrail/internal/platform/postgres"
)

// main runs the activity ingestion service: it stores submitted events and
// lists them, optionally mirroring each one to Kafka.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.ActivityLoggerFromEnv()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("activity logger exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ActivityLogger, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	m := activitymetrics.New(reg)
	opts := []service.Option{service.WithMetrics(m), service.WithLogger(log)}

	var mirror *stream.Kafka
	if cfg.Kafka.Enabled() {
		mirror, err = stream.NewKafka(stream.Config{
			Brokers:            cfg.Kafka.Brokers,
			Topic:              cfg.Kafka.Topic,
			MaxBufferedRecords: cfg.Kafka.MaxBuffered,
		}, log)
		if err != nil {
			return err
		}
		mirror.OnError(m.IncrementStreamFailures)
		if err := mirror.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("could not ensure activity topic", "topic", mirror.Topic(), "error", err)
		}
		opts = append(opts, service.WithStream(mirror))
		log.Info("mirroring activity events to kafka", "topic", mirror.Topic())
	}

	svc := service.New(st, opts...)

	r := chi.NewRouter()
	r.Use(metrics.New(reg, "activity-logger").Middleware)
	handler.New(svc, log, cfg.ReadToken).Register(r)
	r.Handle("/metrics", metrics.Handler(reg))

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting activity logger", "addr", cfg.Addr, "store", cfg.Store)
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
		if mirror != nil {
			if cerr := mirror.Close(shutdownCtx); cerr != nil {
				log.Warn("kafka close failed", "error", cerr)
			}
		}
		return err
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.ActivityLogger, log *slog.Logger) (service.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return store.NewInMemoryStore(), func() {}, nil

	case config.StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("ACTIVITY_DATABASE_URL is required for the postgres store")
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db, postgres.ActivityMigrations, log); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store.NewPostgres(db), func() { _ = db.Close() }, nil

	case config.StoreMongo:
		client, err := platformmongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		ms := store.NewMongo(client.Database(cfg.MongoDB))
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return ms, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown ACTIVITY_STORE %q", cfg.Store)
	}
}
