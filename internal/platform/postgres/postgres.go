// Package postgres opens database/sql pools on lib/pq and applies the
// embedded goose migrations for each service.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/server/*.sql migrations/activity/*.sql
var embedMigrations embed.FS

// MigrationSet names a folder of migrations and the goose version table
// tracking it. Both services may share one database.
type MigrationSet struct {
	Dir   string
	Table string
}

var (
	ServerMigrations   = MigrationSet{Dir: "migrations/server", Table: "goose_server_version"}
	ActivityMigrations = MigrationSet{Dir: "migrations/activity", Table: "goose_activity_version"}
)

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Open connects to url and waits for the database to answer a ping.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Attempts(5),
		retry.LastErrorOnly(true),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending migration in set.
func Migrate(ctx context.Context, db *sql.DB, set MigrationSet, logger *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	logger.InfoContext(ctx, "running migrations", "dir", set.Dir)
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName(set.Table)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, set.Dir); err != nil {
		return fmt.Errorf("unable to run migrations: %w", err)
	}
	return nil
}
