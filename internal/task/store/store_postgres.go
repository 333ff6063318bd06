package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tasktrail/internal/task/models"
	id "tasktrail/pkg/domain"
	"tasktrail/pkg/platform/sentinel"
)

// PostgresTaskStore persists tasks in the tasks table.
type PostgresTaskStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

const taskColumns = `id, user_id, title, description, status, created_at, updated_at`

func (s *PostgresTaskStore) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID.String(),
		task.UserID.String(),
		task.Title,
		nullString(task.Description),
		task.Status.String(),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func (s *PostgresTaskStore) FindByOwner(ctx context.Context, owner id.UserID, taskID id.TaskID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, taskID.String(), owner.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *PostgresTaskStore) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks SET title = $3, description = $4, status = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		task.ID.String(),
		task.UserID.String(),
		task.Title,
		nullString(task.Description),
		task.Status.String(),
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresTaskStore) Delete(ctx context.Context, owner id.UserID, taskID id.TaskID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID.String(), owner.String())
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t             models.Task
		rawID, rawUID string
		desc          sql.NullString
		status        string
	)
	if err := row.Scan(&rawID, &rawUID, &t.Title, &desc, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	taskID, err := id.ParseTaskID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan task id: %w", err)
	}
	userID, err := id.ParseUserID(rawUID)
	if err != nil {
		return nil, fmt.Errorf("scan task owner: %w", err)
	}
	t.ID = taskID
	t.UserID = userID
	t.Status = id.TaskStatus(status)
	if desc.Valid {
		d := desc.String
		t.Description = &d
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
