package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskColumns = `id, owner_id, title, body, completed, sync_status, retry_count, last_sync_attempt, origin_id, created_at, updated_at`

func scanTask(row pgx.Row, t *model.Task) error {
	return row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Body, &t.Completed,
		&t.SyncStatus, &t.RetryCount, &t.LastSyncAttempt, &t.OriginID,
		&t.CreatedAt, &t.UpdatedAt)
}

// Create inserts a fully populated task row.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	const q = `
INSERT INTO tasks (id, owner_id, title, body, completed, sync_status, retry_count, last_sync_attempt, origin_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.OwnerID, t.Title, t.Body, t.Completed, t.SyncStatus,
		t.RetryCount, t.LastSyncAttempt, t.OriginID, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a task by id.
func (r *TaskRepo) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1`
	var t model.Task
	if err := scanTask(r.db.Pool.QueryRow(ctx, q, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List returns an owner's tasks newest first with the total count.
// A nil completed filter matches both states via the NULL-coalescing guard.
func (r *TaskRepo) List(ctx context.Context, ownerID uuid.UUID, f repository.TaskFilter) ([]model.Task, int, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE owner_id=$1 AND ($2::boolean IS NULL OR completed=$2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	rows, err := r.db.Pool.Query(ctx, q, ownerID, f.Completed, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err = scanTask(rows, &t); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	const cq = `SELECT COUNT(*) FROM tasks WHERE owner_id=$1 AND ($2::boolean IS NULL OR completed=$2)`
	var total int
	if err = r.db.Pool.QueryRow(ctx, cq, ownerID, f.Completed).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update overwrites the mutable fields of an existing task.
func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	const q = `
UPDATE tasks
SET title=$2, body=$3, completed=$4, sync_status=$5, retry_count=$6, last_sync_attempt=$7, updated_at=$8
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.Title, t.Body, t.Completed, t.SyncStatus,
		t.RetryCount, t.LastSyncAttempt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a task by id.
func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM tasks WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Stats aggregates an owner's task counts in a single scan.
func (r *TaskRepo) Stats(ctx context.Context, ownerID uuid.UUID) (model.TaskStats, error) {
	const q = `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE completed),
  COUNT(*) FILTER (WHERE sync_status='pending'),
  COUNT(*) FILTER (WHERE sync_status='failed'),
  COUNT(*) FILTER (WHERE sync_status='synced')
FROM tasks WHERE owner_id=$1`
	var st model.TaskStats
	err := r.db.Pool.QueryRow(ctx, q, ownerID).
		Scan(&st.Total, &st.Completed, &st.Pending, &st.Failed, &st.Synced)
	return st, err
}
