package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var taskCols = []string{"id", "owner_id", "title", "body", "completed", "sync_status", "retry_count", "last_sync_attempt", "origin_id", "created_at", "updated_at"}

func sampleTask(owner uuid.UUID) *model.Task {
	now := time.Now().UTC()
	return &model.Task{
		ID:         uuid.Must(uuid.NewV4()),
		OwnerID:    owner,
		Title:      "t",
		Body:       "b",
		SyncStatus: model.TaskSynced,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestTaskRepo_Create_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	tk := sampleTask(uuid.Must(uuid.NewV4()))

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(tk.ID, tk.OwnerID, tk.Title, tk.Body, tk.Completed, tk.SyncStatus,
			tk.RetryCount, tk.LastSyncAttempt, tk.OriginID, tk.CreatedAt, tk.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Create(ctx, tk))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Create_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	tk := sampleTask(uuid.Must(uuid.NewV4()))

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(tk.ID, tk.OwnerID, tk.Title, tk.Body, tk.Completed, tk.SyncStatus,
			tk.RetryCount, tk.LastSyncAttempt, tk.OriginID, tk.CreatedAt, tk.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	require.ErrorIs(t, r.Create(ctx, tk), errs.ErrAlreadyExists)
}

func TestTaskRepo_Get_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	owner := uuid.Must(uuid.NewV4())
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(taskCols).
			AddRow(id, owner, "t", "b", false, model.TaskSynced, 0, ts, "c-1", ts, ts))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, owner, got.OwnerID)
	require.Equal(t, "c-1", got.OriginID)

	mock.ExpectQuery(`SELECT .+ FROM tasks WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_List_WithCompletedFilter(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	owner := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()
	completed := true

	mock.ExpectQuery(`(?s)SELECT .+FROM tasks\s+WHERE owner_id=\$1 AND \(\$2::boolean IS NULL OR completed=\$2\)\s+ORDER BY created_at DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs(owner, &completed, 10, 0).
		WillReturnRows(pgxmock.NewRows(taskCols).
			AddRow(uuid.Must(uuid.NewV4()), owner, "t", "b", true, model.TaskSynced, 0, ts, "", ts, ts))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks WHERE owner_id=\$1 AND \(\$2::boolean IS NULL OR completed=\$2\)`).
		WithArgs(owner, &completed).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	out, total, err := r.List(ctx, owner, repository.TaskFilter{Completed: &completed, Limit: 10, Offset: 0})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, total)
	require.True(t, out[0].Completed)
}

func TestTaskRepo_List_NoFilter(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`(?s)SELECT .+FROM tasks\s+WHERE owner_id=\$1`).
		WithArgs(owner, (*bool)(nil), 50, 0).
		WillReturnRows(pgxmock.NewRows(taskCols))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM tasks`).
		WithArgs(owner, (*bool)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	out, total, err := r.List(ctx, owner, repository.TaskFilter{Limit: 50, Offset: 0})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, total)
}

func TestTaskRepo_Update_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	tk := sampleTask(uuid.Must(uuid.NewV4()))

	mock.ExpectExec(`(?s)UPDATE tasks\s+SET title=\$2`).
		WithArgs(tk.ID, tk.Title, tk.Body, tk.Completed, tk.SyncStatus,
			tk.RetryCount, tk.LastSyncAttempt, tk.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(ctx, tk))

	mock.ExpectExec(`(?s)UPDATE tasks\s+SET title=\$2`).
		WithArgs(tk.ID, tk.Title, tk.Body, tk.Completed, tk.SyncStatus,
			tk.RetryCount, tk.LastSyncAttempt, tk.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(ctx, tk), errs.ErrNotFound)
}

func TestTaskRepo_Delete_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM tasks WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, id))

	mock.ExpectExec(`DELETE FROM tasks WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(ctx, id), errs.ErrNotFound)
}

func TestTaskRepo_Stats(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	ctx := context.Background()
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\),`).
		WithArgs(owner).
		WillReturnRows(pgxmock.NewRows([]string{"total", "completed", "pending", "failed", "synced"}).
			AddRow(5, 2, 1, 0, 4))

	st, err := r.Stats(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, model.TaskStats{Total: 5, Completed: 2, Pending: 1, Failed: 0, Synced: 4}, st)
}

func TestTaskRepo_List_QueryErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`(?s)SELECT .+FROM tasks\s+WHERE owner_id=\$1`).
		WithArgs(owner, (*bool)(nil), 10, 0).
		WillReturnError(errors.New("q-fail"))

	_, _, err := r.List(ctx, owner, repository.TaskFilter{Limit: 10})
	require.Error(t, err)
}
