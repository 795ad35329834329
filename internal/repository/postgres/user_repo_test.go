package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
)

var userCols = []string{"id", "username", "email", "pwd_hash", "pwd_salt", "created_at"}

func TestUserRepo_Create_OK_And_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	ctx := context.Background()
	u := &model.User{
		ID:        uuid.Must(uuid.NewV4()),
		Username:  "ana",
		Email:     "ana@example.com",
		PwdHash:   []byte("hash"),
		PwdSalt:   []byte("salt"),
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.Email, u.PwdHash, u.PwdSalt, u.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.Email, u.PwdHash, u.PwdSalt, u.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
}

func TestUserRepo_GetByEmail_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT id, username, email, pwd_hash, pwd_salt, created_at\s+FROM users WHERE email=\$1`).
		WithArgs("ana@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "ana", "ana@example.com", []byte("h"), []byte("s"), ts))

	u, err := r.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, "ana", u.Username)

	mock.ExpectQuery(`(?s)SELECT id, username, email, pwd_hash, pwd_salt, created_at\s+FROM users WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUserRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	ts := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT id, username, email, pwd_hash, pwd_salt, created_at\s+FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(id, "ana", "ana@example.com", []byte("h"), []byte("s"), ts))

	u, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", u.Email)
}
