package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/edrozo/tasksync/internal/limiter"
	"github.com/edrozo/tasksync/internal/repository/memory"
	"github.com/edrozo/tasksync/internal/service"
)

var testKey = []byte("test-signing-key")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, _ := newTestServerWithTasks(t)
	return s
}

// newTestServerWithTasks also returns the task service so tests can seed
// records without going through the API.
func newTestServerWithTasks(t *testing.T) (*Server, *service.TaskServiceImpl) {
	t.Helper()
	authSvc := service.NewAuthService(memory.NewUserStore(), testKey, time.Hour, limiter.Unlimited{})
	taskSvc := service.NewTaskService(memory.NewTaskStore())
	syncSvc := service.NewReconciler(memory.NewLedgerStore(), taskSvc, 0, nil)
	return New(authSvc, taskSvc, syncSvc, testKey, nil), taskSvc
}

// ownerOf resolves the authenticated user id behind a token.
func ownerOf(t *testing.T, s *Server, token string) uuid.UUID {
	t.Helper()
	w := doJSON(t, s, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &me))
	id, err := uuid.FromString(me.User.ID)
	require.NoError(t, err)
	return id
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

type envelopeOut struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination *struct {
		Total   int  `json:"total"`
		Limit   int  `json:"limit"`
		Offset  int  `json:"offset"`
		HasMore bool `json:"hasMore"`
	} `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelopeOut {
	t.Helper()
	var env envelopeOut
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// registerUser creates an account over the API and returns its token.
func registerUser(t *testing.T, s *Server, name string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.NotEmpty(t, payload.Token)
	return payload.Token
}

func createTask(t *testing.T, s *Server, token, title string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/tasks", token, map[string]string{"title": title, "body": "b"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tk struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tk))
	return tk.ID
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/tasks", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Authentication token required", decode(t, w).Message)

	w = doJSON(t, s, http.MethodGet, "/tasks", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Invalid token", decode(t, w).Message)
}

func TestAuth_ExpiredToken(t *testing.T) {
	s := newTestServer(t)

	claims := jwt.RegisteredClaims{
		Subject:   uuid.Must(uuid.NewV4()).String(),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)

	w := doJSON(t, s, http.MethodGet, "/tasks", stale, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Token expired", decode(t, w).Message)
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, "Login successful", env.Message)

	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))

	w = doJSON(t, s, http.MethodGet, "/auth/me", payload.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &me))
	require.Equal(t, "ana", me.User.Username)
}

func TestAuth_Login_BadCredentials(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, decode(t, w).Success)
}

func TestTasks_CreateRejectsClientOwner(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/tasks", token, map[string]any{
		"title": "t", "body": "b", "userId": 42,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode(t, w).Error, "userId")
}

func TestTasks_CreateValidation(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/tasks", token, map[string]string{"title": "", "body": "b"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks_OwnershipIsForbidden(t *testing.T) {
	s := newTestServer(t)
	alice := registerUser(t, s, "alice")
	bob := registerUser(t, s, "bob")

	id := createTask(t, s, alice, "private")

	w := doJSON(t, s, http.MethodGet, "/tasks/"+id, bob, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/tasks/"+id, bob, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTasks_GetUnknownAndInvalidID(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodGet, "/tasks/3f0c6e39-5f0e-4f9a-9c60-aaaaaaaaaaaa", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/tasks/not-a-uuid", token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks_ListPagination(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")
	for i := 0; i < 5; i++ {
		createTask(t, s, token, fmt.Sprintf("task %d", i))
	}

	w := doJSON(t, s, http.MethodGet, "/tasks?limit=2&offset=0", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	require.Equal(t, 5, env.Pagination.Total)
	require.True(t, env.Pagination.HasMore)

	w = doJSON(t, s, http.MethodGet, "/tasks?limit=2&offset=4", token, nil)
	env = decode(t, w)
	require.False(t, env.Pagination.HasMore)
}

func TestTasks_ListOversizedLimitClamped(t *testing.T) {
	s, taskSvc := newTestServerWithTasks(t)
	token := registerUser(t, s, "ana")
	owner := ownerOf(t, s, token)

	ctx := context.Background()
	total := service.MaxListLimit + 1
	for i := 0; i < total; i++ {
		_, err := taskSvc.Create(ctx, owner, service.CreateTaskInput{Title: "t", Body: "b"})
		require.NoError(t, err)
	}

	// an oversized limit is clamped, and pagination reflects the page
	// actually served rather than the raw request
	w := doJSON(t, s, http.MethodGet, "/tasks?limit=500", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)

	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, service.MaxListLimit)
	require.Equal(t, total, env.Pagination.Total)
	require.Equal(t, service.MaxListLimit, env.Pagination.Limit)
	require.True(t, env.Pagination.HasMore)

	w = doJSON(t, s, http.MethodGet, fmt.Sprintf("/tasks?limit=500&offset=%d", service.MaxListLimit), token, nil)
	env = decode(t, w)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	require.False(t, env.Pagination.HasMore)
}

func TestTasks_UpdateToggleDelete(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")
	id := createTask(t, s, token, "t")

	w := doJSON(t, s, http.MethodPut, "/tasks/"+id, token, map[string]string{"body": "edited"})
	require.Equal(t, http.StatusOK, w.Code)
	var tk struct {
		Body      string `json:"body"`
		Completed bool   `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tk))
	require.Equal(t, "edited", tk.Body)

	w = doJSON(t, s, http.MethodPatch, "/tasks/"+id+"/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tk))
	require.True(t, tk.Completed)

	w = doJSON(t, s, http.MethodDelete, "/tasks/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Task deleted successfully", decode(t, w).Message)

	w = doJSON(t, s, http.MethodGet, "/tasks/"+id, token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTasks_BatchCreate(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/tasks/sync", token, map[string]any{
		"tasks": []map[string]any{
			{"title": "a", "body": "b", "originalId": "c-1"},
			{"title": "", "body": "b", "originalId": "c-2"},
			{"title": "c", "body": "d", "originalId": "c-3", "userId": 7},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, "Synced 1 tasks", env.Message)

	var data struct {
		Synced []json.RawMessage `json:"synced"`
		Errors []struct {
			OriginalID string `json:"originalId"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Synced, 1)
	require.Len(t, data.Errors, 2)
}

func TestSync_SubmitBatch(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/sync/pending", token, map[string]any{
		"pendingData": []map[string]any{
			{"id": "c-1", "endpoint": "/tasks", "method": "POST", "data": map[string]string{"title": "t", "body": "b"}},
			{"id": "c-2", "endpoint": "/tasks", "method": "POST", "data": map[string]string{"title": "", "body": "b"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, "Processed 1 items", env.Message)

	var rep struct {
		Synced []struct {
			OriginalID string `json:"originalId"`
			TaskID     string `json:"taskId"`
			Status     string `json:"status"`
		} `json:"synced"`
		Errors []struct {
			OriginalID string `json:"originalId"`
			Error      string `json:"error"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	require.Len(t, rep.Synced, 1)
	require.Len(t, rep.Errors, 1)
	require.Equal(t, "c-1", rep.Synced[0].OriginalID)
	require.Equal(t, "synced", rep.Synced[0].Status)
	require.NotEmpty(t, rep.Synced[0].TaskID)
	require.Equal(t, "c-2", rep.Errors[0].OriginalID)

	// the replayed creation is visible through the task API
	w = doJSON(t, s, http.MethodGet, "/tasks", token, nil)
	env = decode(t, w)
	require.Equal(t, 1, env.Pagination.Total)
}

func TestSync_SubmitBatch_EmptyBody(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/sync/pending", token, map[string]any{"pendingData": []any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSync_ListOpsDefaultsToPending(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	// one success (synced) and one failure (failed); neither is pending
	doJSON(t, s, http.MethodPost, "/sync/pending", token, map[string]any{
		"pendingData": []map[string]any{
			{"id": "c-1", "endpoint": "/tasks", "method": "POST", "data": map[string]string{"title": "t", "body": "b"}},
			{"id": "c-2", "endpoint": "/tasks", "method": "POST", "data": map[string]string{"title": "", "body": "b"}},
		},
	})

	w := doJSON(t, s, http.MethodGet, "/sync/pending", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, decode(t, w).Pagination.Total)

	w = doJSON(t, s, http.MethodGet, "/sync/pending?status=all", token, nil)
	require.Equal(t, 2, decode(t, w).Pagination.Total)

	w = doJSON(t, s, http.MethodGet, "/sync/pending?status=failed", token, nil)
	require.Equal(t, 1, decode(t, w).Pagination.Total)

	// ledger listing clamps paging the same way the task listing does
	w = doJSON(t, s, http.MethodGet, "/sync/pending?status=all&limit=500", token, nil)
	require.Equal(t, service.MaxListLimit, decode(t, w).Pagination.Limit)
}

func TestSync_RetryEmptyBucket(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/sync/retry", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, "Retried 0 items", env.Message)

	var data struct {
		Retried []json.RawMessage `json:"retried"`
		Errors  []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.Retried)
	require.Empty(t, data.Retried)
	require.Empty(t, data.Errors)
}

func TestSync_RetryReplaysFailure(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	// seed a failed entry; its payload stays invalid, so the retry fails again
	// and the entry shows up under errors keyed by ledger id
	doJSON(t, s, http.MethodPost, "/sync/pending", token, map[string]any{
		"pendingData": []map[string]any{
			{"id": "c-1", "endpoint": "/tasks", "method": "POST", "data": map[string]string{"title": "", "body": "b"}},
		},
	})

	w := doJSON(t, s, http.MethodPost, "/sync/retry", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Retried []json.RawMessage `json:"retried"`
		Errors  []struct {
			ID    string `json:"id"`
			Error string `json:"error"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.Empty(t, data.Retried)
	require.Len(t, data.Errors, 1)
	require.NotEmpty(t, data.Errors[0].Error)
}

func TestSync_Stats(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")
	createTask(t, s, token, "t")

	w := doJSON(t, s, http.MethodGet, "/sync/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Tasks struct {
			Total int `json:"total"`
		} `json:"tasks"`
		PendingData struct {
			Total int `json:"total"`
		} `json:"pendingData"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.Equal(t, 1, data.Tasks.Total)
	require.Equal(t, 0, data.PendingData.Total)
}

func TestSync_Clean(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodDelete, "/sync/clean?daysOld=30", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, "Deleted 0 old records", env.Message)

	var data struct {
		DeletedCount int `json:"deletedCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Zero(t, data.DeletedCount)
}

func TestSync_AutoSync(t *testing.T) {
	s := newTestServer(t)
	token := registerUser(t, s, "ana")

	w := doJSON(t, s, http.MethodPost, "/sync/auto", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Automatic sync completed", decode(t, w).Message)
}
