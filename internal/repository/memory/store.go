// Package memory contains map-backed implementations of the repository
// interfaces. They serve tests and the no-database development mode; ordering
// uses an insertion sequence so records created within one clock tick still
// list deterministically.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

type taskRec struct {
	task model.Task
	seq  int64
}

// TaskStore is an in-memory TaskRepository.
type TaskStore struct {
	mu    sync.Mutex
	seq   int64
	tasks map[uuid.UUID]taskRec
}

// NewTaskStore constructs an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: map[uuid.UUID]taskRec{}}
}

// Create inserts a task.
func (s *TaskStore) Create(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return errs.ErrAlreadyExists
	}
	s.seq++
	s.tasks[t.ID] = taskRec{task: *t, seq: s.seq}
	return nil
}

// Get loads a task by id.
func (s *TaskStore) Get(_ context.Context, id uuid.UUID) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	t := rec.task
	return &t, nil
}

// List returns an owner's tasks newest first plus the total matching count.
func (s *TaskStore) List(_ context.Context, ownerID uuid.UUID, f repository.TaskFilter) ([]model.Task, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]taskRec, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if rec.task.OwnerID != ownerID {
			continue
		}
		if f.Completed != nil && rec.task.Completed != *f.Completed {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	total := len(recs)
	out := []model.Task{}
	for i := f.Offset; i < total && len(out) < f.Limit; i++ {
		out = append(out, recs[i].task)
	}
	return out, total, nil
}

// Update overwrites an existing task.
func (s *TaskStore) Update(_ context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[t.ID]
	if !ok {
		return errs.ErrNotFound
	}
	rec.task = *t
	s.tasks[t.ID] = rec
	return nil
}

// Delete removes a task by id.
func (s *TaskStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Stats aggregates an owner's task counts.
func (s *TaskStore) Stats(_ context.Context, ownerID uuid.UUID) (model.TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.TaskStats
	for _, rec := range s.tasks {
		if rec.task.OwnerID != ownerID {
			continue
		}
		st.Total++
		if rec.task.Completed {
			st.Completed++
		}
		switch rec.task.SyncStatus {
		case model.TaskPending:
			st.Pending++
		case model.TaskFailed:
			st.Failed++
		case model.TaskSynced:
			st.Synced++
		}
	}
	return st, nil
}

type opRec struct {
	op  model.PendingOp
	seq int64
}

// LedgerStore is an in-memory LedgerRepository.
type LedgerStore struct {
	mu  sync.Mutex
	seq int64
	ops map[uuid.UUID]opRec
}

// NewLedgerStore constructs an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ops: map[uuid.UUID]opRec{}}
}

// Append stores a new entry.
func (s *LedgerStore) Append(_ context.Context, op *model.PendingOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; ok {
		return errs.ErrAlreadyExists
	}
	s.seq++
	s.ops[op.ID] = opRec{op: *op, seq: s.seq}
	return nil
}

// MarkProcessing claims an entry for a replay attempt; the same
// compare-and-set guard as the postgres implementation, under the mutex.
func (s *LedgerStore) MarkProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ops[id]
	if !ok {
		return false, errs.ErrNotFound
	}
	if rec.op.Status != model.OpPending && rec.op.Status != model.OpFailed {
		return false, nil
	}
	now := time.Now()
	rec.op.Status = model.OpProcessing
	rec.op.RetryCount++
	rec.op.LastRetry = &now
	s.ops[id] = rec
	return true, nil
}

// MarkSynced records a successful replay.
func (s *LedgerStore) MarkSynced(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ops[id]
	if !ok {
		return errs.ErrNotFound
	}
	now := time.Now()
	rec.op.Status = model.OpSynced
	rec.op.SyncedAt = &now
	rec.op.LastError = ""
	s.ops[id] = rec
	return nil
}

// MarkFailed records a failed replay with the error text.
func (s *LedgerStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ops[id]
	if !ok {
		return errs.ErrNotFound
	}
	now := time.Now()
	rec.op.Status = model.OpFailed
	rec.op.LastError = errMsg
	rec.op.LastRetry = &now
	s.ops[id] = rec
	return nil
}

func (s *LedgerStore) selectOps(ownerID uuid.UUID, keep func(model.PendingOp) bool, newestFirst bool) []opRec {
	recs := []opRec{}
	for _, rec := range s.ops {
		if rec.op.OwnerID != ownerID || !keep(rec.op) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if newestFirst {
			return recs[i].seq > recs[j].seq
		}
		return recs[i].seq < recs[j].seq
	})
	return recs
}

// QueryPending returns replayable pending entries oldest first.
func (s *LedgerStore) QueryPending(_ context.Context, ownerID uuid.UUID) ([]model.PendingOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.PendingOp{}
	for _, rec := range s.selectOps(ownerID, func(op model.PendingOp) bool {
		return op.Status == model.OpPending && op.RetryCount < op.MaxRetries
	}, false) {
		out = append(out, rec.op)
	}
	return out, nil
}

// QueryFailed returns the terminal-failure bucket (failed status or
// exhausted retries, whichever comes first).
func (s *LedgerStore) QueryFailed(_ context.Context, ownerID uuid.UUID) ([]model.PendingOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.PendingOp{}
	for _, rec := range s.selectOps(ownerID, func(op model.PendingOp) bool {
		return op.Status == model.OpFailed || op.RetryCount >= op.MaxRetries
	}, false) {
		out = append(out, rec.op)
	}
	return out, nil
}

// List returns an owner's entries newest first with the total count.
func (s *LedgerStore) List(_ context.Context, ownerID uuid.UUID, f repository.OpFilter) ([]model.PendingOp, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := f.Status
	if status == "all" {
		status = ""
	}
	recs := s.selectOps(ownerID, func(op model.PendingOp) bool {
		return status == "" || op.Status == model.OpStatus(status)
	}, true)

	total := len(recs)
	out := []model.PendingOp{}
	for i := f.Offset; i < total && len(out) < f.Limit; i++ {
		out = append(out, recs[i].op)
	}
	return out, total, nil
}

// Stats aggregates entry counts by status.
func (s *LedgerStore) Stats(_ context.Context, ownerID uuid.UUID) (model.OpStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.OpStats
	for _, rec := range s.ops {
		if rec.op.OwnerID != ownerID {
			continue
		}
		st.Total++
		switch rec.op.Status {
		case model.OpPending:
			st.Pending++
		case model.OpProcessing:
			st.Processing++
		case model.OpSynced:
			st.Synced++
		case model.OpFailed:
			st.Failed++
		}
	}
	return st, nil
}

// PurgeOlderThan deletes synced entries older than cutoff.
func (s *LedgerStore) PurgeOlderThan(_ context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.ops {
		if rec.op.OwnerID != ownerID || rec.op.Status != model.OpSynced {
			continue
		}
		if rec.op.SyncedAt != nil && rec.op.SyncedAt.Before(cutoff) {
			delete(s.ops, id)
			deleted++
		}
	}
	return deleted, nil
}

// UserStore is an in-memory UserRepository.
type UserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

// NewUserStore constructs an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: map[uuid.UUID]model.User{}}
}

// Create inserts a new user; username and email are unique.
func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	s.users[u.ID] = *u
	return nil
}

// GetByID loads a user by id.
func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// GetByEmail loads a user by email.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

var (
	_ repository.TaskRepository   = (*TaskStore)(nil)
	_ repository.LedgerRepository = (*LedgerStore)(nil)
	_ repository.UserRepository   = (*UserStore)(nil)
)
