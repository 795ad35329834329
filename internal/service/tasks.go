package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

// CreateTaskInput carries the caller-supplied fields for a new task.
type CreateTaskInput struct {
	Title     string
	Body      string
	OriginID  string
	Completed bool
}

// UpdateTaskInput carries a partial field replacement; nil means unchanged.
type UpdateTaskInput struct {
	Title     *string
	Body      *string
	Completed *bool
}

// BatchError reports one rejected item of a batch create, keyed by the
// caller's correlation id.
type BatchError struct {
	OriginalID string `json:"originalId,omitempty"`
	Error      string `json:"error"`
}

// TaskService defines owner-scoped task operations.
type TaskService interface {
	Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*model.Task, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Task, error)
	List(ctx context.Context, ownerID uuid.UUID, completed *bool, limit, offset int) ([]model.Task, int, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, in UpdateTaskInput) (*model.Task, error)
	ToggleComplete(ctx context.Context, ownerID, id uuid.UUID) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	Stats(ctx context.Context, ownerID uuid.UUID) (model.TaskStats, error)
	// BatchCreate processes each item independently; one item's validation
	// failure never aborts the batch.
	BatchCreate(ctx context.Context, ownerID uuid.UUID, items []CreateTaskInput) ([]model.Task, []BatchError, error)
}

// Listing page bounds. The HTTP layer clamps request parameters to these
// before computing pagination so hasMore always reflects the effective page.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type TaskServiceImpl struct {
	repo repository.TaskRepository
}

// NewTaskService constructs TaskService over a task repository.
func NewTaskService(repo repository.TaskRepository) *TaskServiceImpl {
	return &TaskServiceImpl{repo: repo}
}

// Create validates and persists a new task. Records accepted by the server
// are always stored with sync status "synced".
func (s *TaskServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*model.Task, error) {
	if ownerID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	title := strings.TrimSpace(in.Title)
	body := strings.TrimSpace(in.Body)
	if title == "" || body == "" {
		return nil, fmt.Errorf("%w: title and body are required", errs.ErrValidation)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t := model.Task{
		ID:              id,
		OwnerID:         ownerID,
		Title:           title,
		Body:            body,
		Completed:       in.Completed,
		SyncStatus:      model.TaskSynced,
		LastSyncAttempt: now,
		OriginID:        in.OriginID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Get loads a task and enforces ownership.
func (s *TaskServiceImpl) Get(ctx context.Context, ownerID, id uuid.UUID) (*model.Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, errs.ErrPermissionDenied
	}
	return t, nil
}

// List returns the owner's tasks newest first with the total count.
func (s *TaskServiceImpl) List(ctx context.Context, ownerID uuid.UUID, completed *bool, limit, offset int) ([]model.Task, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, ownerID, repository.TaskFilter{Completed: completed, Limit: limit, Offset: offset})
}

// Update applies a partial field replacement. Owner and creation time are
// preserved; the record is forced back to "synced" because the server copy
// is authoritative after an accepted write.
func (s *TaskServiceImpl) Update(ctx context.Context, ownerID, id uuid.UUID, in UpdateTaskInput) (*model.Task, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", errs.ErrValidation)
		}
		t.Title = title
	}
	if in.Body != nil {
		body := strings.TrimSpace(*in.Body)
		if body == "" {
			return nil, fmt.Errorf("%w: body must not be empty", errs.ErrValidation)
		}
		t.Body = body
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	t.SyncStatus = model.TaskSynced
	t.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ToggleComplete flips the completed flag.
func (s *TaskServiceImpl) ToggleComplete(ctx context.Context, ownerID, id uuid.UUID) (*model.Task, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	t.Completed = !t.Completed
	t.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task after the ownership check.
func (s *TaskServiceImpl) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// Stats aggregates the owner's task counts, computed fresh on each call.
func (s *TaskServiceImpl) Stats(ctx context.Context, ownerID uuid.UUID) (model.TaskStats, error) {
	return s.repo.Stats(ctx, ownerID)
}

// BatchCreate persists each item independently, reporting successes and
// per-item failures side by side.
func (s *TaskServiceImpl) BatchCreate(ctx context.Context, ownerID uuid.UUID, items []CreateTaskInput) ([]model.Task, []BatchError, error) {
	created := []model.Task{}
	batchErrs := []BatchError{}
	for _, in := range items {
		t, err := s.Create(ctx, ownerID, in)
		if err != nil {
			batchErrs = append(batchErrs, BatchError{OriginalID: in.OriginID, Error: err.Error()})
			continue
		}
		created = append(created, *t)
	}
	return created, batchErrs, nil
}
