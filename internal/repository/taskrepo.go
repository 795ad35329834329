// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/edrozo/tasksync/internal/model"
)

// TaskFilter narrows and pages a task listing.
type TaskFilter struct {
	Completed *bool // nil means both
	Limit     int
	Offset    int
}

// TaskRepository provides durable access to task records.
// Ownership checks live in the service layer; repositories only filter
// listings and aggregates by owner.
type TaskRepository interface {
	// Create inserts a fully populated task record.
	Create(ctx context.Context, t *model.Task) error
	// Get loads a task by id regardless of owner.
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
	// List returns an owner's tasks ordered by creation time descending,
	// plus the total count matching the filter (ignoring limit/offset).
	List(ctx context.Context, ownerID uuid.UUID, f TaskFilter) ([]model.Task, int, error)
	// Update overwrites the mutable fields of an existing task.
	Update(ctx context.Context, t *model.Task) error
	// Delete removes a task by id.
	Delete(ctx context.Context, id uuid.UUID) error
	// Stats aggregates an owner's task counts.
	Stats(ctx context.Context, ownerID uuid.UUID) (model.TaskStats, error)
}
