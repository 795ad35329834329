package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/edrozo/tasksync/internal/model"
)

// OpFilter narrows and pages a ledger listing.
type OpFilter struct {
	Status string // "", "all" disable the status filter
	Limit  int
	Offset int
}

// LedgerRepository provides durable access to the pending-operation ledger.
type LedgerRepository interface {
	// Append stores a new entry with whatever status it carries.
	Append(ctx context.Context, op *model.PendingOp) error

	// MarkProcessing claims an entry for a replay attempt: sets
	// status=processing, increments retry_count and stamps last_retry, but
	// only if the entry is currently pending or failed. Returns false when
	// the entry was already claimed (or synced) by a concurrent sweep.
	MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkSynced records a successful replay and stamps synced_at.
	MarkSynced(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a failed replay with the error text.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// QueryPending returns pending entries with retry_count below
	// max_retries, oldest first (FIFO preserves the client's causal order).
	QueryPending(ctx context.Context, ownerID uuid.UUID) ([]model.PendingOp, error)

	// QueryFailed returns the terminal-failure bucket: entries with
	// status=failed OR retry_count >= max_retries, whatever their status.
	QueryFailed(ctx context.Context, ownerID uuid.UUID) ([]model.PendingOp, error)

	// List returns an owner's entries newest first with a total count.
	List(ctx context.Context, ownerID uuid.UUID, f OpFilter) ([]model.PendingOp, int, error)

	// Stats aggregates an owner's entry counts by status.
	Stats(ctx context.Context, ownerID uuid.UUID) (model.OpStats, error)

	// PurgeOlderThan deletes synced entries whose synced_at precedes cutoff.
	// Entries in any other status are never deleted regardless of age.
	PurgeOlderThan(ctx context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error)
}
