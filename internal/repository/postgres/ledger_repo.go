package postgres

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

// LedgerRepo implements LedgerRepository using PostgreSQL.
type LedgerRepo struct{ db *DB }

// NewLedgerRepo constructs a pending-operation ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo { return &LedgerRepo{db: db} }

const opColumns = `id, owner_id, url, method, endpoint, payload, client_id, status, retry_count, max_retries, last_retry, last_error, synced_at, user_agent, ip_address, created_at`

func scanOp(row pgx.Row, p *model.PendingOp) error {
	var lastError *string
	if err := row.Scan(&p.ID, &p.OwnerID, &p.URL, &p.Method, &p.Endpoint,
		&p.Payload, &p.ClientID, &p.Status, &p.RetryCount, &p.MaxRetries,
		&p.LastRetry, &lastError, &p.SyncedAt, &p.UserAgent, &p.IPAddress,
		&p.CreatedAt); err != nil {
		return err
	}
	if lastError != nil {
		p.LastError = *lastError
	}
	return nil
}

func (r *LedgerRepo) collect(ctx context.Context, q string, args ...any) ([]model.PendingOp, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PendingOp{}
	for rows.Next() {
		var p model.PendingOp
		if err = scanOp(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Append stores a new ledger entry.
func (r *LedgerRepo) Append(ctx context.Context, op *model.PendingOp) error {
	const q = `
INSERT INTO pending_operations (id, owner_id, url, method, endpoint, payload, client_id, status, retry_count, max_retries, user_agent, ip_address, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.db.Pool.Exec(ctx, q,
		op.ID, op.OwnerID, op.URL, op.Method, op.Endpoint, op.Payload,
		op.ClientID, op.Status, op.RetryCount, op.MaxRetries,
		op.UserAgent, op.IPAddress, op.CreatedAt)
	return err
}

// MarkProcessing claims an entry for a replay attempt. The status guard is a
// compare-and-set: a concurrent sweep that already claimed (or finished) the
// entry makes this a no-op and the caller must skip it.
func (r *LedgerRepo) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `
UPDATE pending_operations
SET status='processing', retry_count=retry_count+1, last_retry=now()
WHERE id=$1 AND status IN ('pending','failed')`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSynced records a successful replay.
func (r *LedgerRepo) MarkSynced(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE pending_operations SET status='synced', synced_at=now(), last_error=NULL WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// MarkFailed records a failed replay with the error text.
func (r *LedgerRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `UPDATE pending_operations SET status='failed', last_error=$2, last_retry=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// QueryPending returns replayable pending entries oldest first.
func (r *LedgerRepo) QueryPending(ctx context.Context, ownerID uuid.UUID) ([]model.PendingOp, error) {
	const q = `
SELECT ` + opColumns + `
FROM pending_operations
WHERE owner_id=$1 AND status='pending' AND retry_count < max_retries
ORDER BY created_at ASC`
	return r.collect(ctx, q, ownerID)
}

// QueryFailed returns the terminal-failure bucket. Deliberately a superset of
// status='failed': entries that exhausted max_retries belong here whatever
// their status field says.
func (r *LedgerRepo) QueryFailed(ctx context.Context, ownerID uuid.UUID) ([]model.PendingOp, error) {
	const q = `
SELECT ` + opColumns + `
FROM pending_operations
WHERE owner_id=$1 AND (status='failed' OR retry_count >= max_retries)
ORDER BY created_at ASC`
	return r.collect(ctx, q, ownerID)
}

// List returns an owner's entries newest first with the total count.
func (r *LedgerRepo) List(ctx context.Context, ownerID uuid.UUID, f repository.OpFilter) ([]model.PendingOp, int, error) {
	status := f.Status
	if status == "all" {
		status = ""
	}
	var statusArg *string
	if status != "" {
		statusArg = &status
	}

	const q = `
SELECT ` + opColumns + `
FROM pending_operations
WHERE owner_id=$1 AND ($2::text IS NULL OR status=$2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`
	out, err := r.collect(ctx, q, ownerID, statusArg, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}

	const cq = `SELECT COUNT(*) FROM pending_operations WHERE owner_id=$1 AND ($2::text IS NULL OR status=$2)`
	var total int
	if err = r.db.Pool.QueryRow(ctx, cq, ownerID, statusArg).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Stats aggregates entry counts by status.
func (r *LedgerRepo) Stats(ctx context.Context, ownerID uuid.UUID) (model.OpStats, error) {
	const q = `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE status='pending'),
  COUNT(*) FILTER (WHERE status='processing'),
  COUNT(*) FILTER (WHERE status='synced'),
  COUNT(*) FILTER (WHERE status='failed')
FROM pending_operations WHERE owner_id=$1`
	var st model.OpStats
	err := r.db.Pool.QueryRow(ctx, q, ownerID).
		Scan(&st.Total, &st.Pending, &st.Processing, &st.Synced, &st.Failed)
	return st, err
}

// PurgeOlderThan deletes synced entries older than cutoff. The status guard
// keeps pending/processing/failed entries untouched regardless of age.
func (r *LedgerRepo) PurgeOlderThan(ctx context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM pending_operations WHERE owner_id=$1 AND status='synced' AND synced_at < $2`
	tag, err := r.db.Pool.Exec(ctx, q, ownerID, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
