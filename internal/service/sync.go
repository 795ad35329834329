package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/edrozo/tasksync/internal/errs"
	"github.com/edrozo/tasksync/internal/metrics"
	"github.com/edrozo/tasksync/internal/model"
	"github.com/edrozo/tasksync/internal/repository"
)

// Operation is one client-recorded request captured while offline.
type Operation struct {
	ID       string          `json:"id"`
	URL      string          `json:"url"`
	Method   string          `json:"method"`
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// ClientMeta carries request metadata stored on each ledger entry.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// ItemResult reports one successfully replayed item. Submit results are keyed
// by the client correlation id; sweep results by the ledger entry id.
type ItemResult struct {
	OriginalID string `json:"originalId,omitempty"`
	ID         string `json:"id,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
	Status     string `json:"status"`
}

// ItemError reports one failed item.
type ItemError struct {
	OriginalID string `json:"originalId,omitempty"`
	ID         string `json:"id,omitempty"`
	Error      string `json:"error"`
}

// Report is the outcome of one reconciliation pass. Both lists are always
// non-nil; len(Synced)+len(Errors) equals the number of processed items.
type Report struct {
	Synced []ItemResult `json:"synced"`
	Errors []ItemError  `json:"errors"`
}

// SyncService orchestrates replay of ledger entries against the task store.
type SyncService interface {
	// SubmitBatch records each operation in the ledger and replays it,
	// in submission order, collecting per-item outcomes.
	SubmitBatch(ctx context.Context, ownerID uuid.UUID, ops []Operation, meta ClientMeta) (Report, error)
	// RetryFailed replays the terminal-failure bucket. Max-retries is
	// advisory here: an operator retry reattempts exhausted entries too.
	RetryFailed(ctx context.Context, ownerID uuid.UUID) (Report, error)
	// AutoSync replays pending entries below their retry budget; meant to
	// be driven periodically by the client's service worker.
	AutoSync(ctx context.Context, ownerID uuid.UUID) (Report, error)
	// ListOps pages through the owner's ledger entries.
	ListOps(ctx context.Context, ownerID uuid.UUID, status string, limit, offset int) ([]model.PendingOp, int, error)
	// Stats aggregates the owner's ledger counts.
	Stats(ctx context.Context, ownerID uuid.UUID) (model.OpStats, error)
	// Purge deletes synced entries older than daysOld (default 30).
	Purge(ctx context.Context, ownerID uuid.UUID, daysOld int) (int64, error)
}

// taskCreator is the slice of TaskService the reconciler needs.
type taskCreator interface {
	Create(ctx context.Context, ownerID uuid.UUID, in CreateTaskInput) (*model.Task, error)
}

type Reconciler struct {
	ledger   repository.LedgerRepository
	tasks    taskCreator
	maxBatch int
	log      *zap.Logger
}

// NewReconciler constructs the sync reconciler.
func NewReconciler(ledger repository.LedgerRepository, tasks taskCreator, maxBatch int, log *zap.Logger) *Reconciler {
	if maxBatch <= 0 {
		maxBatch = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{ledger: ledger, tasks: tasks, maxBatch: maxBatch, log: log}
}

// validateOperation gates what may enter the ledger: a recorded operation
// always carries one of the mutating methods and a body.
func validateOperation(op Operation) error {
	switch op.Method {
	case "POST", "PUT", "DELETE", "PATCH":
	default:
		return fmt.Errorf("%w: unsupported method %q", errs.ErrValidation, op.Method)
	}
	if len(op.Data) == 0 || string(op.Data) == "null" {
		return fmt.Errorf("%w: operation data is required", errs.ErrValidation)
	}
	return nil
}

// taskPayload is the embedded body of a create-task operation.
type taskPayload struct {
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Completed bool            `json:"completed"`
	UserID    json.RawMessage `json:"userId"`
}

// replay applies one ledger entry against the task store and returns the new
// task id, if any. Unknown kinds are acknowledged without a side effect: the
// entry itself is the record.
func (s *Reconciler) replay(ctx context.Context, op *model.PendingOp) (string, error) {
	switch op.Kind() {
	case model.OpCreateTask:
		if len(op.Payload) == 0 {
			return "", fmt.Errorf("%w: operation payload is required", errs.ErrValidation)
		}
		var p taskPayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return "", fmt.Errorf("%w: malformed operation payload: %v", errs.ErrValidation, err)
		}
		if len(p.UserID) != 0 && string(p.UserID) != "null" {
			return "", fmt.Errorf("%w: client-supplied userId is not allowed", errs.ErrValidation)
		}
		t, err := s.tasks.Create(ctx, op.OwnerID, CreateTaskInput{
			Title:     p.Title,
			Body:      p.Body,
			Completed: p.Completed,
			OriginID:  op.ClientID,
		})
		if err != nil {
			return "", err
		}
		return t.ID.String(), nil
	case model.OpUnknown:
		return "", nil
	default:
		return "", nil
	}
}

// SubmitBatch writes a ledger entry per operation and replays each one in
// submission order. A failing item is marked failed and reported; processing
// continues — partial success is the normal case for best-effort offline
// flushes. The ledger write and the task write are deliberately two separate
// steps: at-least-once, not atomic.
func (s *Reconciler) SubmitBatch(ctx context.Context, ownerID uuid.UUID, ops []Operation, meta ClientMeta) (Report, error) {
	rep := Report{Synced: []ItemResult{}, Errors: []ItemError{}}
	if len(ops) == 0 {
		return rep, fmt.Errorf("%w: an array of pending operations is required", errs.ErrValidation)
	}
	if len(ops) > s.maxBatch {
		return rep, fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, len(ops), s.maxBatch)
	}

	for _, op := range ops {
		if err := validateOperation(op); err != nil {
			rep.Errors = append(rep.Errors, ItemError{OriginalID: op.ID, Error: err.Error()})
			continue
		}

		clientID := op.ID
		if clientID == "" {
			clientID = strconv.FormatInt(time.Now().UnixMilli(), 10)
		}

		entryID, err := uuid.NewV4()
		if err != nil {
			return rep, err
		}
		entry := model.PendingOp{
			ID:         entryID,
			OwnerID:    ownerID,
			URL:        op.URL,
			Method:     op.Method,
			Endpoint:   op.Endpoint,
			Payload:    op.Data,
			ClientID:   clientID,
			Status:     model.OpPending,
			MaxRetries: model.DefaultMaxRetries,
			UserAgent:  meta.UserAgent,
			IPAddress:  meta.IPAddress,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.ledger.Append(ctx, &entry); err != nil {
			s.log.Warn("ledger append failed", zap.String("clientId", clientID), zap.Error(err))
			rep.Errors = append(rep.Errors, ItemError{OriginalID: op.ID, Error: err.Error()})
			continue
		}

		taskID, err := s.replay(ctx, &entry)
		if err != nil {
			if mErr := s.ledger.MarkFailed(ctx, entry.ID, err.Error()); mErr != nil {
				s.log.Warn("mark failed", zap.String("entry", entry.ID.String()), zap.Error(mErr))
			}
			metrics.IncSync("failed")
			rep.Errors = append(rep.Errors, ItemError{OriginalID: op.ID, Error: err.Error()})
			continue
		}
		if err := s.ledger.MarkSynced(ctx, entry.ID); err != nil {
			s.log.Warn("mark synced", zap.String("entry", entry.ID.String()), zap.Error(err))
		}
		metrics.IncSync("synced")
		rep.Synced = append(rep.Synced, ItemResult{OriginalID: op.ID, TaskID: taskID, Status: "synced"})
	}
	return rep, nil
}

// RetryFailed replays the owner's terminal-failure bucket. Entries already
// synced are naturally excluded because QueryFailed never returns them, which
// is what keeps replay idempotent.
func (s *Reconciler) RetryFailed(ctx context.Context, ownerID uuid.UUID) (Report, error) {
	entries, err := s.ledger.QueryFailed(ctx, ownerID)
	if err != nil {
		return Report{}, err
	}
	return s.sweep(ctx, entries, "retried_successfully"), nil
}

// AutoSync replays the owner's pending entries oldest first.
func (s *Reconciler) AutoSync(ctx context.Context, ownerID uuid.UUID) (Report, error) {
	entries, err := s.ledger.QueryPending(ctx, ownerID)
	if err != nil {
		return Report{}, err
	}
	return s.sweep(ctx, entries, "auto_synced"), nil
}

// sweep re-attempts each entry: claim via compare-and-set, replay, record the
// outcome. An entry claimed by a concurrent sweep is skipped silently.
func (s *Reconciler) sweep(ctx context.Context, entries []model.PendingOp, statusTag string) Report {
	rep := Report{Synced: []ItemResult{}, Errors: []ItemError{}}
	for i := range entries {
		entry := &entries[i]
		claimed, err := s.ledger.MarkProcessing(ctx, entry.ID)
		if err != nil {
			rep.Errors = append(rep.Errors, ItemError{ID: entry.ID.String(), Error: err.Error()})
			continue
		}
		if !claimed {
			continue
		}

		if _, err := s.replay(ctx, entry); err != nil {
			if mErr := s.ledger.MarkFailed(ctx, entry.ID, err.Error()); mErr != nil {
				s.log.Warn("mark failed", zap.String("entry", entry.ID.String()), zap.Error(mErr))
			}
			metrics.IncSync("failed")
			rep.Errors = append(rep.Errors, ItemError{ID: entry.ID.String(), Error: err.Error()})
			continue
		}
		if err := s.ledger.MarkSynced(ctx, entry.ID); err != nil {
			s.log.Warn("mark synced", zap.String("entry", entry.ID.String()), zap.Error(err))
		}
		metrics.IncSync("synced")
		rep.Synced = append(rep.Synced, ItemResult{ID: entry.ID.String(), Status: statusTag})
	}
	return rep
}

// ListOps pages through the owner's ledger entries, newest first.
func (s *Reconciler) ListOps(ctx context.Context, ownerID uuid.UUID, status string, limit, offset int) ([]model.PendingOp, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.List(ctx, ownerID, repository.OpFilter{Status: status, Limit: limit, Offset: offset})
}

// Stats aggregates the owner's ledger counts.
func (s *Reconciler) Stats(ctx context.Context, ownerID uuid.UUID) (model.OpStats, error) {
	return s.ledger.Stats(ctx, ownerID)
}

// Purge deletes the owner's synced entries older than daysOld. Entries in any
// other status survive regardless of age — they require explicit retry.
func (s *Reconciler) Purge(ctx context.Context, ownerID uuid.UUID, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld)
	return s.ledger.PurgeOlderThan(ctx, ownerID, cutoff)
}

var _ SyncService = (*Reconciler)(nil)
