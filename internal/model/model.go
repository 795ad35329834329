// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Task sync statuses. Server-created records are always TaskSynced: the
// server is authoritative once it accepts a write.
const (
	TaskSynced  = "synced"
	TaskPending = "pending"
	TaskFailed  = "failed"
)

// Task is a unit of work owned by a single user.
type Task struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"ownerId"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Completed       bool      `json:"completed"`
	SyncStatus      string    `json:"syncStatus"`
	RetryCount      int       `json:"retryCount"`
	LastSyncAttempt time.Time `json:"lastSyncAttempt"`
	OriginID        string    `json:"originalId,omitempty"` // client-assigned correlation id
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TaskStats aggregates an owner's task counts, computed fresh on each call.
type TaskStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Synced    int `json:"synced"`
}

// OpStatus is the replay state of a ledger entry.
type OpStatus string

// Ledger entry statuses. Transitions are monotone except for explicit retry:
// pending -> processing -> {synced|failed}; failed -> processing -> {synced|failed}.
const (
	OpPending    OpStatus = "pending"
	OpProcessing OpStatus = "processing"
	OpSynced     OpStatus = "synced"
	OpFailed     OpStatus = "failed"
)

// DefaultMaxRetries bounds automatic replay attempts. Manual retry ignores it.
const DefaultMaxRetries = 3

// OpKind is the decoded intent of a recorded client operation.
type OpKind int

const (
	OpUnknown OpKind = iota
	OpCreateTask
)

// KindForEndpoint maps a logical endpoint tag to an operation kind.
// "/posts" is accepted for compatibility with older clients that recorded
// the demo endpoint before the rename.
func KindForEndpoint(endpoint string) OpKind {
	switch endpoint {
	case "/tasks", "/posts":
		return OpCreateTask
	default:
		return OpUnknown
	}
}

// PendingOp is one client-recorded mutation awaiting or having undergone
// replay against the task store.
type PendingOp struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    uuid.UUID       `json:"ownerId"`
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	Endpoint   string          `json:"endpoint"`
	Payload    json.RawMessage `json:"data"`
	ClientID   string          `json:"clientId"`
	Status     OpStatus        `json:"status"`
	RetryCount int             `json:"retryCount"`
	MaxRetries int             `json:"maxRetries"`
	LastRetry  *time.Time      `json:"lastRetry,omitempty"`
	LastError  string          `json:"error,omitempty"`
	SyncedAt   *time.Time      `json:"syncedAt,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Kind returns the tagged operation kind for the entry's endpoint.
func (p *PendingOp) Kind() OpKind { return KindForEndpoint(p.Endpoint) }

// OpStats aggregates ledger entry counts by status.
type OpStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
}

// User represents an account stored on the server.
type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	PwdHash   []byte // argon2id(password, PwdSalt)
	PwdSalt   []byte
	CreatedAt time.Time
}
