package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies what a queued operation acts on and therefore which
// handler replays it.
type EntityType string

const (
	EntityOrder         EntityType = "ORDER"
	EntityOrderStatus   EntityType = "ORDER_STATUS"
	EntityTable         EntityType = "TABLE"
	EntityTableTransfer EntityType = "TABLE_TRANSFER"
	EntityTableMerge    EntityType = "TABLE_MERGE"
	EntityTableSplit    EntityType = "TABLE_SPLIT"
)

// Operation is the kind of write a queue entry represents
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// IsValid reports whether the operation is one of the known kinds
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncQueueEntry is a state-changing operation made while offline, waiting
// to be replayed against the server. Entries are replayed strictly in Seq order.
type SyncQueueEntry struct {
	ID         uuid.UUID
	Seq        int64
	EntityType EntityType
	EntityID   uuid.UUID
	Operation  Operation
	Payload    json.RawMessage
	// BaseVersion is the server version token the change was made against.
	// Empty for entities the server has not seen yet.
	BaseVersion string
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
}

// NewSyncQueueEntry creates an entry; Seq is assigned by the repository on append
func NewSyncQueueEntry(entityType EntityType, entityID uuid.UUID, op Operation, payload json.RawMessage, baseVersion string) *SyncQueueEntry {
	return &SyncQueueEntry{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   op,
		Payload:     payload,
		BaseVersion: baseVersion,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// RecordAttempt notes a transient failure; the entry stays queued
func (e *SyncQueueEntry) RecordAttempt(errMsg string) {
	e.Attempts++
	e.LastError = errMsg
}

// SyncQueueRepository persists the queue
type SyncQueueRepository interface {
	// Append persists the entry and assigns its Seq. The entry must be durable
	// when Append returns.
	Append(ctx context.Context, entry *SyncQueueEntry) error
	// ListPending returns up to limit entries ordered by Seq; limit <= 0 means all
	ListPending(ctx context.Context, limit int) ([]*SyncQueueEntry, error)
	FindByID(ctx context.Context, id uuid.UUID) (*SyncQueueEntry, error)
	// RecordAttempt persists attempt bookkeeping after a transient failure
	RecordAttempt(ctx context.Context, entry *SyncQueueEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	// CountForEntity counts queued entries touching the entity
	CountForEntity(ctx context.Context, entityID uuid.UUID) (int64, error)
	// RebaseVersion moves later entries of the entity from an old base token
	// to the one the server just issued, so chained offline edits replay
	// against the version produced by their predecessor.
	RebaseVersion(ctx context.Context, entityID uuid.UUID, from, to string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// SyncDeadLetter is a queue entry the server rejected permanently. It is kept
// so an operator can see what was dropped and re-queue or discard it.
type SyncDeadLetter struct {
	ID            uuid.UUID
	Entry         SyncQueueEntry
	Kind          FailureKind
	Code          string
	RemoteMessage string
	CreatedAt     time.Time
}

// NewSyncDeadLetter builds a dead letter from an entry and its classified failure
func NewSyncDeadLetter(entry *SyncQueueEntry, kind FailureKind, code, message string) *SyncDeadLetter {
	return &SyncDeadLetter{
		ID:            uuid.New(),
		Entry:         *entry,
		Kind:          kind,
		Code:          code,
		RemoteMessage: message,
		CreatedAt:     time.Now().UTC(),
	}
}

// DeadLetterRepository persists dropped entries
type DeadLetterRepository interface {
	Save(ctx context.Context, letter *SyncDeadLetter) error
	List(ctx context.Context, limit int) ([]*SyncDeadLetter, error)
	FindByID(ctx context.Context, id uuid.UUID) (*SyncDeadLetter, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int64, error)
}
