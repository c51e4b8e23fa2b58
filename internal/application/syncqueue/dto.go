package syncqueue

import (
	"encoding/json"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// EntryResponse represents a queued entry in API responses
type EntryResponse struct {
	ID          uuid.UUID       `json:"id"`
	Seq         int64           `json:"seq"`
	EntityType  string          `json:"entity_type"`
	EntityID    uuid.UUID       `json:"entity_id"`
	Operation   string          `json:"operation"`
	Payload     json.RawMessage `json:"payload"`
	BaseVersion string          `json:"base_version,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// DeadLetterResponse represents a dropped entry in API responses
type DeadLetterResponse struct {
	ID            uuid.UUID     `json:"id"`
	Entry         EntryResponse `json:"entry"`
	Kind          string        `json:"kind"`
	Code          string        `json:"code,omitempty"`
	RemoteMessage string        `json:"remote_message"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NotificationResponse represents an operator notification
type NotificationResponse struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	EntityType   string     `json:"entity_type"`
	EntityID     uuid.UUID  `json:"entity_id"`
	Operation    string     `json:"operation,omitempty"`
	Kind         string     `json:"kind"`
	Code         string     `json:"code,omitempty"`
	Message      string     `json:"message"`
	DeadLetterID *uuid.UUID `json:"dead_letter_id,omitempty"`
	RolledBack   bool       `json:"rolled_back"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// ToEntryResponse converts a queue entry
func ToEntryResponse(e *shared.SyncQueueEntry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		Seq:         e.Seq,
		EntityType:  string(e.EntityType),
		EntityID:    e.EntityID,
		Operation:   string(e.Operation),
		Payload:     e.Payload,
		BaseVersion: e.BaseVersion,
		Attempts:    e.Attempts,
		LastError:   e.LastError,
		EnqueuedAt:  e.EnqueuedAt,
	}
}

// ToDeadLetterResponse converts a dead letter
func ToDeadLetterResponse(l *shared.SyncDeadLetter) DeadLetterResponse {
	return DeadLetterResponse{
		ID:            l.ID,
		Entry:         ToEntryResponse(&l.Entry),
		Kind:          string(l.Kind),
		Code:          l.Code,
		RemoteMessage: l.RemoteMessage,
		CreatedAt:     l.CreatedAt,
	}
}

// ToNotificationResponse converts a notification event
func ToNotificationResponse(ev *shared.SyncNotificationEvent) NotificationResponse {
	return NotificationResponse{
		ID:           ev.EventID(),
		Type:         ev.EventType(),
		EntityType:   string(ev.EntityType),
		EntityID:     ev.AggregateID(),
		Operation:    string(ev.Operation),
		Kind:         string(ev.Kind),
		Code:         ev.Code,
		Message:      ev.Message,
		DeadLetterID: ev.DeadLetterID,
		RolledBack:   ev.RolledBack,
		OccurredAt:   ev.OccurredAt(),
	}
}
