package shared

import (
	"github.com/google/uuid"
)

// Event types published on the bus for the operator
const (
	EventTypeSyncEntryDropped = "sync.entry_dropped"
	EventTypeSyncConflict     = "sync.conflict"
)

// SyncNotificationEvent tells the operator that a local change did not reach
// the server as made. Published when a queued entry is dropped and when an
// online write hits a version conflict.
type SyncNotificationEvent struct {
	BaseDomainEvent
	EntityType   EntityType  `json:"entity_type"`
	Operation    Operation   `json:"operation"`
	Kind         FailureKind `json:"kind"`
	Code         string      `json:"code,omitempty"`
	Message      string      `json:"message"`
	DeadLetterID *uuid.UUID  `json:"dead_letter_id,omitempty"`
	RolledBack   bool        `json:"rolled_back"`
}

// NewSyncNotificationEvent builds a notification for an entity
func NewSyncNotificationEvent(eventType string, entityType EntityType, entityID uuid.UUID, op Operation, kind FailureKind, code, message string) *SyncNotificationEvent {
	return &SyncNotificationEvent{
		BaseDomainEvent: NewBaseDomainEvent(eventType, string(entityType), entityID),
		EntityType:      entityType,
		Operation:       op,
		Kind:            kind,
		Code:            code,
		Message:         message,
	}
}
