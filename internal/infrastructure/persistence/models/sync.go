package models

import (
	"encoding/json"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// SyncQueueModel is the persistence model for queued offline operations.
// Seq is the FIFO position and is assigned by the database.
type SyncQueueModel struct {
	Seq         int64             `gorm:"primaryKey;autoIncrement"`
	ID          uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	EntityType  shared.EntityType `gorm:"type:varchar(30);not null"`
	EntityID    uuid.UUID         `gorm:"type:uuid;not null;index"`
	Operation   shared.Operation  `gorm:"type:varchar(10);not null"`
	Payload     string            `gorm:"type:text;not null"`
	BaseVersion string            `gorm:"type:varchar(40)"`
	Attempts    int               `gorm:"not null;default:0"`
	LastError   string            `gorm:"type:text"`
	EnqueuedAt  time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncQueueModel) TableName() string {
	return "sync_queue"
}

// ToDomain converts the persistence model to a domain SyncQueueEntry
func (m *SyncQueueModel) ToDomain() *shared.SyncQueueEntry {
	return &shared.SyncQueueEntry{
		ID:          m.ID,
		Seq:         m.Seq,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		Operation:   m.Operation,
		Payload:     json.RawMessage(m.Payload),
		BaseVersion: m.BaseVersion,
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		EnqueuedAt:  m.EnqueuedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncQueueEntry
func (m *SyncQueueModel) FromDomain(e *shared.SyncQueueEntry) {
	m.Seq = e.Seq
	m.ID = e.ID
	m.EntityType = e.EntityType
	m.EntityID = e.EntityID
	m.Operation = e.Operation
	m.Payload = string(e.Payload)
	m.BaseVersion = e.BaseVersion
	m.Attempts = e.Attempts
	m.LastError = e.LastError
	m.EnqueuedAt = e.EnqueuedAt
}

// SyncQueueModelFromDomain creates a new persistence model from a domain SyncQueueEntry
func SyncQueueModelFromDomain(e *shared.SyncQueueEntry) *SyncQueueModel {
	m := &SyncQueueModel{}
	m.FromDomain(e)
	return m
}

// DeadLetterModel keeps a dropped queue entry together with why it was dropped
type DeadLetterModel struct {
	ID            uuid.UUID          `gorm:"type:uuid;primaryKey"`
	EntryID       uuid.UUID          `gorm:"type:uuid;not null;index"`
	EntrySeq      int64              `gorm:"not null"`
	EntityType    shared.EntityType  `gorm:"type:varchar(30);not null"`
	EntityID      uuid.UUID          `gorm:"type:uuid;not null;index"`
	Operation     shared.Operation   `gorm:"type:varchar(10);not null"`
	Payload       string             `gorm:"type:text;not null"`
	BaseVersion   string             `gorm:"type:varchar(40)"`
	Attempts      int                `gorm:"not null;default:0"`
	EnqueuedAt    time.Time          `gorm:"not null"`
	Kind          shared.FailureKind `gorm:"type:varchar(30);not null;index"`
	Code          string             `gorm:"type:varchar(50)"`
	RemoteMessage string             `gorm:"type:text"`
	CreatedAt     time.Time          `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (DeadLetterModel) TableName() string {
	return "sync_dead_letters"
}

// ToDomain converts the persistence model to a domain SyncDeadLetter
func (m *DeadLetterModel) ToDomain() *shared.SyncDeadLetter {
	return &shared.SyncDeadLetter{
		ID: m.ID,
		Entry: shared.SyncQueueEntry{
			ID:          m.EntryID,
			Seq:         m.EntrySeq,
			EntityType:  m.EntityType,
			EntityID:    m.EntityID,
			Operation:   m.Operation,
			Payload:     json.RawMessage(m.Payload),
			BaseVersion: m.BaseVersion,
			Attempts:    m.Attempts,
			EnqueuedAt:  m.EnqueuedAt,
		},
		Kind:          m.Kind,
		Code:          m.Code,
		RemoteMessage: m.RemoteMessage,
		CreatedAt:     m.CreatedAt,
	}
}

// DeadLetterModelFromDomain creates a new persistence model from a domain SyncDeadLetter
func DeadLetterModelFromDomain(d *shared.SyncDeadLetter) *DeadLetterModel {
	return &DeadLetterModel{
		ID:            d.ID,
		EntryID:       d.Entry.ID,
		EntrySeq:      d.Entry.Seq,
		EntityType:    d.Entry.EntityType,
		EntityID:      d.Entry.EntityID,
		Operation:     d.Entry.Operation,
		Payload:       string(d.Entry.Payload),
		BaseVersion:   d.Entry.BaseVersion,
		Attempts:      d.Entry.Attempts,
		EnqueuedAt:    d.Entry.EnqueuedAt,
		Kind:          d.Kind,
		Code:          d.Code,
		RemoteMessage: d.RemoteMessage,
		CreatedAt:     d.CreatedAt,
	}
}

// AppliedKeyModel remembers a queue entry the server already accepted
type AppliedKeyModel struct {
	Key       string    `gorm:"type:varchar(100);primaryKey"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AppliedKeyModel) TableName() string {
	return "sync_applied_keys"
}
