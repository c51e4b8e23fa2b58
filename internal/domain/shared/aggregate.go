package shared

import (
	"time"
)

// SyncStatus tells whether the local copy of an aggregate matches what the
// server last confirmed.
type SyncStatus string

const (
	SyncStatusSynced     SyncStatus = "SYNCED"
	SyncStatusPending    SyncStatus = "PENDING"
	SyncStatusConflicted SyncStatus = "CONFLICTED"
)

// LocalEntity is anything the local durable store can hold
type LocalEntity interface {
	Entity
	TouchLocal(at time.Time)
}

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	LocalEntity
	GetSyncStatus() SyncStatus
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	SyncStatus      SyncStatus
	LocalModifiedAt time.Time
	domainEvents    []DomainEvent
}

// GetSyncStatus returns the sync status
func (a *BaseAggregateRoot) GetSyncStatus() SyncStatus {
	return a.SyncStatus
}

// IsPending reports whether the aggregate carries unconfirmed local changes
func (a *BaseAggregateRoot) IsPending() bool {
	return a.SyncStatus == SyncStatusPending
}

// TouchLocal stamps the local modification time. Called by the store on every write.
func (a *BaseAggregateRoot) TouchLocal(at time.Time) {
	a.LocalModifiedAt = at
}

// MarkPending flags the aggregate as speculatively modified
func (a *BaseAggregateRoot) MarkPending() {
	a.SyncStatus = SyncStatusPending
}

// MarkSynced records a server confirmation carrying the new version token
func (a *BaseAggregateRoot) MarkSynced(updatedAt time.Time) {
	a.SyncStatus = SyncStatusSynced
	if !updatedAt.IsZero() {
		a.UpdatedAt = updatedAt
	}
}

// MarkConflicted flags the aggregate as diverged from the server
func (a *BaseAggregateRoot) MarkConflicted() {
	a.SyncStatus = SyncStatusConflicted
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates an aggregate that has not been confirmed by the server yet
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity:   NewBaseEntity(),
		SyncStatus:   SyncStatusPending,
		domainEvents: make([]DomainEvent, 0),
	}
}
