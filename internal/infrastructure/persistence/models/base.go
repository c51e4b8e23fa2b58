package models

import (
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity. UpdatedAt is the server version token,
// so gorm must not touch it on save; VersionToken keeps the exact token text
// because some databases truncate timestamps to microseconds.
type BaseModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
	VersionToken string    `gorm:"type:varchar(40)"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	updated := m.UpdatedAt
	if t, err := shared.ParseVersion(m.VersionToken); err == nil && !t.IsZero() {
		updated = t
	}
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: updated,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
	m.VersionToken = shared.FormatVersion(e.UpdatedAt)
}

// AggregateModel adds the local sync bookkeeping every cached aggregate carries
type AggregateModel struct {
	BaseModel
	SyncStatus      shared.SyncStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	LocalModifiedAt time.Time
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.SyncStatus = a.SyncStatus
	m.LocalModifiedAt = a.LocalModifiedAt
}

// ToDomainAggregateRoot builds the domain BaseAggregateRoot
func (m *AggregateModel) ToDomainAggregateRoot() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{
		BaseEntity:      m.BaseModel.ToDomain(),
		SyncStatus:      m.SyncStatus,
		LocalModifiedAt: m.LocalModifiedAt,
	}
}

// All lists every model the local store migrates
func All() []any {
	return []any{
		&OrderModel{},
		&OrderItemModel{},
		&TableModel{},
		&ZoneModel{},
		&SnapshotModel{},
		&SyncQueueModel{},
		&DeadLetterModel{},
		&AppliedKeyModel{},
	}
}
