package models

import (
	"encoding/json"
	"time"

	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/google/uuid"
)

// SnapshotModel stores one cached reference document
type SnapshotModel struct {
	BaseModel
	BranchID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_branch_kind,priority:1"`
	Kind            snapshot.Kind `gorm:"type:varchar(20);not null;uniqueIndex:idx_snapshot_branch_kind,priority:2"`
	Document        string        `gorm:"type:text;not null"`
	FetchedAt       time.Time     `gorm:"not null"`
	LocalModifiedAt time.Time
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "snapshots"
}

// ToDomain converts the persistence model to a domain Snapshot
func (m *SnapshotModel) ToDomain() (*snapshot.Snapshot, error) {
	return &snapshot.Snapshot{
		BaseEntity:      m.BaseModel.ToDomain(),
		BranchID:        m.BranchID,
		Kind:            m.Kind,
		Document:        json.RawMessage(m.Document),
		FetchedAt:       m.FetchedAt,
		LocalModifiedAt: m.LocalModifiedAt,
	}, nil
}

// FromDomainSnapshot converts a domain Snapshot to its persistence model
func FromDomainSnapshot(s *snapshot.Snapshot) (*SnapshotModel, error) {
	m := &SnapshotModel{
		BranchID:        s.BranchID,
		Kind:            s.Kind,
		Document:        string(s.Document),
		FetchedAt:       s.FetchedAt,
		LocalModifiedAt: s.LocalModifiedAt,
	}
	m.FromDomainBaseEntity(s.BaseEntity)
	return m, nil
}
