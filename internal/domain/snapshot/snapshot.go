package snapshot

import (
	"encoding/json"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// Kind names a read-only reference document cached for offline screens
type Kind string

const (
	KindMenu      Kind = "menu"
	KindInventory Kind = "inventory"
	KindSettings  Kind = "settings"
)

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindMenu, KindInventory, KindSettings:
		return true
	}
	return false
}

// Snapshot is the last copy of a reference document fetched from the server.
// The terminal never edits it; the document is opaque JSON.
type Snapshot struct {
	shared.BaseEntity
	BranchID        uuid.UUID
	Kind            Kind
	Document        json.RawMessage
	FetchedAt       time.Time
	LocalModifiedAt time.Time
}

// TouchLocal implements shared.LocalEntity
func (s *Snapshot) TouchLocal(at time.Time) {
	s.LocalModifiedAt = at
}

// KeyFor derives a stable id per branch and kind so that a refresh
// overwrites the previous copy.
func KeyFor(branchID uuid.UUID, kind Kind) uuid.UUID {
	return uuid.NewSHA1(branchID, []byte(kind))
}

// New builds a snapshot for a fetched document
func New(branchID uuid.UUID, kind Kind, doc json.RawMessage, updatedAt time.Time) *Snapshot {
	now := time.Now().UTC()
	return &Snapshot{
		BaseEntity: shared.BaseEntity{ID: KeyFor(branchID, kind), CreatedAt: now, UpdatedAt: updatedAt},
		BranchID:   branchID,
		Kind:       kind,
		Document:   doc,
		FetchedAt:  now,
	}
}
