package table

import (
	"fmt"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the occupancy state of a table
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOccupied  Status = "OCCUPIED"
	StatusReserved  Status = "RESERVED"
	StatusCleaning  Status = "CLEANING"
)

// IsValid checks if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusCleaning:
		return true
	}
	return false
}

// Table is a seat group on the floor plan. CurrentOrderTotal is a display
// cache of the open order's total. Position and shape are carried for the
// floor plan and not interpreted here.
type Table struct {
	shared.BaseAggregateRoot
	BranchID          uuid.UUID
	ZoneID            uuid.UUID
	Name              string
	Seats             int
	PosX              float64
	PosY              float64
	Shape             string
	Status            Status
	CurrentOrderID    *uuid.UUID
	CurrentOrderTotal decimal.Decimal
	Confirmed         *Table
}

// HasOpenOrder reports whether an order is seated at the table
func (t *Table) HasOpenOrder() bool {
	return t.CurrentOrderID != nil
}

// Seat marks the table occupied by the order
func (t *Table) Seat(orderID uuid.UUID, total decimal.Decimal) {
	t.CurrentOrderID = &orderID
	t.CurrentOrderTotal = total
	t.Status = StatusOccupied
}

// Release frees the table
func (t *Table) Release() {
	t.CurrentOrderID = nil
	t.CurrentOrderTotal = decimal.Zero
	t.Status = StatusAvailable
}

// SetStatus changes the status by hand. OCCUPIED comes only from seating an
// order, and a table holding an order can't be freed this way.
func (t *Table) SetStatus(status Status) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_TABLE_STATUS", fmt.Sprintf("Unknown table status %q", status))
	}
	if status == StatusOccupied {
		return shared.NewDomainError("INVALID_TABLE_STATUS", "Tables become occupied by seating an order")
	}
	if t.HasOpenOrder() {
		return shared.NewDomainError("TABLE_HAS_ORDER", fmt.Sprintf("Table %s has an open order", t.Name))
	}
	t.BeginSpeculative()
	t.Status = status
	return nil
}

// BeginSpeculative keeps the server-confirmed copy aside before a local change
func (t *Table) BeginSpeculative() {
	if t.Confirmed == nil && t.SyncStatus == shared.SyncStatusSynced {
		t.Confirmed = t.snapshot()
	}
	t.MarkPending()
}

// BaseVersion is the server version token local changes are made against
func (t *Table) BaseVersion() string {
	switch {
	case t.Confirmed != nil:
		return shared.FormatVersion(t.Confirmed.UpdatedAt)
	case t.SyncStatus == shared.SyncStatusSynced:
		return shared.FormatVersion(t.UpdatedAt)
	}
	return ""
}

// Confirm records the server's copy; see order.Order.Confirm
func (t *Table) Confirm(remote *Table, stillPending bool) {
	if stillPending {
		t.Confirmed = remote.snapshot()
		t.MarkPending()
		return
	}
	*t = *remote.Clone()
	t.Confirmed = nil
	t.MarkSynced(remote.UpdatedAt)
}

// Rollback restores the last confirmed copy or flags the table CONFLICTED
func (t *Table) Rollback() bool {
	if t.Confirmed == nil {
		t.MarkConflicted()
		return false
	}
	restored := t.Confirmed.Clone()
	restored.Confirmed = nil
	restored.MarkSynced(restored.UpdatedAt)
	*t = *restored
	return true
}

func (t *Table) snapshot() *Table {
	c := t.Clone()
	c.Confirmed = nil
	return c
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	c := *t
	c.ClearDomainEvents()
	if t.CurrentOrderID != nil {
		id := *t.CurrentOrderID
		c.CurrentOrderID = &id
	}
	if t.Confirmed != nil {
		c.Confirmed = t.Confirmed.Clone()
	}
	return &c
}

// Zone groups tables on the floor plan
type Zone struct {
	shared.BaseAggregateRoot
	BranchID  uuid.UUID
	Name      string
	SortOrder int
}
