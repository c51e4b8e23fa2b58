package order

import (
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateType is the aggregate type name used on events
const AggregateType = "Order"

// Event type constants
const (
	EventTypeOrderCreated       = "OrderCreated"
	EventTypeOrderStatusChanged = "OrderStatusChanged"
)

// OrderCreatedEvent is raised when an order is taken at the terminal
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID  uuid.UUID       `json:"order_id"`
	Type     Type            `json:"type"`
	BranchID uuid.UUID       `json:"branch_id"`
	TableID  *uuid.UUID      `json:"table_id,omitempty"`
	Total    decimal.Decimal `json:"total"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateType, o.ID),
		OrderID:         o.ID,
		Type:            o.Type,
		BranchID:        o.BranchID,
		TableID:         o.TableID,
		Total:           o.Total,
	}
}

// OrderStatusChangedEvent is raised when an action moves an order
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID   uuid.UUID `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedBy string    `json:"changed_by"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, from, to Status) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateType, o.ID),
		OrderID:         o.ID,
		From:            from,
		To:              to,
		ChangedBy:       o.ChangedBy,
	}
}
