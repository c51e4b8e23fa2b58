package table

import (
	"slices"
	"strings"
	"time"

	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/table"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Floor DTOs ====================

// SetStatusRequest changes a table's status by hand
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=AVAILABLE RESERVED CLEANING"`
}

// TransferRequest moves the open order of one table to a free table
type TransferRequest struct {
	FromTableID uuid.UUID `json:"from_table_id" validate:"required"`
	ToTableID   uuid.UUID `json:"to_table_id" validate:"required"`
}

// MergeRequest moves cart lines into the open order of another table. No
// cart IDs means the whole order.
type MergeRequest struct {
	FromTableID uuid.UUID `json:"from_table_id" validate:"required"`
	ToTableID   uuid.UUID `json:"to_table_id" validate:"required"`
	CartIDs     []string  `json:"cart_ids" validate:"dive,required"`
}

// SplitRequest moves cart lines into a new order on a free table
type SplitRequest struct {
	FromTableID uuid.UUID `json:"from_table_id" validate:"required"`
	ToTableID   uuid.UUID `json:"to_table_id" validate:"required"`
	CartIDs     []string  `json:"cart_ids" validate:"required,min=1,dive,required"`
}

// TableResponse represents a table in API responses
type TableResponse struct {
	ID                uuid.UUID       `json:"id"`
	ZoneID            uuid.UUID       `json:"zone_id"`
	Name              string          `json:"name"`
	Seats             int             `json:"seats"`
	PosX              float64         `json:"pos_x"`
	PosY              float64         `json:"pos_y"`
	Shape             string          `json:"shape,omitempty"`
	Status            string          `json:"status"`
	CurrentOrderID    *uuid.UUID      `json:"current_order_id,omitempty"`
	CurrentOrderTotal decimal.Decimal `json:"current_order_total"`
	SyncStatus        string          `json:"sync_status"`
	Version           string          `json:"version,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ZoneResponse represents a zone in API responses
type ZoneResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
}

// FloorResponse is the floor plan of the branch
type FloorResponse struct {
	Zones  []ZoneResponse  `json:"zones"`
	Tables []TableResponse `json:"tables"`
}

// OrderSummary is what a floor operation reports about the orders it moved
type OrderSummary struct {
	ID         uuid.UUID       `json:"id"`
	TableID    *uuid.UUID      `json:"table_id,omitempty"`
	Status     string          `json:"status"`
	Items      int             `json:"items"`
	Total      decimal.Decimal `json:"total"`
	SyncStatus string          `json:"sync_status"`
}

// FloorChangeResponse lists everything a floor operation touched
type FloorChangeResponse struct {
	Tables []TableResponse `json:"tables"`
	Orders []OrderSummary  `json:"orders"`
	Queued bool            `json:"queued"`
}

// ToTableResponse converts a domain Table to TableResponse
func ToTableResponse(t *table.Table) TableResponse {
	return TableResponse{
		ID:                t.ID,
		ZoneID:            t.ZoneID,
		Name:              t.Name,
		Seats:             t.Seats,
		PosX:              t.PosX,
		PosY:              t.PosY,
		Shape:             t.Shape,
		Status:            string(t.Status),
		CurrentOrderID:    t.CurrentOrderID,
		CurrentOrderTotal: t.CurrentOrderTotal,
		SyncStatus:        string(t.SyncStatus),
		Version:           t.BaseVersion(),
		UpdatedAt:         t.UpdatedAt,
	}
}

// ToOrderSummary converts a domain Order to OrderSummary
func ToOrderSummary(o *order.Order) OrderSummary {
	return OrderSummary{
		ID:         o.ID,
		TableID:    o.TableID,
		Status:     string(o.Status),
		Items:      len(o.Items),
		Total:      o.Total,
		SyncStatus: string(o.SyncStatus),
	}
}

// ToFloorResponse sorts zones by their floor-plan order and tables by name
func ToFloorResponse(zones []*table.Zone, tables []*table.Table) FloorResponse {
	slices.SortFunc(zones, func(a, b *table.Zone) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.Name, b.Name)
	})
	slices.SortFunc(tables, func(a, b *table.Table) int {
		return strings.Compare(a.Name, b.Name)
	})

	resp := FloorResponse{
		Zones:  make([]ZoneResponse, len(zones)),
		Tables: make([]TableResponse, len(tables)),
	}
	for i, z := range zones {
		resp.Zones[i] = ZoneResponse{ID: z.ID, Name: z.Name, SortOrder: z.SortOrder}
	}
	for i, t := range tables {
		resp.Tables[i] = ToTableResponse(t)
	}
	return resp
}

func toFloorChangeResponse(s *floorState, queued bool) *FloorChangeResponse {
	resp := &FloorChangeResponse{
		Tables: make([]TableResponse, 0, len(s.tables)),
		Orders: make([]OrderSummary, 0, len(s.orders)),
		Queued: queued,
	}
	for _, t := range s.tables {
		resp.Tables = append(resp.Tables, ToTableResponse(t))
	}
	for _, o := range s.orders {
		resp.Orders = append(resp.Orders, ToOrderSummary(o))
	}
	return resp
}
