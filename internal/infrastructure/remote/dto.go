package remote

import (
	"fmt"
	"time"

	"github.com/erp/pos/internal/domain/coupon"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderDTO is the wire form of an order. It is also the payload of a queued
// order CREATE, so the entry replays exactly what was taken at the terminal.
type OrderDTO struct {
	ID          uuid.UUID       `json:"id" validate:"required"`
	Type        order.Type      `json:"type" validate:"required"`
	BranchID    uuid.UUID       `json:"branch_id" validate:"required"`
	TableID     *uuid.UUID      `json:"table_id,omitempty"`
	CustomerRef string          `json:"customer_ref,omitempty"`
	Items       []ItemDTO       `json:"items" validate:"required,min=1,dive"`
	Status      order.Status    `json:"status" validate:"required"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	CouponCode  string          `json:"coupon_code,omitempty"`
	Payments    []PaymentDTO    `json:"payments,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ItemDTO is one cart line on the wire
type ItemDTO struct {
	CartID     string          `json:"cart_id" validate:"required"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity" validate:"min=1"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Modifiers  []ModifierDTO   `json:"modifiers,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// ModifierDTO is a priced item option
type ModifierDTO struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// PaymentDTO is a payment on the wire
type PaymentDTO struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
}

// NewOrderDTO renders a local order for the server
func NewOrderDTO(o *order.Order) OrderDTO {
	dto := OrderDTO{
		ID:          o.ID,
		Type:        o.Type,
		BranchID:    o.BranchID,
		TableID:     o.TableID,
		CustomerRef: o.CustomerRef,
		Items:       make([]ItemDTO, len(o.Items)),
		Status:      o.Status,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		Tax:         o.Tax,
		Total:       o.Total,
		CouponCode:  o.CouponCode,
		Notes:       o.Notes,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	for i, item := range o.Items {
		mods := make([]ModifierDTO, len(item.Modifiers))
		for j, m := range item.Modifiers {
			mods[j] = ModifierDTO(m)
		}
		dto.Items[i] = ItemDTO{
			CartID:     item.CartID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Modifiers:  mods,
			Notes:      item.Notes,
		}
	}
	for _, p := range o.Payments {
		dto.Payments = append(dto.Payments, PaymentDTO(p))
	}
	return dto
}

// ToOrder maps a server order to a SYNCED domain order. Totals must agree
// within order.TotalTolerance.
func (d OrderDTO) ToOrder() (*order.Order, error) {
	if !d.Type.IsValid() {
		return nil, fmt.Errorf("order %s: unknown type %q", d.ID, d.Type)
	}
	if !d.Status.IsValid() {
		return nil, fmt.Errorf("order %s: unknown status %q", d.ID, d.Status)
	}
	o := &order.Order{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: d.ID, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()},
			SyncStatus: shared.SyncStatusSynced,
		},
		Type:        d.Type,
		BranchID:    d.BranchID,
		TableID:     d.TableID,
		CustomerRef: d.CustomerRef,
		Items:       make([]order.Item, len(d.Items)),
		Status:      d.Status,
		Subtotal:    d.Subtotal,
		Discount:    d.Discount,
		Tax:         d.Tax,
		Total:       d.Total,
		CouponCode:  d.CouponCode,
		Notes:       d.Notes,
	}
	for i, item := range d.Items {
		var mods []order.Modifier
		for _, m := range item.Modifiers {
			mods = append(mods, order.Modifier(m))
		}
		o.Items[i] = order.Item{
			CartID:     item.CartID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Modifiers:  mods,
			Notes:      item.Notes,
		}
	}
	for _, p := range d.Payments {
		o.Payments = append(o.Payments, order.Payment(p))
	}
	if !o.TotalsConsistent(order.TotalTolerance) {
		return nil, fmt.Errorf("order %s: total %s does not match %s - %s + %s", d.ID, d.Total, d.Subtotal, d.Discount, d.Tax)
	}
	return o, nil
}

// StatusRequest moves an order through its lifecycle on the server. Queued
// ORDER_STATUS entries carry it as payload.
type StatusRequest struct {
	Status            order.Status `json:"status" validate:"required"`
	ChangedBy         string       `json:"changed_by"`
	ExpectedUpdatedAt string       `json:"expected_updated_at,omitempty"`
}

// DeleteRequest is the payload of a queued DELETE
type DeleteRequest struct {
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty"`
}

// OrderFilter narrows ListOrders
type OrderFilter struct {
	BranchID uuid.UUID
	Status   order.Status
	From     time.Time
	To       time.Time
	Limit    int
}

// TableDTO is the wire form of a table
type TableDTO struct {
	ID                uuid.UUID       `json:"id"`
	BranchID          uuid.UUID       `json:"branch_id"`
	ZoneID            uuid.UUID       `json:"zone_id"`
	Name              string          `json:"name"`
	Seats             int             `json:"seats"`
	PosX              float64         `json:"pos_x"`
	PosY              float64         `json:"pos_y"`
	Shape             string          `json:"shape,omitempty"`
	Status            table.Status    `json:"status"`
	CurrentOrderID    *uuid.UUID      `json:"current_order_id,omitempty"`
	CurrentOrderTotal decimal.Decimal `json:"current_order_total"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ToTable maps a server table to a SYNCED domain table
func (d TableDTO) ToTable() (*table.Table, error) {
	if !d.Status.IsValid() {
		return nil, fmt.Errorf("table %s: unknown status %q", d.ID, d.Status)
	}
	return &table.Table{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: d.ID, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()},
			SyncStatus: shared.SyncStatusSynced,
		},
		BranchID:          d.BranchID,
		ZoneID:            d.ZoneID,
		Name:              d.Name,
		Seats:             d.Seats,
		PosX:              d.PosX,
		PosY:              d.PosY,
		Shape:             d.Shape,
		Status:            d.Status,
		CurrentOrderID:    d.CurrentOrderID,
		CurrentOrderTotal: d.CurrentOrderTotal,
	}, nil
}

// ZoneDTO is the wire form of a zone
type ZoneDTO struct {
	ID        uuid.UUID `json:"id"`
	BranchID  uuid.UUID `json:"branch_id"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToZone maps a server zone
func (d ZoneDTO) ToZone() *table.Zone {
	return &table.Zone{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: d.ID, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()},
			SyncStatus: shared.SyncStatusSynced,
		},
		BranchID:  d.BranchID,
		Name:      d.Name,
		SortOrder: d.SortOrder,
	}
}

// TableStatusRequest sets a table's status by hand
type TableStatusRequest struct {
	Status            table.Status `json:"status" validate:"required"`
	ExpectedUpdatedAt string       `json:"expected_updated_at,omitempty"`
}

// TransferRequest is table.TransferIntent plus the order's version token
type TransferRequest struct {
	table.TransferIntent
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty"`
}

// MoveItemsRequest is table.MoveItemsIntent plus the source order's version token
type MoveItemsRequest struct {
	table.MoveItemsIntent
	ExpectedUpdatedAt string `json:"expected_updated_at,omitempty"`
}

// Floor is a branch's zones and tables
type Floor struct {
	Zones  []*table.Zone
	Tables []*table.Table
}

// FloorChange is the server's view of everything a floor operation touched
type FloorChange struct {
	Tables []*table.Table
	Orders []*order.Order
}

type floorDTO struct {
	Zones  []ZoneDTO  `json:"zones"`
	Tables []TableDTO `json:"tables"`
}

type floorChangeDTO struct {
	Tables []TableDTO `json:"tables"`
	Orders []OrderDTO `json:"orders"`
}

func (d floorChangeDTO) toDomain() (*FloorChange, error) {
	fc := &FloorChange{}
	for _, t := range d.Tables {
		tbl, err := t.ToTable()
		if err != nil {
			return nil, err
		}
		fc.Tables = append(fc.Tables, tbl)
	}
	for _, o := range d.Orders {
		ord, err := o.ToOrder()
		if err != nil {
			return nil, err
		}
		fc.Orders = append(fc.Orders, ord)
	}
	return fc, nil
}

type couponResultDTO struct {
	Valid    bool                `json:"valid"`
	Discount decimal.Decimal     `json:"discount"`
	Reason   coupon.RejectReason `json:"reason,omitempty"`
	Message  string              `json:"message,omitempty"`
}
