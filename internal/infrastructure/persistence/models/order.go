package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/erp/pos/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	AggregateModel
	Type        order.Type       `gorm:"type:varchar(20);not null"`
	BranchID    uuid.UUID        `gorm:"type:uuid;not null;index"`
	TableID     *uuid.UUID       `gorm:"type:uuid;index"`
	CustomerRef string           `gorm:"type:varchar(100)"`
	Items       []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	Status      order.Status     `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Subtotal    decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Discount    decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Tax         decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Total       decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	CouponCode  string           `gorm:"type:varchar(50)"`
	Payments    string           `gorm:"type:text"`
	Notes       string           `gorm:"type:text"`
	ChangedBy   string           `gorm:"type:varchar(100)"`
	// Confirmed holds the last server-confirmed copy as JSON of an OrderModel
	Confirmed string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is one cart line. The cart id is unique per order only.
type OrderItemModel struct {
	OrderID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CartID     string          `gorm:"type:varchar(64);primaryKey"`
	Position   int             `gorm:"not null;default:0"`
	MenuItemID uuid.UUID       `gorm:"type:uuid"`
	Name       string          `gorm:"type:varchar(200);not null"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Modifiers  string          `gorm:"type:text"`
	Notes      string          `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

type modifierRecord struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type paymentRecord struct {
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    time.Time       `json:"paid_at"`
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() (*order.Order, error) {
	o := &order.Order{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Type:              m.Type,
		BranchID:          m.BranchID,
		TableID:           m.TableID,
		CustomerRef:       m.CustomerRef,
		Status:            m.Status,
		Subtotal:          m.Subtotal,
		Discount:          m.Discount,
		Tax:               m.Tax,
		Total:             m.Total,
		CouponCode:        m.CouponCode,
		Notes:             m.Notes,
		ChangedBy:         m.ChangedBy,
		Items:             make([]order.Item, 0, len(m.Items)),
	}
	for _, im := range sortedItems(m.Items) {
		item, err := im.ToDomain()
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if m.Payments != "" {
		var records []paymentRecord
		if err := json.Unmarshal([]byte(m.Payments), &records); err != nil {
			return nil, fmt.Errorf("decode payments of order %s: %w", m.ID, err)
		}
		for _, p := range records {
			o.Payments = append(o.Payments, order.Payment{Method: p.Method, Amount: p.Amount, Reference: p.Reference, PaidAt: p.PaidAt})
		}
	}
	if m.Confirmed != "" {
		var confirmed OrderModel
		if err := json.Unmarshal([]byte(m.Confirmed), &confirmed); err != nil {
			return nil, fmt.Errorf("decode confirmed copy of order %s: %w", m.ID, err)
		}
		c, err := confirmed.ToDomain()
		if err != nil {
			return nil, err
		}
		o.Confirmed = c
	}
	return o, nil
}

// FromDomainOrder converts a domain Order to its persistence model
func FromDomainOrder(o *order.Order) (*OrderModel, error) {
	m := &OrderModel{
		Type:        o.Type,
		BranchID:    o.BranchID,
		TableID:     o.TableID,
		CustomerRef: o.CustomerRef,
		Status:      o.Status,
		Subtotal:    o.Subtotal,
		Discount:    o.Discount,
		Tax:         o.Tax,
		Total:       o.Total,
		CouponCode:  o.CouponCode,
		Notes:       o.Notes,
		ChangedBy:   o.ChangedBy,
	}
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)

	m.Items = make([]OrderItemModel, 0, len(o.Items))
	for i, item := range o.Items {
		im, err := fromDomainItem(o.ID, i, item)
		if err != nil {
			return nil, err
		}
		m.Items = append(m.Items, im)
	}

	if len(o.Payments) > 0 {
		records := make([]paymentRecord, len(o.Payments))
		for i, p := range o.Payments {
			records[i] = paymentRecord{Method: p.Method, Amount: p.Amount, Reference: p.Reference, PaidAt: p.PaidAt}
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return nil, err
		}
		m.Payments = string(raw)
	}

	if o.Confirmed != nil {
		cm, err := FromDomainOrder(o.Confirmed)
		if err != nil {
			return nil, err
		}
		cm.Confirmed = ""
		raw, err := json.Marshal(cm)
		if err != nil {
			return nil, err
		}
		m.Confirmed = string(raw)
	}
	return m, nil
}

// ToDomain converts the persistence model to a domain Item
func (m *OrderItemModel) ToDomain() (order.Item, error) {
	item := order.Item{
		CartID:     m.CartID,
		MenuItemID: m.MenuItemID,
		Name:       m.Name,
		Quantity:   m.Quantity,
		UnitPrice:  m.UnitPrice,
		Notes:      m.Notes,
	}
	if m.Modifiers != "" {
		var records []modifierRecord
		if err := json.Unmarshal([]byte(m.Modifiers), &records); err != nil {
			return order.Item{}, fmt.Errorf("decode modifiers of cart line %s: %w", m.CartID, err)
		}
		for _, r := range records {
			item.Modifiers = append(item.Modifiers, order.Modifier{Name: r.Name, Price: r.Price})
		}
	}
	return item, nil
}

func fromDomainItem(orderID uuid.UUID, position int, item order.Item) (OrderItemModel, error) {
	m := OrderItemModel{
		OrderID:    orderID,
		CartID:     item.CartID,
		Position:   position,
		MenuItemID: item.MenuItemID,
		Name:       item.Name,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice,
		Notes:      item.Notes,
	}
	if len(item.Modifiers) > 0 {
		records := make([]modifierRecord, len(item.Modifiers))
		for i, mod := range item.Modifiers {
			records[i] = modifierRecord{Name: mod.Name, Price: mod.Price}
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return OrderItemModel{}, err
		}
		m.Modifiers = string(raw)
	}
	return m, nil
}

// sortedItems orders cart lines by position; preloads come back in any order
func sortedItems(items []OrderItemModel) []OrderItemModel {
	out := append([]OrderItemModel(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
