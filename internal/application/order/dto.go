package order

import (
	"time"

	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Order DTOs ====================

// CreateOrderRequest represents an order taken at the terminal
type CreateOrderRequest struct {
	Type        string           `json:"type" validate:"required,oneof=DINE_IN TAKEAWAY DELIVERY PICKUP"`
	TableID     *uuid.UUID       `json:"table_id"`
	CustomerRef string           `json:"customer_ref" validate:"max=100"`
	Items       []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	CouponCode  string           `json:"coupon_code" validate:"max=64"`
	Discount    *decimal.Decimal `json:"discount"`
	Tax         *decimal.Decimal `json:"tax"`
	Payments    []PaymentInput   `json:"payments" validate:"dive"`
	Notes       string           `json:"notes" validate:"max=500"`
}

// OrderItemInput represents one cart line in a create request
type OrderItemInput struct {
	CartID     string          `json:"cart_id" validate:"max=64"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name" validate:"required,max=200"`
	Quantity   int             `json:"quantity" validate:"min=1"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Modifiers  []ModifierInput `json:"modifiers" validate:"dive"`
	Notes      string          `json:"notes" validate:"max=500"`
}

// ModifierInput is a priced option on a cart line
type ModifierInput struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

// PaymentInput records money taken with the order
type PaymentInput struct {
	Method    string          `json:"method" validate:"required,max=30"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=100"`
}

// StatusActionRequest moves an order through its lifecycle
type StatusActionRequest struct {
	Action    string `json:"action" validate:"required,oneof=START MARK_READY DISPATCH DELIVER CANCEL"`
	ChangedBy string `json:"changed_by" validate:"max=100"`
}

// OrderListFilter narrows List over the local store
type OrderListFilter struct {
	Status     string     `form:"status"`
	TableID    *uuid.UUID `form:"table_id"`
	SyncStatus string     `form:"sync_status"`
	OpenOnly   bool       `form:"open"`
	Limit      int        `form:"limit"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Type            string              `json:"type"`
	BranchID        uuid.UUID           `json:"branch_id"`
	TableID         *uuid.UUID          `json:"table_id,omitempty"`
	CustomerRef     string              `json:"customer_ref,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	Status          string              `json:"status"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Discount        decimal.Decimal     `json:"discount"`
	Tax             decimal.Decimal     `json:"tax"`
	Total           decimal.Decimal     `json:"total"`
	PaidAmount      decimal.Decimal     `json:"paid_amount"`
	CouponCode      string              `json:"coupon_code,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	SyncStatus      string              `json:"sync_status"`
	ConfirmedStatus string              `json:"confirmed_status,omitempty"`
	Version         string              `json:"version,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	LocalModifiedAt time.Time           `json:"local_modified_at"`
}

// OrderItemResponse represents a cart line in API responses
type OrderItemResponse struct {
	CartID     string          `json:"cart_id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
}

// toItems converts the request lines to domain items
func (r CreateOrderRequest) toItems() []order.Item {
	items := make([]order.Item, len(r.Items))
	for i, in := range r.Items {
		mods := make([]order.Modifier, len(in.Modifiers))
		for j, m := range in.Modifiers {
			mods[j] = order.Modifier{Name: m.Name, Price: m.Price}
		}
		items[i] = order.Item{
			CartID:     in.CartID,
			MenuItemID: in.MenuItemID,
			Name:       in.Name,
			Quantity:   in.Quantity,
			UnitPrice:  in.UnitPrice,
			Modifiers:  mods,
			Notes:      in.Notes,
		}
	}
	return items
}

// matches reports whether o passes the filter
func (f OrderListFilter) matches(o *order.Order) bool {
	if f.Status != "" && string(o.Status) != f.Status {
		return false
	}
	if f.TableID != nil && (o.TableID == nil || *o.TableID != *f.TableID) {
		return false
	}
	if f.SyncStatus != "" && string(o.SyncStatus) != f.SyncStatus {
		return false
	}
	if f.OpenOnly && !o.IsOpen() {
		return false
	}
	return true
}

// ToOrderResponse converts a domain Order to OrderResponse
func ToOrderResponse(o *order.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		Type:            string(o.Type),
		BranchID:        o.BranchID,
		TableID:         o.TableID,
		CustomerRef:     o.CustomerRef,
		Items:           make([]OrderItemResponse, len(o.Items)),
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Tax:             o.Tax,
		Total:           o.Total,
		PaidAmount:      o.PaidAmount(),
		CouponCode:      o.CouponCode,
		Notes:           o.Notes,
		SyncStatus:      string(o.SyncStatus),
		Version:         o.BaseVersion(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		LocalModifiedAt: o.LocalModifiedAt,
	}
	if o.Confirmed != nil && o.SyncStatus == shared.SyncStatusPending {
		resp.ConfirmedStatus = string(o.Confirmed.Status)
	}
	for i, item := range o.Items {
		resp.Items[i] = OrderItemResponse{
			CartID:     item.CartID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Amount:     item.Amount(),
			Notes:      item.Notes,
		}
	}
	return resp
}

// ToOrderResponses converts a list of orders
func ToOrderResponses(orders []*order.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = ToOrderResponse(o)
	}
	return out
}
