package order

import (
	"fmt"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the service mode of an order
type Type string

const (
	TypeDineIn   Type = "DINE_IN"
	TypeTakeaway Type = "TAKEAWAY"
	TypeDelivery Type = "DELIVERY"
	TypePickup   Type = "PICKUP"
)

// IsValid checks if the order type is known
func (t Type) IsValid() bool {
	switch t {
	case TypeDineIn, TypeTakeaway, TypeDelivery, TypePickup:
		return true
	}
	return false
}

// TotalTolerance is the rounding slack accepted when checking totals that came from the server
var TotalTolerance = decimal.NewFromFloat(0.01)

// Modifier is a priced option attached to an item
type Modifier struct {
	Name  string
	Price decimal.Decimal
}

// Item is one cart line. CartID is stable across transfers, merges and splits
// and is what moves reference.
type Item struct {
	CartID     string
	MenuItemID uuid.UUID
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	Modifiers  []Modifier
	Notes      string
}

// Amount returns quantity * (unit price + modifiers)
func (i Item) Amount() decimal.Decimal {
	unit := i.UnitPrice
	for _, m := range i.Modifiers {
		unit = unit.Add(m.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) clone() Item {
	c := i
	if i.Modifiers != nil {
		c.Modifiers = append([]Modifier(nil), i.Modifiers...)
	}
	return c
}

// Payment records money taken against an order
type Payment struct {
	Method    string
	Amount    decimal.Decimal
	Reference string
	PaidAt    time.Time
}

// Order is the order aggregate as the terminal sees it. While a local change
// is unconfirmed, Confirmed holds the last copy the server agreed to and the
// rest of the struct is the speculative state shown to the operator.
type Order struct {
	shared.BaseAggregateRoot
	Type        Type
	BranchID    uuid.UUID
	TableID     *uuid.UUID
	CustomerRef string
	Items       []Item
	Status      Status
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	CouponCode  string
	Payments    []Payment
	Notes       string
	ChangedBy   string
	Confirmed   *Order
}

// NewOrder creates a PENDING order with its items. The order is unconfirmed
// until the server accepts it.
func NewOrder(orderType Type, branchID uuid.UUID, tableID *uuid.UUID, items []Item) (*Order, error) {
	if !orderType.IsValid() {
		return nil, shared.NewDomainError("INVALID_ORDER_TYPE", fmt.Sprintf("Unknown order type %q", orderType))
	}
	if branchID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BRANCH", "Branch ID cannot be empty")
	}
	if orderType == TypeDineIn && tableID == nil {
		return nil, shared.NewDomainError("TABLE_REQUIRED", "Dine-in orders need a table")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("NO_ITEMS", "Order must have at least one item")
	}

	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Type:              orderType,
		BranchID:          branchID,
		TableID:           tableID,
		Status:            StatusPending,
		Subtotal:          decimal.Zero,
		Discount:          decimal.Zero,
		Tax:               decimal.Zero,
		Total:             decimal.Zero,
	}
	for _, item := range items {
		if err := o.addItem(item); err != nil {
			return nil, err
		}
	}
	o.recalculateTotals()
	o.AddDomainEvent(NewOrderCreatedEvent(o))
	return o, nil
}

func (o *Order) addItem(item Item) error {
	if item.Quantity < 1 {
		return shared.NewDomainError("INVALID_QUANTITY", fmt.Sprintf("Item %q quantity must be at least 1", item.Name))
	}
	if item.UnitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", fmt.Sprintf("Item %q price cannot be negative", item.Name))
	}
	if item.CartID == "" {
		item.CartID = uuid.NewString()
	}
	if o.HasItem(item.CartID) {
		return shared.NewDomainError("DUPLICATE_ITEM", fmt.Sprintf("Cart line %s already on order", item.CartID))
	}
	o.Items = append(o.Items, item.clone())
	return nil
}

// AddItem appends a cart line to an open order
func (o *Order) AddItem(item Item) error {
	if o.Status.IsTerminal() {
		return shared.NewDomainError(ErrTerminalState.Code, "Cannot add items to a closed order")
	}
	if err := o.addItem(item); err != nil {
		return err
	}
	o.recalculateTotals()
	return nil
}

// ApplyDiscount sets the order level discount
func (o *Order) ApplyDiscount(code string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	if amount.GreaterThan(o.Subtotal) {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount cannot exceed subtotal")
	}
	o.CouponCode = code
	o.Discount = amount
	o.recalculateTotals()
	return nil
}

// SetTax sets the tax amount
func (o *Order) SetTax(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_TAX", "Tax cannot be negative")
	}
	o.Tax = amount
	o.recalculateTotals()
	return nil
}

// AddPayment records a payment
func (o *Order) AddPayment(p Payment) error {
	if !p.Amount.IsPositive() {
		return shared.NewDomainError("INVALID_PAYMENT", "Payment amount must be positive")
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	o.Payments = append(o.Payments, p)
	return nil
}

// PaidAmount sums all payments
func (o *Order) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range o.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

func (o *Order) recalculateTotals() {
	sub := decimal.Zero
	for _, item := range o.Items {
		sub = sub.Add(item.Amount())
	}
	o.Subtotal = sub
	o.Total = sub.Sub(o.Discount).Add(o.Tax)
}

// TotalsConsistent reports whether Total = Subtotal - Discount + Tax within tolerance
func (o *Order) TotalsConsistent(tolerance decimal.Decimal) bool {
	expected := o.Subtotal.Sub(o.Discount).Add(o.Tax)
	return expected.Sub(o.Total).Abs().LessThanOrEqual(tolerance)
}

// Apply runs an operator action through the transition table and applies the
// result speculatively. It returns the previous status.
func (o *Order) Apply(action Action, changedBy string) (Status, error) {
	from := o.Status
	to, err := Transition(from, o.Type, action)
	if err != nil {
		return from, err
	}
	o.BeginSpeculative()
	o.Status = to
	o.ChangedBy = changedBy
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, to))
	return from, nil
}

// BeginSpeculative keeps the server-confirmed copy aside before a local
// change. Subsequent speculative changes keep the first snapshot.
func (o *Order) BeginSpeculative() {
	if o.Confirmed == nil && o.SyncStatus == shared.SyncStatusSynced {
		o.Confirmed = o.snapshot()
	}
	o.MarkPending()
}

// BaseVersion is the server version token local changes are made against.
// Empty when the server has never confirmed the order.
func (o *Order) BaseVersion() string {
	switch {
	case o.Confirmed != nil:
		return shared.FormatVersion(o.Confirmed.UpdatedAt)
	case o.SyncStatus == shared.SyncStatusSynced:
		return shared.FormatVersion(o.UpdatedAt)
	}
	return ""
}

// Confirm records the server's copy. When more local changes for this order
// are still queued, the speculative state is kept and only the confirmed
// snapshot advances; otherwise the order becomes the server's copy.
func (o *Order) Confirm(remote *Order, stillPending bool) {
	if stillPending {
		o.Confirmed = remote.snapshot()
		o.MarkPending()
		return
	}
	events := o.GetDomainEvents()
	*o = *remote.Clone()
	o.Confirmed = nil
	o.MarkSynced(remote.UpdatedAt)
	for _, e := range events {
		o.AddDomainEvent(e)
	}
}

// Rollback restores the last confirmed copy. When there is none, the order
// stays as is and is flagged CONFLICTED for the operator. Reports whether a
// restore happened.
func (o *Order) Rollback() bool {
	if o.Confirmed == nil {
		o.MarkConflicted()
		return false
	}
	restored := o.Confirmed.Clone()
	restored.Confirmed = nil
	restored.MarkSynced(restored.UpdatedAt)
	*o = *restored
	return true
}

// HasItem reports whether the cart line is on the order
func (o *Order) HasItem(cartID string) bool {
	for _, item := range o.Items {
		if item.CartID == cartID {
			return true
		}
	}
	return false
}

// TakeItems removes the listed cart lines and returns them in order. Every
// cart ID must be present.
func (o *Order) TakeItems(cartIDs []string) ([]Item, error) {
	wanted := make(map[string]bool, len(cartIDs))
	for _, id := range cartIDs {
		if !o.HasItem(id) {
			return nil, shared.NewDomainError("ITEM_NOT_FOUND", fmt.Sprintf("Cart line %s is not on order %s", id, o.ID))
		}
		wanted[id] = true
	}
	taken := make([]Item, 0, len(wanted))
	kept := make([]Item, 0, len(o.Items))
	for _, item := range o.Items {
		if wanted[item.CartID] {
			taken = append(taken, item)
			continue
		}
		kept = append(kept, item)
	}
	o.Items = kept
	o.recalculateTotals()
	return taken, nil
}

// MergeItems adds cart lines that are not already present. Lines already on
// the order are skipped, so applying the same move twice changes nothing.
func (o *Order) MergeItems(items []Item) int {
	added := 0
	for _, item := range items {
		if o.HasItem(item.CartID) {
			continue
		}
		o.Items = append(o.Items, item.clone())
		added++
	}
	o.recalculateTotals()
	return added
}

// CartIDs lists the cart lines in order
func (o *Order) CartIDs() []string {
	ids := make([]string, len(o.Items))
	for i, item := range o.Items {
		ids[i] = item.CartID
	}
	return ids
}

// TotalQuantity sums item quantities
func (o *Order) TotalQuantity() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// IsOpen reports whether the order still holds its table
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// MoveToTable points the order at another table
func (o *Order) MoveToTable(tableID uuid.UUID) {
	o.TableID = &tableID
}

// snapshot returns a copy suitable for Confirmed
func (o *Order) snapshot() *Order {
	c := o.Clone()
	c.Confirmed = nil
	c.ClearDomainEvents()
	return c
}

// Clone returns a deep copy without pending domain events
func (o *Order) Clone() *Order {
	c := *o
	c.ClearDomainEvents()
	if o.TableID != nil {
		id := *o.TableID
		c.TableID = &id
	}
	c.Items = make([]Item, len(o.Items))
	for i, item := range o.Items {
		c.Items[i] = item.clone()
	}
	if o.Payments != nil {
		c.Payments = append([]Payment(nil), o.Payments...)
	}
	if o.Confirmed != nil {
		c.Confirmed = o.Confirmed.Clone()
	}
	return &c
}

// NewSplitOrder creates the order that receives items split off another
// order onto a new table, in the same kitchen status. The id is chosen by the
// caller so that replays create the same order.
func NewSplitOrder(id uuid.UUID, source *Order, tableID uuid.UUID) *Order {
	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Type:              source.Type,
		BranchID:          source.BranchID,
		TableID:           &tableID,
		CustomerRef:       source.CustomerRef,
		Status:            source.Status,
		Subtotal:          decimal.Zero,
		Discount:          decimal.Zero,
		Tax:               decimal.Zero,
		Total:             decimal.Zero,
	}
	o.ID = id
	return o
}
