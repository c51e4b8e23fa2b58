package table

import (
	"fmt"

	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// Floor operation errors
var (
	ErrSameTable        = shared.NewDomainError("SAME_TABLE", "Source and target table are the same")
	ErrSourceHasNoOrder = shared.NewDomainError("SOURCE_HAS_NO_ORDER", "Source table has no open order")
	ErrTargetOccupied   = shared.NewDomainError("TARGET_OCCUPIED", "Target table already has an open order")
	ErrTargetHasNoOrder = shared.NewDomainError("TARGET_HAS_NO_ORDER", "Target table has no open order to merge into")
	ErrOrderMismatch    = shared.NewDomainError("ORDER_MISMATCH", "Order is not seated at the given table")
	ErrNothingToMove    = shared.NewDomainError("NOTHING_TO_MOVE", "No items selected")
)

// TransferIntent moves a whole order to another table
type TransferIntent struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	FromTableID uuid.UUID `json:"from_table_id" validate:"required"`
	ToTableID   uuid.UUID `json:"to_table_id" validate:"required"`
}

// MoveItemsIntent moves a set of cart lines from one order to another. It is
// used for both merge (target order exists) and split (target order is
// created with TargetOrderID). Because it names the lines to move instead of
// a delta, applying it twice leaves the same result.
type MoveItemsIntent struct {
	SourceOrderID uuid.UUID `json:"source_order_id" validate:"required"`
	TargetOrderID uuid.UUID `json:"target_order_id" validate:"required"`
	FromTableID   uuid.UUID `json:"from_table_id" validate:"required"`
	ToTableID     uuid.UUID `json:"to_table_id" validate:"required"`
	CartIDs       []string  `json:"cart_ids" validate:"required,min=1,dive,required"`
}

func checkSource(from, to *Table, src *order.Order) error {
	if from.ID == to.ID {
		return ErrSameTable
	}
	if !from.HasOpenOrder() || !src.IsOpen() {
		return shared.NewDomainError(ErrSourceHasNoOrder.Code, fmt.Sprintf("Table %s has no open order", from.Name))
	}
	if *from.CurrentOrderID != src.ID {
		return shared.NewDomainError(ErrOrderMismatch.Code, fmt.Sprintf("Order %s is not seated at table %s", src.ID, from.Name))
	}
	return nil
}

// Transfer moves the open order of table from to the free table to.
// Afterwards from is AVAILABLE, to is OCCUPIED and the order points at to.
// An occupied target is refused; combining two orders is Merge.
func Transfer(from, to *Table, ord *order.Order) (TransferIntent, error) {
	if err := checkSource(from, to, ord); err != nil {
		return TransferIntent{}, err
	}
	if to.HasOpenOrder() {
		return TransferIntent{}, shared.NewDomainError(ErrTargetOccupied.Code, fmt.Sprintf("Table %s already has an open order", to.Name))
	}

	from.BeginSpeculative()
	to.BeginSpeculative()
	ord.BeginSpeculative()

	from.Release()
	to.Seat(ord.ID, ord.Total)
	ord.MoveToTable(to.ID)

	return TransferIntent{OrderID: ord.ID, FromTableID: from.ID, ToTableID: to.ID}, nil
}

// Merge moves the listed cart lines of src into dst, the open order of table
// to. No cart IDs means all of them. A source order left without items stays
// open on its table; cancelling it is a separate status action.
func Merge(from, to *Table, src, dst *order.Order, cartIDs []string) (MoveItemsIntent, error) {
	if err := checkSource(from, to, src); err != nil {
		return MoveItemsIntent{}, err
	}
	if !to.HasOpenOrder() || !dst.IsOpen() {
		return MoveItemsIntent{}, shared.NewDomainError(ErrTargetHasNoOrder.Code, fmt.Sprintf("Table %s has no open order to merge into", to.Name))
	}
	if *to.CurrentOrderID != dst.ID {
		return MoveItemsIntent{}, shared.NewDomainError(ErrOrderMismatch.Code, fmt.Sprintf("Order %s is not seated at table %s", dst.ID, to.Name))
	}
	if len(cartIDs) == 0 {
		cartIDs = src.CartIDs()
	}

	if err := checkItems(src, cartIDs); err != nil {
		return MoveItemsIntent{}, err
	}

	src.BeginSpeculative()
	moved, _ := src.TakeItems(cartIDs)
	dst.BeginSpeculative()
	dst.MergeItems(moved)
	from.BeginSpeculative()
	to.BeginSpeculative()
	to.CurrentOrderTotal = dst.Total
	settleSource(from, src)

	return MoveItemsIntent{
		SourceOrderID: src.ID,
		TargetOrderID: dst.ID,
		FromTableID:   from.ID,
		ToTableID:     to.ID,
		CartIDs:       cartIDs,
	}, nil
}

// Split moves the listed cart lines of src into a new order with id
// newOrderID seated at the free table to.
func Split(from, to *Table, src *order.Order, newOrderID uuid.UUID, cartIDs []string) (*order.Order, MoveItemsIntent, error) {
	if err := checkSource(from, to, src); err != nil {
		return nil, MoveItemsIntent{}, err
	}
	if len(cartIDs) == 0 {
		return nil, MoveItemsIntent{}, ErrNothingToMove
	}
	if to.HasOpenOrder() {
		return nil, MoveItemsIntent{}, shared.NewDomainError(ErrTargetOccupied.Code, fmt.Sprintf("Table %s already has an open order", to.Name))
	}

	if err := checkItems(src, cartIDs); err != nil {
		return nil, MoveItemsIntent{}, err
	}

	src.BeginSpeculative()
	moved, _ := src.TakeItems(cartIDs)
	dst := order.NewSplitOrder(newOrderID, src, to.ID)
	dst.MergeItems(moved)

	from.BeginSpeculative()
	to.BeginSpeculative()
	to.Seat(dst.ID, dst.Total)
	settleSource(from, src)

	return dst, MoveItemsIntent{
		SourceOrderID: src.ID,
		TargetOrderID: dst.ID,
		FromTableID:   from.ID,
		ToTableID:     to.ID,
		CartIDs:       cartIDs,
	}, nil
}

func checkItems(src *order.Order, cartIDs []string) error {
	for _, id := range cartIDs {
		if !src.HasItem(id) {
			return shared.NewDomainError("ITEM_NOT_FOUND", fmt.Sprintf("Cart line %s is not on order %s", id, src.ID))
		}
	}
	return nil
}

// settleSource refreshes the source table after items left its order
func settleSource(from *Table, src *order.Order) {
	from.CurrentOrderTotal = src.Total
}
