package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erp/pos/internal/domain/coupon"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/erp/pos/internal/domain/table"
	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

func malformed(err error) error {
	return &shared.RemoteError{Kind: shared.FailureTransient, Message: "malformed response data", Err: err}
}

// UpsertOrder creates the order, or returns the existing one when the server
// already has this id.
func (c *Client) UpsertOrder(ctx context.Context, dto OrderDTO) (*order.Order, error) {
	var out OrderDTO
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/orders", nil, dto, &out); err != nil {
		return nil, err
	}
	o, err := out.ToOrder()
	if err != nil {
		return nil, malformed(err)
	}
	return o, nil
}

// UpdateOrderStatus moves an order. A stale ExpectedUpdatedAt yields a
// VERSION_CONFLICT error.
func (c *Client) UpdateOrderStatus(ctx context.Context, id uuid.UUID, req StatusRequest) (*order.Order, error) {
	var out OrderDTO
	if err := c.do(ctx, http.MethodPatch, apiPrefix+"/orders/"+id.String()+"/status", nil, req, &out); err != nil {
		return nil, err
	}
	o, err := out.ToOrder()
	if err != nil {
		return nil, malformed(err)
	}
	return o, nil
}

// GetOrder fetches one order
func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var out OrderDTO
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/orders/"+id.String(), nil, nil, &out); err != nil {
		return nil, err
	}
	o, err := out.ToOrder()
	if err != nil {
		return nil, malformed(err)
	}
	return o, nil
}

// ListOrders fetches orders matching the filter
func (c *Client) ListOrders(ctx context.Context, f OrderFilter) ([]*order.Order, error) {
	q := url.Values{}
	if f.BranchID != uuid.Nil {
		q.Set("branch_id", f.BranchID.String())
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if !f.From.IsZero() {
		q.Set("from", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var out []OrderDTO
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/orders", q, nil, &out); err != nil {
		return nil, err
	}
	orders := make([]*order.Order, 0, len(out))
	for _, dto := range out {
		o, err := dto.ToOrder()
		if err != nil {
			return nil, malformed(err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// DeleteOrder removes an order on the server
func (c *Client) DeleteOrder(ctx context.Context, id uuid.UUID, req DeleteRequest) error {
	var q url.Values
	if req.ExpectedUpdatedAt != "" {
		q = url.Values{"expected_updated_at": {req.ExpectedUpdatedAt}}
	}
	return c.do(ctx, http.MethodDelete, apiPrefix+"/orders/"+id.String(), q, nil, nil)
}

// GetFloor fetches a branch's zones and tables
func (c *Client) GetFloor(ctx context.Context, branchID uuid.UUID) (*Floor, error) {
	var out floorDTO
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/branches/"+branchID.String()+"/floor", nil, nil, &out); err != nil {
		return nil, err
	}
	floor := &Floor{}
	for _, z := range out.Zones {
		floor.Zones = append(floor.Zones, z.ToZone())
	}
	for _, t := range out.Tables {
		tbl, err := t.ToTable()
		if err != nil {
			return nil, malformed(err)
		}
		floor.Tables = append(floor.Tables, tbl)
	}
	return floor, nil
}

// UpdateTableStatus sets a table's status
func (c *Client) UpdateTableStatus(ctx context.Context, id uuid.UUID, req TableStatusRequest) (*table.Table, error) {
	var out TableDTO
	if err := c.do(ctx, http.MethodPatch, apiPrefix+"/tables/"+id.String()+"/status", nil, req, &out); err != nil {
		return nil, err
	}
	t, err := out.ToTable()
	if err != nil {
		return nil, malformed(err)
	}
	return t, nil
}

// TransferTable moves an order to a free table
func (c *Client) TransferTable(ctx context.Context, req TransferRequest) (*FloorChange, error) {
	return c.floorOp(ctx, "/tables/transfer", req)
}

// MergeTables moves cart lines into the target table's open order
func (c *Client) MergeTables(ctx context.Context, req MoveItemsRequest) (*FloorChange, error) {
	return c.floorOp(ctx, "/tables/merge", req)
}

// SplitTable moves cart lines into a new order on a free table
func (c *Client) SplitTable(ctx context.Context, req MoveItemsRequest) (*FloorChange, error) {
	return c.floorOp(ctx, "/tables/split", req)
}

func (c *Client) floorOp(ctx context.Context, path string, req any) (*FloorChange, error) {
	var out floorChangeDTO
	if err := c.do(ctx, http.MethodPost, apiPrefix+path, nil, req, &out); err != nil {
		return nil, err
	}
	fc, err := out.toDomain()
	if err != nil {
		return nil, malformed(err)
	}
	return fc, nil
}

// ValidateCoupon asks the server whether a coupon applies. A rejection is a
// result with Valid false, not an error; errors mean the question could not
// be answered.
func (c *Client) ValidateCoupon(ctx context.Context, req coupon.Request) (*coupon.Result, error) {
	var out couponResultDTO
	err := c.do(ctx, http.MethodPost, apiPrefix+"/coupons/validate", nil, req, &out)
	if err != nil {
		var re *shared.RemoteError
		if errors.As(err, &re) && (re.Kind == shared.FailurePrecondition || re.Kind == shared.FailureValidation) {
			return coupon.Rejected(req.Code, coupon.RejectReason(re.Code), re.Message), nil
		}
		return nil, err
	}
	if !out.Valid {
		return coupon.Rejected(req.Code, out.Reason, out.Message), nil
	}
	res := &coupon.Result{Code: req.Code, Valid: true, Discount: out.Discount, Message: out.Message}
	res.Clamp(req.Subtotal)
	return res, nil
}

// FetchSnapshot downloads a reference document. The document itself is kept
// byte for byte; only the wrapper keys are normalized.
func (c *Client) FetchSnapshot(ctx context.Context, branchID uuid.UUID, kind snapshot.Kind) (*snapshot.Snapshot, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/branches/"+branchID.String()+"/"+string(kind), nil, nil, &raw); err != nil {
		return nil, err
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, malformed(err)
	}
	var (
		doc       json.RawMessage
		updatedAt time.Time
	)
	for k, v := range wrapper {
		switch snakeCase(k) {
		case "document":
			doc = v
		case "updated_at":
			if err := json.Unmarshal(v, &updatedAt); err != nil {
				return nil, malformed(fmt.Errorf("snapshot updated_at: %w", err))
			}
		}
	}
	if doc == nil {
		return nil, malformed(fmt.Errorf("snapshot %s has no document", kind))
	}
	return snapshot.New(branchID, kind, doc, updatedAt.UTC()), nil
}
