package handler

import (
	"context"
	"strconv"

	orderapp "github.com/erp/pos/internal/application/order"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderService is what the order endpoints need from the application layer
type OrderService interface {
	Create(ctx context.Context, req orderapp.CreateOrderRequest) (*orderapp.OrderResponse, error)
	ApplyAction(ctx context.Context, id uuid.UUID, req orderapp.StatusActionRequest) (*orderapp.OrderResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*orderapp.OrderResponse, error)
	List(ctx context.Context, filter orderapp.OrderListFilter) ([]orderapp.OrderResponse, error)
}

// OrderHandler handles the order endpoints of the local facade
type OrderHandler struct {
	BaseHandler
	orderService OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// Create places a new order. It is written through to the server when
// online and queued otherwise; sync_status tells which.
// POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req orderapp.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, err := h.orderService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, o)
}

// GetByID returns one order from the local store
// GET /orders/:id
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	o, err := h.orderService.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

// List returns local orders, newest first
// GET /orders?status=&table_id=&sync_status=&open=&limit=
func (h *OrderHandler) List(c *gin.Context) {
	filter := orderapp.OrderListFilter{
		Status:     c.Query("status"),
		SyncStatus: c.Query("sync_status"),
	}
	if raw := c.Query("table_id"); raw != "" {
		tableID, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid table ID format")
			return
		}
		filter.TableID = &tableID
	}
	if raw := c.Query("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "open must be true or false")
			return
		}
		filter.OpenOnly = open
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.BadRequest(c, "limit must be a non-negative number")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, orders, len(orders), filter.Limit)
}

// ApplyAction moves an order through its lifecycle
// POST /orders/:id/actions
func (h *OrderHandler) ApplyAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid order ID format")
		return
	}
	var req orderapp.StatusActionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.ChangedBy == "" {
		req.ChangedBy = c.GetHeader(logger.HeaderOperator)
	}

	o, err := h.orderService.ApplyAction(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, o)
}

// Delete removes an order locally and on the server
// DELETE /orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	if err := h.orderService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
