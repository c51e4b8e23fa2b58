package handler

import (
	"context"

	tableapp "github.com/erp/pos/internal/application/table"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TableService is what the floor endpoints need from the application layer
type TableService interface {
	ListFloor(ctx context.Context) (*tableapp.FloorResponse, error)
	GetTable(ctx context.Context, id uuid.UUID) (*tableapp.TableResponse, error)
	SetStatus(ctx context.Context, id uuid.UUID, req tableapp.SetStatusRequest) (*tableapp.TableResponse, error)
	Transfer(ctx context.Context, req tableapp.TransferRequest) (*tableapp.FloorChangeResponse, error)
	Merge(ctx context.Context, req tableapp.MergeRequest) (*tableapp.FloorChangeResponse, error)
	Split(ctx context.Context, req tableapp.SplitRequest) (*tableapp.FloorChangeResponse, error)
}

// TableHandler handles the floor plan endpoints
type TableHandler struct {
	BaseHandler
	tableService TableService
}

// NewTableHandler creates a new TableHandler
func NewTableHandler(tableService TableService) *TableHandler {
	return &TableHandler{tableService: tableService}
}

// Floor returns zones and tables
// GET /tables
func (h *TableHandler) Floor(c *gin.Context) {
	floor, err := h.tableService.ListFloor(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, floor)
}

// GetByID returns one table
// GET /tables/:id
func (h *TableHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid table ID format")
		return
	}
	t, err := h.tableService.GetTable(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// SetStatus marks a table reserved, cleaning or available
// PUT /tables/:id/status
func (h *TableHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid table ID format")
		return
	}
	var req tableapp.SetStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	t, err := h.tableService.SetStatus(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Transfer moves an open order to a free table
// POST /tables/transfer
func (h *TableHandler) Transfer(c *gin.Context) {
	var req tableapp.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	change, err := h.tableService.Transfer(c.Request.Context(), req)
	h.floorChange(c, change, err)
}

// Merge moves items into the open order of another table
// POST /tables/merge
func (h *TableHandler) Merge(c *gin.Context) {
	var req tableapp.MergeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	change, err := h.tableService.Merge(c.Request.Context(), req)
	h.floorChange(c, change, err)
}

// Split moves items into a new order on a free table
// POST /tables/split
func (h *TableHandler) Split(c *gin.Context) {
	var req tableapp.SplitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	change, err := h.tableService.Split(c.Request.Context(), req)
	h.floorChange(c, change, err)
}

// floorChange answers 200 when the server took the change and 202 when it was queued
func (h *TableHandler) floorChange(c *gin.Context, change *tableapp.FloorChangeResponse, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if change.Queued {
		h.Accepted(c, change)
		return
	}
	h.Success(c, change)
}
