package handler

import (
	"context"
	"strconv"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/infrastructure/connectivity"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultListLimit = 100

// SyncOperator is the operator surface of the reconciler
type SyncOperator interface {
	Status(ctx context.Context) (syncqueue.Status, error)
	SyncNow(ctx context.Context) syncqueue.DrainResult
	Pending(ctx context.Context, limit int) ([]syncqueue.EntryResponse, error)
	DeadLetters(ctx context.Context, limit int) ([]syncqueue.DeadLetterResponse, error)
	Retry(ctx context.Context, deadLetterID uuid.UUID) (*syncqueue.EntryResponse, error)
	Discard(ctx context.Context, deadLetterID uuid.UUID) error
}

// NotificationFeed lists recent conflict and drop notifications
type NotificationFeed interface {
	Recent(limit int) []syncqueue.NotificationResponse
	Total() int64
}

// Connectivity is the online flag the facade can read and override
type Connectivity interface {
	Status() connectivity.Status
	SetOnline(online bool) bool
}

// SyncHandler exposes the queue, the dead letter journal and the online flag
type SyncHandler struct {
	BaseHandler
	operator      SyncOperator
	notifications NotificationFeed
	connectivity  Connectivity
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(operator SyncOperator, notifications NotificationFeed, conn Connectivity) *SyncHandler {
	return &SyncHandler{
		operator:      operator,
		notifications: notifications,
		connectivity:  conn,
	}
}

// SetOnlineRequest is the platform's connectivity signal
type SetOnlineRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// Status returns queue depth, dead letter count and the last drain
// GET /sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	st, err := h.operator.Status(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, st)
}

// SyncNow drains the queue before answering
// POST /sync/now
func (h *SyncHandler) SyncNow(c *gin.Context) {
	h.Success(c, h.operator.SyncNow(c.Request.Context()))
}

// Pending lists queued entries in replay order
// GET /sync/pending?limit=
func (h *SyncHandler) Pending(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	entries, err := h.operator.Pending(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, entries, len(entries), limit)
}

// DeadLetters lists dropped entries, newest first
// GET /sync/dead-letters?limit=
func (h *SyncHandler) DeadLetters(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	letters, err := h.operator.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, letters, len(letters), limit)
}

// Retry puts a dead letter back on the queue
// POST /sync/dead-letters/:id/retry
func (h *SyncHandler) Retry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid dead letter ID format")
		return
	}
	entry, err := h.operator.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, entry)
}

// Discard forgets a dead letter
// DELETE /sync/dead-letters/:id
func (h *SyncHandler) Discard(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid dead letter ID format")
		return
	}
	if err := h.operator.Discard(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Notifications lists recent conflict and drop notifications
// GET /sync/notifications?limit=
func (h *SyncHandler) Notifications(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	recent := h.notifications.Recent(limit)
	h.SuccessList(c, recent, int(h.notifications.Total()), limit)
}

// Connectivity returns the online flag
// GET /connectivity
func (h *SyncHandler) Connectivity(c *gin.Context) {
	h.Success(c, h.connectivity.Status())
}

// SetConnectivity applies the platform's online signal. Going online
// starts a drain through the monitor's subscribers.
// PUT /connectivity
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	var req SetOnlineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.connectivity.SetOnline(*req.Online)
	h.Success(c, h.connectivity.Status())
}

func (h *SyncHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		h.BadRequest(c, "limit must be a positive number")
		return 0, false
	}
	return limit, true
}
