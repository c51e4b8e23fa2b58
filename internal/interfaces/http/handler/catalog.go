package handler

import (
	"context"

	couponapp "github.com/erp/pos/internal/application/coupon"
	snapshotapp "github.com/erp/pos/internal/application/snapshot"
	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/gin-gonic/gin"
)

// CouponService validates coupons against the server
type CouponService interface {
	Validate(ctx context.Context, req couponapp.ValidateRequest) (*couponapp.Response, error)
}

// SnapshotService serves cached read-only documents
type SnapshotService interface {
	Get(ctx context.Context, kind snapshot.Kind) (*snapshotapp.Response, error)
}

// CatalogHandler serves coupons and the menu, inventory and settings snapshots
type CatalogHandler struct {
	BaseHandler
	coupons   CouponService
	snapshots SnapshotService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(coupons CouponService, snapshots SnapshotService) *CatalogHandler {
	return &CatalogHandler{coupons: coupons, snapshots: snapshots}
}

// ValidateCoupon asks the server whether a coupon applies. A refused coupon
// is a 200 with valid=false.
// POST /coupons/validate
func (h *CatalogHandler) ValidateCoupon(c *gin.Context) {
	var req couponapp.ValidateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	verdict, err := h.coupons.Validate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, verdict)
}

// Snapshot returns the cached document of a kind
// GET /snapshots/:kind
func (h *CatalogHandler) Snapshot(c *gin.Context) {
	doc, err := h.snapshots.Get(c.Request.Context(), snapshot.Kind(c.Param("kind")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}
