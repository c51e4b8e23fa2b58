package router

import (
	"github.com/erp/pos/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the facade's endpoint groups
type Handlers struct {
	Orders  *handler.OrderHandler
	Tables  *handler.TableHandler
	Catalog *handler.CatalogHandler
	Sync    *handler.SyncHandler
	System  *handler.SystemHandler

	// SyncThrottle guards the actions that call the server on demand.
	// Optional.
	SyncThrottle gin.HandlerFunc
}

func (h Handlers) throttled(fn gin.HandlerFunc) []gin.HandlerFunc {
	if h.SyncThrottle == nil {
		return []gin.HandlerFunc{fn}
	}
	return []gin.HandlerFunc{h.SyncThrottle, fn}
}

// Groups builds the route groups of the local facade
func (h Handlers) Groups() []*DomainGroup {
	orders := NewDomainGroup("orders", "/orders")
	orders.POST("", h.Orders.Create)
	orders.GET("", h.Orders.List)
	orders.GET("/:id", h.Orders.GetByID)
	orders.POST("/:id/actions", h.Orders.ApplyAction)
	orders.DELETE("/:id", h.Orders.Delete)

	tables := NewDomainGroup("tables", "/tables")
	tables.GET("", h.Tables.Floor)
	tables.GET("/:id", h.Tables.GetByID)
	tables.PUT("/:id/status", h.Tables.SetStatus)
	tables.POST("/transfer", h.Tables.Transfer)
	tables.POST("/merge", h.Tables.Merge)
	tables.POST("/split", h.Tables.Split)

	catalog := NewDomainGroup("catalog", "")
	catalog.POST("/coupons/validate", h.Catalog.ValidateCoupon)
	catalog.GET("/snapshots/:kind", h.Catalog.Snapshot)

	sync := NewDomainGroup("sync", "/sync")
	sync.GET("/status", h.Sync.Status)
	sync.POST("/now", h.throttled(h.Sync.SyncNow)...)
	sync.GET("/pending", h.Sync.Pending)
	sync.GET("/dead-letters", h.Sync.DeadLetters)
	sync.POST("/dead-letters/:id/retry", h.throttled(h.Sync.Retry)...)
	sync.DELETE("/dead-letters/:id", h.Sync.Discard)
	sync.GET("/notifications", h.Sync.Notifications)

	conn := NewDomainGroup("connectivity", "/connectivity")
	conn.GET("", h.Sync.Connectivity)
	conn.PUT("", h.Sync.SetConnectivity)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", h.System.GetSystemInfo)
	system.GET("/ping", h.System.Ping)

	return []*DomainGroup{orders, tables, catalog, sync, conn, system}
}

// RegisterAll registers every group of the facade on r
func (r *Router) RegisterAll(h Handlers) *Router {
	for _, g := range h.Groups() {
		r.Register(g)
	}
	return r
}
