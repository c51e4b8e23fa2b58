// Package order takes orders at the terminal and moves them through their
// lifecycle, online against the server or offline through the sync queue.
package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/remote"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote is the part of the server API the order service uses
type Remote interface {
	UpsertOrder(ctx context.Context, dto remote.OrderDTO) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, req remote.StatusRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
	ListOrders(ctx context.Context, f remote.OrderFilter) ([]*order.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID, req remote.DeleteRequest) error
}

// Service handles order operations
type Service struct {
	orders    shared.LocalStore[*order.Order]
	tables    shared.LocalStore[*table.Table]
	queue     syncqueue.Enqueuer
	remote    Remote
	online    syncqueue.OnlineChecker
	publisher shared.EventPublisher
	floor     syncqueue.Refresher
	branchID  uuid.UUID
	validate  *validator.Validate
	logger    *zap.Logger

	// fetchTimeout bounds the read used to restore a refused order
	fetchTimeout time.Duration
	mu           *sync.Mutex
}

// NewService creates a new order service
func NewService(
	orders shared.LocalStore[*order.Order],
	tables shared.LocalStore[*table.Table],
	queue syncqueue.Enqueuer,
	client Remote,
	online syncqueue.OnlineChecker,
	branchID uuid.UUID,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:       orders,
		tables:       tables,
		queue:        queue,
		remote:       client,
		online:       online,
		branchID:     branchID,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		fetchTimeout: 10 * time.Second,
		mu:           &sync.Mutex{},
	}
}

// SetEventPublisher sets the publisher for operator notifications
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetFloorRefresher sets what re-reads the floor after an online write
// seated or released a table
func (s *Service) SetFloorRefresher(r syncqueue.Refresher) {
	s.floor = r
}

// SetLock shares the mutation lock with the table service, which moves the
// same orders
func (s *Service) SetLock(mu *sync.Mutex) {
	s.mu = mu
}

// Register installs the replay handlers for the entries this service enqueues
func (s *Service) Register(rec syncqueue.Registrar) {
	rec.Register(shared.EntityOrder, &orderHandler{s: s})
	rec.Register(shared.EntityOrderStatus, &statusHandler{s: s})
}

// Create takes an order. Online it is sent to the server first; offline,
// or when the server cannot be reached, it is queued and kept locally as
// PENDING.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "create", telemetry.SpanAttrOnline, s.online.IsOnline())
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}
	o, err := order.NewOrder(order.Type(req.Type), s.branchID, req.TableID, req.toItems())
	if err != nil {
		return nil, err
	}
	o.CustomerRef = req.CustomerRef
	o.Notes = req.Notes
	if req.Discount != nil {
		if err := o.ApplyDiscount(req.CouponCode, *req.Discount); err != nil {
			return nil, err
		}
	}
	if req.Tax != nil {
		if err := o.SetTax(*req.Tax); err != nil {
			return nil, err
		}
	}
	for _, p := range req.Payments {
		if err := o.AddPayment(order.Payment{Method: p.Method, Amount: p.Amount, Reference: p.Reference}); err != nil {
			return nil, err
		}
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrEntityID, o.ID.String())

	s.mu.Lock()
	resp, seated, err := s.create(ctx, o)
	s.mu.Unlock()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if seated {
		s.refreshFloor(ctx)
	}
	return resp, nil
}

func (s *Service) create(ctx context.Context, o *order.Order) (*OrderResponse, bool, error) {
	var tbl *table.Table
	if o.TableID != nil {
		t, err := s.tables.Get(ctx, *o.TableID)
		if err != nil {
			return nil, false, fmt.Errorf("table %s: %w", *o.TableID, err)
		}
		if t.HasOpenOrder() {
			return nil, false, shared.NewDomainError(table.ErrTargetOccupied.Code, fmt.Sprintf("Table %s already has an open order", t.Name))
		}
		tbl = t
	}

	log := s.logger.With(zap.String("order_id", o.ID.String()))
	if s.canWriteThrough(ctx, o.ID, o.TableID) {
		confirmed, err := s.remote.UpsertOrder(ctx, remote.NewOrderDTO(o))
		if err == nil {
			o.Confirm(confirmed, false)
			s.put(ctx, o)
			s.seat(ctx, tbl, o)
			log.Info("Order created", zap.String("version", shared.FormatVersion(o.UpdatedAt)))
			resp := ToOrderResponse(o)
			return &resp, tbl != nil, nil
		}
		if shared.ClassifyFailure(err).IsPermanent() {
			syncqueue.NotifyConflict(ctx, s.publisher, shared.EntityOrder, o.ID, shared.OperationCreate, err, false)
			return nil, false, err
		}
		log.Warn("Server unreachable, queueing order", zap.Error(err))
	}

	if _, err := s.queue.Enqueue(ctx, shared.EntityOrder, o.ID, shared.OperationCreate, remote.NewOrderDTO(o), ""); err != nil {
		return nil, false, err
	}
	s.put(ctx, o)
	s.seat(ctx, tbl, o)
	log.Info("Order created offline", zap.Int("items", len(o.Items)), zap.String("total", o.Total.String()))
	resp := ToOrderResponse(o)
	return &resp, false, nil
}

// ApplyAction runs an operator action. Transitions the table does not allow
// fail before anything is sent or queued.
func (s *Service) ApplyAction(ctx context.Context, id uuid.UUID, req StatusActionRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "apply_action",
		telemetry.SpanAttrEntityID, id.String(),
		telemetry.SpanAttrOnline, s.online.IsOnline(),
		"pos.order.action", req.Action,
	)
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	s.mu.Lock()
	resp, released, err := s.applyAction(ctx, id, order.Action(req.Action), req.ChangedBy)
	s.mu.Unlock()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if released {
		s.refreshFloor(ctx)
	}
	return resp, nil
}

func (s *Service) applyAction(ctx context.Context, id uuid.UUID, action order.Action, changedBy string) (*OrderResponse, bool, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	base := o.BaseVersion()
	from, err := o.Apply(action, changedBy)
	if err != nil {
		return nil, false, err
	}
	log := s.logger.With(
		zap.String("order_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
	)
	req := remote.StatusRequest{Status: o.Status, ChangedBy: changedBy}

	if s.canWriteThrough(ctx, o.ID, o.TableID) {
		online := req
		online.ExpectedUpdatedAt = base
		confirmed, err := s.remote.UpdateOrderStatus(ctx, o.ID, online)
		if err == nil {
			o.Confirm(confirmed, false)
			s.put(ctx, o)
			released := s.release(ctx, o)
			log.Info("Order status changed")
			resp := ToOrderResponse(o)
			return &resp, released, nil
		}
		if shared.ClassifyFailure(err).IsPermanent() {
			rolledBack := s.restore(ctx, o)
			s.put(ctx, o)
			syncqueue.NotifyConflict(ctx, s.publisher, shared.EntityOrderStatus, o.ID, shared.OperationUpdate, err, rolledBack)
			log.Warn("Status change refused by server", zap.Bool("rolled_back", rolledBack), zap.Error(err))
			return nil, false, err
		}
		log.Warn("Server unreachable, queueing status change", zap.Error(err))
	}

	if _, err := s.queue.Enqueue(ctx, shared.EntityOrderStatus, o.ID, shared.OperationUpdate, req, base); err != nil {
		return nil, false, err
	}
	s.put(ctx, o)
	s.release(ctx, o)
	log.Info("Order status changed offline")
	resp := ToOrderResponse(o)
	return &resp, false, nil
}

// Delete removes an order
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "delete",
		telemetry.SpanAttrEntityID, id.String(),
		telemetry.SpanAttrOnline, s.online.IsOnline(),
	)
	defer span.End()

	s.mu.Lock()
	released, err := s.delete(ctx, id)
	s.mu.Unlock()
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if released {
		s.refreshFloor(ctx)
	}
	return nil
}

func (s *Service) delete(ctx context.Context, id uuid.UUID) (bool, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return false, err
	}
	base := o.BaseVersion()

	if s.canWriteThrough(ctx, o.ID, o.TableID) {
		err := s.remote.DeleteOrder(ctx, id, remote.DeleteRequest{ExpectedUpdatedAt: base})
		if err == nil {
			s.remove(ctx, o)
			s.logger.Info("Order deleted", zap.String("order_id", id.String()))
			return o.TableID != nil, nil
		}
		if shared.ClassifyFailure(err).IsPermanent() {
			syncqueue.NotifyConflict(ctx, s.publisher, shared.EntityOrder, o.ID, shared.OperationDelete, err, false)
			return false, err
		}
		s.logger.Warn("Server unreachable, queueing delete", zap.String("order_id", id.String()), zap.Error(err))
	}

	if _, err := s.queue.Enqueue(ctx, shared.EntityOrder, o.ID, shared.OperationDelete, remote.DeleteRequest{}, base); err != nil {
		return false, err
	}
	s.remove(ctx, o)
	s.logger.Info("Order deleted offline", zap.String("order_id", id.String()))
	return false, nil
}

// Get returns an order from the local store
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// List returns local orders, oldest first
func (s *Service) List(ctx context.Context, filter OrderListFilter) ([]OrderResponse, error) {
	orders, err := s.orders.Query(ctx, filter.matches)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(orders, func(a, b *order.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return ToOrderResponses(orders), nil
}

// Refresh overwrites local orders with the server's copies. Orders that
// still have queued entries keep their local state.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.online.IsOnline() {
		return shared.ErrOffline
	}
	remoteOrders, err := s.remote.ListOrders(ctx, remote.OrderFilter{BranchID: s.branchID, Limit: 500})
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]*order.Order, 0, len(remoteOrders))
	skipped := 0
	for _, ro := range remoteOrders {
		if pending, err := s.queue.HasPending(ctx, ro.ID); err != nil || pending {
			skipped++
			continue
		}
		fresh = append(fresh, ro)
	}
	if err := s.orders.BulkPut(ctx, fresh); err != nil && !errors.Is(err, shared.ErrPersistFailed) {
		return err
	}
	s.logger.Info("Orders refreshed", zap.Int("updated", len(fresh)), zap.Int("kept_local", skipped))
	return nil
}

// canWriteThrough reports whether a write may go straight to the server.
// Entities with queued entries wait behind them so the server sees changes
// in the order they were made.
func (s *Service) canWriteThrough(ctx context.Context, orderID uuid.UUID, tableID *uuid.UUID) bool {
	if !s.online.IsOnline() {
		return false
	}
	ids := []uuid.UUID{orderID}
	if tableID != nil {
		ids = append(ids, *tableID)
	}
	for _, id := range ids {
		pending, err := s.queue.HasPending(ctx, id)
		if err != nil || pending {
			return false
		}
	}
	return true
}

// restore puts the server's copy of a refused order back, fetching it if
// possible, and otherwise the last confirmed copy. Reports whether a
// confirmed state was restored.
func (s *Service) restore(ctx context.Context, o *order.Order) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	authoritative, err := s.remote.GetOrder(fetchCtx, o.ID)
	if err == nil {
		o.Confirm(authoritative, false)
		return true
	}
	s.logger.Debug("Could not fetch refused order", zap.String("order_id", o.ID.String()), zap.Error(err))
	return o.Rollback()
}

// put writes to the local store. A write that only reached memory is kept
// and retried by the store's flush.
func (s *Service) put(ctx context.Context, o *order.Order) {
	if err := s.orders.Put(ctx, o); err != nil {
		s.logger.Error("Failed to persist order locally", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func (s *Service) remove(ctx context.Context, o *order.Order) {
	if err := s.orders.Delete(ctx, o.ID); err != nil && !errors.Is(err, shared.ErrNotFound) {
		s.logger.Error("Failed to delete order locally", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
	if o.TableID != nil {
		s.freeTable(ctx, *o.TableID, o.ID)
	}
}

// seat marks the order's table occupied
func (s *Service) seat(ctx context.Context, tbl *table.Table, o *order.Order) {
	if tbl == nil {
		return
	}
	tbl.BeginSpeculative()
	tbl.Seat(o.ID, o.Total)
	if err := s.tables.Put(ctx, tbl); err != nil {
		s.logger.Error("Failed to persist table locally", zap.String("table_id", tbl.ID.String()), zap.Error(err))
	}
}

// release frees the table of a closed order. Reports whether a table changed.
func (s *Service) release(ctx context.Context, o *order.Order) bool {
	if o.TableID == nil || o.IsOpen() {
		return false
	}
	return s.freeTable(ctx, *o.TableID, o.ID)
}

// freeTable releases the table if it is still held by orderID
func (s *Service) freeTable(ctx context.Context, tableID, orderID uuid.UUID) bool {
	tbl, err := s.tables.Get(ctx, tableID)
	if err != nil || tbl.CurrentOrderID == nil || *tbl.CurrentOrderID != orderID {
		return false
	}
	tbl.BeginSpeculative()
	tbl.Release()
	if err := s.tables.Put(ctx, tbl); err != nil {
		s.logger.Error("Failed to persist table locally", zap.String("table_id", tbl.ID.String()), zap.Error(err))
	}
	return true
}

func (s *Service) refreshFloor(ctx context.Context) {
	if s.floor == nil {
		return
	}
	if err := s.floor.Refresh(ctx); err != nil {
		s.logger.Warn("Floor refresh after order change failed", zap.Error(err))
	}
}

func invalidInput(err error) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
}
