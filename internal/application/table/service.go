// Package table runs the floor: table statuses and moving orders between
// tables with transfer, merge and split.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

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

// Remote is the part of the server API the floor uses
type Remote interface {
	GetFloor(ctx context.Context, branchID uuid.UUID) (*remote.Floor, error)
	UpdateTableStatus(ctx context.Context, id uuid.UUID, req remote.TableStatusRequest) (*table.Table, error)
	TransferTable(ctx context.Context, req remote.TransferRequest) (*remote.FloorChange, error)
	MergeTables(ctx context.Context, req remote.MoveItemsRequest) (*remote.FloorChange, error)
	SplitTable(ctx context.Context, req remote.MoveItemsRequest) (*remote.FloorChange, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error)
}

// Service handles floor operations
type Service struct {
	tables    shared.LocalStore[*table.Table]
	zones     shared.LocalStore[*table.Zone]
	orders    shared.LocalStore[*order.Order]
	queue     syncqueue.Enqueuer
	remote    Remote
	online    syncqueue.OnlineChecker
	publisher shared.EventPublisher
	branchID  uuid.UUID
	validate  *validator.Validate
	logger    *zap.Logger
	mu        *sync.Mutex
}

// NewService creates a new floor service
func NewService(
	tables shared.LocalStore[*table.Table],
	zones shared.LocalStore[*table.Zone],
	orders shared.LocalStore[*order.Order],
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
		tables:   tables,
		zones:    zones,
		orders:   orders,
		queue:    queue,
		remote:   client,
		online:   online,
		branchID: branchID,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		mu:       &sync.Mutex{},
	}
}

// SetEventPublisher sets the publisher for operator notifications
func (s *Service) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetLock shares the mutation lock with the order service
func (s *Service) SetLock(mu *sync.Mutex) {
	s.mu = mu
}

// Register installs the replay handlers for the entries this service enqueues
func (s *Service) Register(rec syncqueue.Registrar) {
	rec.Register(shared.EntityTable, &statusHandler{s: s})
	for _, et := range []shared.EntityType{shared.EntityTableTransfer, shared.EntityTableMerge, shared.EntityTableSplit} {
		rec.Register(et, &floorHandler{s: s, entityType: et})
	}
}

// floorState is the set of entities one floor operation touched
type floorState struct {
	tables []*table.Table
	orders []*order.Order
}

func (fs *floorState) ids() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(fs.tables)+len(fs.orders))
	for _, t := range fs.tables {
		ids = append(ids, t.ID)
	}
	for _, o := range fs.orders {
		ids = append(ids, o.ID)
	}
	return ids
}

// floorOp is a prepared floor operation: the speculative local state and the
// one remote call that makes it real
type floorOp struct {
	name       string
	entityType shared.EntityType
	sourceID   uuid.UUID
	base       string
	payload    any
	send       func(ctx context.Context) (*remote.FloorChange, error)
	state      *floorState
}

// ListFloor returns the local floor plan
func (s *Service) ListFloor(ctx context.Context) (*FloorResponse, error) {
	zones, err := s.zones.Query(ctx, shared.All[*table.Zone])
	if err != nil {
		return nil, err
	}
	tables, err := s.tables.Query(ctx, shared.All[*table.Table])
	if err != nil {
		return nil, err
	}
	resp := ToFloorResponse(zones, tables)
	return &resp, nil
}

// GetTable returns one table from the local store
func (s *Service) GetTable(ctx context.Context, id uuid.UUID) (*TableResponse, error) {
	t, err := s.tables.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToTableResponse(t)
	return &resp, nil
}

// SetStatus changes a table's status by hand
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, req SetStatusRequest) (*TableResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "table", "set_status",
		telemetry.SpanAttrEntityID, id.String(),
		telemetry.SpanAttrOnline, s.online.IsOnline(),
	)
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tables.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	base := t.BaseVersion()
	if err := t.SetStatus(table.Status(req.Status)); err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("table_id", id.String()), zap.String("status", req.Status))

	if s.canWriteThrough(ctx, id) {
		confirmed, err := s.remote.UpdateTableStatus(ctx, id, remote.TableStatusRequest{Status: t.Status, ExpectedUpdatedAt: base})
		if err == nil {
			t.Confirm(confirmed, false)
			s.putTable(ctx, t)
			log.Info("Table status changed")
			resp := ToTableResponse(t)
			return &resp, nil
		}
		if shared.ClassifyFailure(err).IsPermanent() {
			telemetry.RecordError(span, err)
			syncqueue.NotifyConflict(ctx, s.publisher, shared.EntityTable, id, shared.OperationUpdate, err, true)
			return nil, err
		}
		log.Warn("Server unreachable, queueing table status", zap.Error(err))
	}

	if _, err := s.queue.Enqueue(ctx, shared.EntityTable, id, shared.OperationUpdate, remote.TableStatusRequest{Status: t.Status}, base); err != nil {
		return nil, err
	}
	s.putTable(ctx, t)
	log.Info("Table status changed offline")
	resp := ToTableResponse(t)
	return &resp, nil
}

// Transfer moves the open order of one table to a free table
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*FloorChangeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, to, src, err := s.loadSource(ctx, req.FromTableID, req.ToTableID)
	if err != nil {
		return nil, err
	}
	base := src.BaseVersion()
	intent, err := table.Transfer(from, to, src)
	if err != nil {
		return nil, err
	}
	payload := remote.TransferRequest{TransferIntent: intent}
	return s.commit(ctx, floorOp{
		name:       "transfer",
		entityType: shared.EntityTableTransfer,
		sourceID:   src.ID,
		base:       base,
		payload:    payload,
		send: func(ctx context.Context) (*remote.FloorChange, error) {
			req := payload
			req.ExpectedUpdatedAt = base
			return s.remote.TransferTable(ctx, req)
		},
		state: &floorState{tables: []*table.Table{from, to}, orders: []*order.Order{src}},
	})
}

// Merge moves cart lines into the open order of another table. The operator
// chooses merge explicitly; a free target is refused, not split into.
func (s *Service) Merge(ctx context.Context, req MergeRequest) (*FloorChangeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, to, src, err := s.loadSource(ctx, req.FromTableID, req.ToTableID)
	if err != nil {
		return nil, err
	}
	if to.CurrentOrderID == nil {
		return nil, shared.NewDomainError(table.ErrTargetHasNoOrder.Code, fmt.Sprintf("Table %s has no open order to merge into", to.Name))
	}
	dst, err := s.orders.Get(ctx, *to.CurrentOrderID)
	if err != nil {
		return nil, fmt.Errorf("order at table %s: %w", to.Name, err)
	}
	base := src.BaseVersion()
	intent, err := table.Merge(from, to, src, dst, req.CartIDs)
	if err != nil {
		return nil, err
	}
	payload := remote.MoveItemsRequest{MoveItemsIntent: intent}
	return s.commit(ctx, floorOp{
		name:       "merge",
		entityType: shared.EntityTableMerge,
		sourceID:   src.ID,
		base:       base,
		payload:    payload,
		send: func(ctx context.Context) (*remote.FloorChange, error) {
			req := payload
			req.ExpectedUpdatedAt = base
			return s.remote.MergeTables(ctx, req)
		},
		state: &floorState{tables: []*table.Table{from, to}, orders: []*order.Order{src, dst}},
	})
}

// Split moves cart lines into a new order seated at a free table
func (s *Service) Split(ctx context.Context, req SplitRequest) (*FloorChangeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidInput(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, to, src, err := s.loadSource(ctx, req.FromTableID, req.ToTableID)
	if err != nil {
		return nil, err
	}
	base := src.BaseVersion()
	dst, intent, err := table.Split(from, to, src, uuid.New(), req.CartIDs)
	if err != nil {
		return nil, err
	}
	payload := remote.MoveItemsRequest{MoveItemsIntent: intent}
	return s.commit(ctx, floorOp{
		name:       "split",
		entityType: shared.EntityTableSplit,
		sourceID:   src.ID,
		base:       base,
		payload:    payload,
		send: func(ctx context.Context) (*remote.FloorChange, error) {
			req := payload
			req.ExpectedUpdatedAt = base
			return s.remote.SplitTable(ctx, req)
		},
		state: &floorState{tables: []*table.Table{from, to}, orders: []*order.Order{src, dst}},
	})
}

// Refresh overwrites the local floor with the server's. Tables that still
// have queued entries keep their local state.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.online.IsOnline() {
		return shared.ErrOffline
	}
	floor, err := s.remote.GetFloor(ctx, s.branchID)
	if err != nil {
		return fmt.Errorf("fetch floor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.zones.BulkPut(ctx, floor.Zones); err != nil && !errors.Is(err, shared.ErrPersistFailed) {
		return err
	}
	fresh := make([]*table.Table, 0, len(floor.Tables))
	for _, t := range floor.Tables {
		if pending, err := s.queue.HasPending(ctx, t.ID); err != nil || pending {
			continue
		}
		fresh = append(fresh, t)
	}
	if err := s.tables.BulkPut(ctx, fresh); err != nil && !errors.Is(err, shared.ErrPersistFailed) {
		return err
	}
	s.logger.Info("Floor refreshed",
		zap.Int("zones", len(floor.Zones)),
		zap.Int("updated", len(fresh)),
		zap.Int("kept_local", len(floor.Tables)-len(fresh)),
	)
	return nil
}

// loadSource loads both tables and the order seated at the source
func (s *Service) loadSource(ctx context.Context, fromID, toID uuid.UUID) (*table.Table, *table.Table, *order.Order, error) {
	from, err := s.tables.Get(ctx, fromID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("table %s: %w", fromID, err)
	}
	to, err := s.tables.Get(ctx, toID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("table %s: %w", toID, err)
	}
	if from.CurrentOrderID == nil {
		return nil, nil, nil, shared.NewDomainError(table.ErrSourceHasNoOrder.Code, fmt.Sprintf("Table %s has no open order", from.Name))
	}
	src, err := s.orders.Get(ctx, *from.CurrentOrderID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("order at table %s: %w", from.Name, err)
	}
	return from, to, src, nil
}

// commit sends a prepared floor operation, or queues it. Nothing is written
// locally when the server refuses the operation outright.
func (s *Service) commit(ctx context.Context, op floorOp) (*FloorChangeResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "table", op.name,
		telemetry.SpanAttrEntityType, string(op.entityType),
		telemetry.SpanAttrEntityID, op.sourceID.String(),
		telemetry.SpanAttrOnline, s.online.IsOnline(),
	)
	defer span.End()

	log := s.logger.With(zap.String("op", op.name), zap.String("order_id", op.sourceID.String()))

	if s.canWriteThrough(ctx, op.state.ids()...) {
		change, err := op.send(ctx)
		if err == nil {
			s.applyChange(ctx, change, nil, nil, op.state)
			log.Info("Floor operation applied")
			return toFloorChangeResponse(op.state, false), nil
		}
		if shared.ClassifyFailure(err).IsPermanent() {
			telemetry.RecordError(span, err)
			syncqueue.NotifyConflict(ctx, s.publisher, op.entityType, op.sourceID, shared.OperationUpdate, err, true)
			log.Warn("Floor operation refused by server", zap.Error(err))
			return nil, err
		}
		log.Warn("Server unreachable, queueing floor operation", zap.Error(err))
	}

	if _, err := s.queue.Enqueue(ctx, op.entityType, op.sourceID, shared.OperationUpdate, op.payload, op.base); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	for _, t := range op.state.tables {
		s.putTable(ctx, t)
	}
	for _, o := range op.state.orders {
		s.putOrder(ctx, o)
	}
	log.Info("Floor operation applied offline")
	return toFloorChangeResponse(op.state, true), nil
}

// applyChange writes the server's view of a floor operation. When state is
// given, its entities are replaced by the confirmed copies and any the server
// did not return are stored as they are.
func (s *Service) applyChange(ctx context.Context, change *remote.FloorChange, pending syncqueue.PendingCounter, entry *shared.SyncQueueEntry, state *floorState) []syncqueue.VersionChange {
	var changes []syncqueue.VersionChange
	stillPending := func(id uuid.UUID) bool {
		return entry != nil && syncqueue.StillPending(ctx, pending, entry, id)
	}
	confirmedTables := make(map[uuid.UUID]*table.Table)
	confirmedOrders := make(map[uuid.UUID]*order.Order)

	if change != nil {
		for _, rt := range change.Tables {
			local, err := s.tables.Get(ctx, rt.ID)
			from := ""
			if err == nil {
				from = local.BaseVersion()
			} else {
				local = rt.Clone()
			}
			local.Confirm(rt, stillPending(rt.ID))
			s.putTable(ctx, local)
			confirmedTables[rt.ID] = local
			changes = append(changes, syncqueue.VersionChange{EntityID: rt.ID, From: from, To: shared.FormatVersion(rt.UpdatedAt)})
		}
		for _, ro := range change.Orders {
			local, err := s.orders.Get(ctx, ro.ID)
			from := ""
			if err == nil {
				from = local.BaseVersion()
			} else {
				local = ro.Clone()
			}
			local.Confirm(ro, stillPending(ro.ID))
			s.putOrder(ctx, local)
			confirmedOrders[ro.ID] = local
			changes = append(changes, syncqueue.VersionChange{EntityID: ro.ID, From: from, To: shared.FormatVersion(ro.UpdatedAt)})
		}
	}

	if state != nil {
		for i, t := range state.tables {
			if c, ok := confirmedTables[t.ID]; ok {
				state.tables[i] = c
				continue
			}
			s.putTable(ctx, t)
		}
		for i, o := range state.orders {
			if c, ok := confirmedOrders[o.ID]; ok {
				state.orders[i] = c
				continue
			}
			s.putOrder(ctx, o)
		}
	}
	return changes
}

// canWriteThrough reports whether a write may go straight to the server.
// Entities with queued entries wait behind them.
func (s *Service) canWriteThrough(ctx context.Context, ids ...uuid.UUID) bool {
	if !s.online.IsOnline() {
		return false
	}
	for _, id := range ids {
		pending, err := s.queue.HasPending(ctx, id)
		if err != nil || pending {
			return false
		}
	}
	return true
}

func (s *Service) putTable(ctx context.Context, t *table.Table) {
	if err := s.tables.Put(ctx, t); err != nil {
		s.logger.Error("Failed to persist table locally", zap.String("table_id", t.ID.String()), zap.Error(err))
	}
}

func (s *Service) putOrder(ctx context.Context, o *order.Order) {
	if err := s.orders.Put(ctx, o); err != nil {
		s.logger.Error("Failed to persist order locally", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func invalidInput(err error) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
}
