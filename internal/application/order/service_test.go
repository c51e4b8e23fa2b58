package order

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/internal/infrastructure/remote"
	"github.com/erp/pos/tests/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRemote is a mock implementation of Remote
type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) UpsertOrder(ctx context.Context, dto remote.OrderDTO) (*order.Order, error) {
	args := m.Called(ctx, dto)
	if fn, ok := args.Get(0).(func(context.Context, remote.OrderDTO) (*order.Order, error)); ok {
		return fn(ctx, dto)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *mockRemote) UpdateOrderStatus(ctx context.Context, id uuid.UUID, req remote.StatusRequest) (*order.Order, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *mockRemote) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *mockRemote) ListOrders(ctx context.Context, f remote.OrderFilter) ([]*order.Order, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}

func (m *mockRemote) DeleteOrder(ctx context.Context, id uuid.UUID, req remote.DeleteRequest) error {
	args := m.Called(ctx, id, req)
	return args.Error(0)
}

type onlineFlag struct{ v atomic.Bool }

func (f *onlineFlag) IsOnline() bool   { return f.v.Load() }
func (f *onlineFlag) Set(online bool) { f.v.Store(online) }

type countingRefresher struct{ calls atomic.Int32 }

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return nil
}

type fixture struct {
	orders  *persistence.OrderStore
	tables  *persistence.TableStore
	repo    *persistence.GormSyncQueueRepository
	dead    *persistence.GormDeadLetterRepository
	applied *persistence.GormIdempotencyStore
	online  *onlineFlag
	remote  *mockRemote
	events  *testutil.MockEventHandler
	floor   *countingRefresher
	svc     *Service
	table5  *table.Table
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := &fixture{
		orders:  persistence.NewOrderStore(db, zap.NewNop()),
		tables:  persistence.NewTableStore(db, zap.NewNop()),
		repo:    persistence.NewGormSyncQueueRepository(db),
		dead:    persistence.NewGormDeadLetterRepository(db),
		applied: persistence.NewGormIdempotencyStore(db),
		online:  &onlineFlag{},
		remote:  new(mockRemote),
		events:  testutil.NewMockEventHandler(),
		floor:   &countingRefresher{},
		table5:  testutil.NewSyncedTable("T5", testutil.Version(0)),
	}
	f.online.Set(online)
	require.NoError(t, f.tables.Put(context.Background(), f.table5))

	queue := syncqueue.NewQueue(f.repo, zap.NewNop())
	f.svc = NewService(f.orders, f.tables, queue, f.remote, f.online, testutil.TestBranchID(), zap.NewNop())
	f.svc.SetEventPublisher(f.events)
	f.svc.SetFloorRefresher(f.floor)
	return f
}

func (f *fixture) reconciler() *syncqueue.Reconciler {
	rec := syncqueue.NewReconciler(f.repo, f.dead, f.applied, f.online, f.events, syncqueue.ReconcilerConfig{}, zap.NewNop())
	f.svc.Register(rec)
	return rec
}

func (f *fixture) queued(t *testing.T) []*shared.SyncQueueEntry {
	t.Helper()
	entries, err := f.repo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	return entries
}

func dineInRequest(tableID uuid.UUID) CreateOrderRequest {
	return CreateOrderRequest{
		Type:    string(order.TypeDineIn),
		TableID: &tableID,
		Items: []OrderItemInput{
			{CartID: "cart-pasta", Name: "Pasta", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
			{CartID: "cart-wine", Name: "Wine", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
		},
	}
}

// serverCopy is the order as the server returns it
func serverCopy(o *order.Order, status order.Status, version time.Time) *order.Order {
	c := o.Clone()
	c.Confirmed = nil
	c.Status = status
	c.UpdatedAt = version
	c.SyncStatus = shared.SyncStatusSynced
	return c
}

func syncedOrder(t *testing.T, f *fixture, version time.Time) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.TypeTakeaway, testutil.TestBranchID(), nil, testutil.Items("Burger", 1, 30))
	require.NoError(t, err)
	o.MarkSynced(version)
	o.UpdatedAt = version
	require.NoError(t, f.orders.Put(context.Background(), o))
	return o
}

func TestService_OfflineOrderReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	assert.Equal(t, "140", created.Total.String())
	assert.Equal(t, string(shared.SyncStatusPending), created.SyncStatus)

	started, err := f.svc.ApplyAction(ctx, created.ID, StatusActionRequest{Action: string(order.ActionStart), ChangedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPreparing), started.Status)

	entries := f.queued(t)
	require.Len(t, entries, 2)
	assert.Equal(t, shared.OperationCreate, entries[0].Operation)
	assert.Equal(t, shared.EntityOrderStatus, entries[1].EntityType)
	assert.Empty(t, entries[1].BaseVersion)

	tbl, err := f.tables.Get(ctx, f.table5.ID)
	require.NoError(t, err)
	require.NotNil(t, tbl.CurrentOrderID)
	assert.Equal(t, created.ID, *tbl.CurrentOrderID)

	local, err := f.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	v1 := serverCopy(local, order.StatusPending, testutil.Version(1))
	v2 := serverCopy(local, order.StatusPreparing, testutil.Version(2))

	f.remote.On("UpsertOrder", mock.Anything, mock.MatchedBy(func(dto remote.OrderDTO) bool {
		return dto.ID == created.ID && dto.Status == order.StatusPending
	})).Return(v1, nil).Once()
	f.remote.On("UpdateOrderStatus", mock.Anything, created.ID, mock.MatchedBy(func(req remote.StatusRequest) bool {
		return req.Status == order.StatusPreparing && req.ExpectedUpdatedAt == shared.FormatVersion(testutil.Version(1))
	})).Return(v2, nil).Once()

	f.online.Set(true)
	res := f.reconciler().Drain(ctx, syncqueue.TriggerManual)

	assert.Equal(t, syncqueue.OutcomeDrained, res.Outcome)
	assert.Equal(t, 2, res.Replayed)
	assert.Empty(t, f.queued(t))

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPreparing), got.Status)
	assert.Equal(t, string(shared.SyncStatusSynced), got.SyncStatus)
	assert.Equal(t, shared.FormatVersion(testutil.Version(2)), got.Version)
	f.remote.AssertExpectations(t)
}

func TestService_CreateOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.remote.On("UpsertOrder", mock.Anything, mock.AnythingOfType("remote.OrderDTO")).
		Return(func(_ context.Context, dto remote.OrderDTO) (*order.Order, error) {
			o, err := dto.ToOrder()
			if err != nil {
				return nil, err
			}
			o.UpdatedAt = testutil.Version(1)
			return o, nil
		}, nil).Once()

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	assert.Equal(t, string(shared.SyncStatusSynced), created.SyncStatus)
	assert.Equal(t, shared.FormatVersion(testutil.Version(1)), created.Version)
	assert.Empty(t, f.queued(t))

	tbl, err := f.tables.Get(ctx, f.table5.ID)
	require.NoError(t, err)
	require.NotNil(t, tbl.CurrentOrderID)
	assert.Equal(t, created.ID, *tbl.CurrentOrderID)
	assert.Equal(t, int32(1), f.floor.calls.Load())
}

func TestService_CreateFallsBackToQueueWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.remote.On("UpsertOrder", mock.Anything, mock.Anything).
		Return(nil, &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: 503, Message: "unavailable"}).Once()

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	assert.Equal(t, string(shared.SyncStatusPending), created.SyncStatus)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, created.ID, entries[0].EntityID)
	assert.Zero(t, f.floor.calls.Load())
}

func TestService_CreateRefusedByServer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.remote.On("UpsertOrder", mock.Anything, mock.Anything).
		Return(nil, &shared.RemoteError{Kind: shared.FailureValidation, StatusCode: 422, Code: "MENU_ITEM_UNAVAILABLE", Message: "Pasta is sold out"}).Once()

	_, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.Error(t, err)
	assert.Equal(t, shared.FailureValidation, shared.ClassifyFailure(err))

	all, err := f.orders.Query(ctx, shared.All[*order.Order])
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.queued(t))

	notes := f.events.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, shared.EventTypeSyncConflict, notes[0].EventType())
	assert.Equal(t, "MENU_ITEM_UNAVAILABLE", notes[0].Code)

	tbl, err := f.tables.Get(ctx, f.table5.ID)
	require.NoError(t, err)
	assert.False(t, tbl.HasOpenOrder())
}

func TestService_CreateRejectsOccupiedTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrTargetOccupied)
	assert.Len(t, f.queued(t), 1)
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t, false)
	tableID := f.table5.ID

	tests := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"no items", CreateOrderRequest{Type: string(order.TypeTakeaway)}},
		{"unknown type", CreateOrderRequest{Type: "DRIVE_THRU", Items: dineInRequest(tableID).Items}},
		{"zero quantity", CreateOrderRequest{Type: string(order.TypeTakeaway), Items: []OrderItemInput{{Name: "Tea", Quantity: 0}}}},
		{"dine in without table", CreateOrderRequest{Type: string(order.TypeDineIn), Items: dineInRequest(tableID).Items}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, f.queued(t))
}

func TestService_InvalidTransitionQueuesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)

	_, err = f.svc.ApplyAction(ctx, created.ID, StatusActionRequest{Action: string(order.ActionMarkReady)})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Len(t, f.queued(t), 1)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPending), got.Status)
}

func TestService_TerminalStatusReleasesTable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	_, err = f.svc.ApplyAction(ctx, created.ID, StatusActionRequest{Action: string(order.ActionCancel)})
	require.NoError(t, err)

	tbl, err := f.tables.Get(ctx, f.table5.ID)
	require.NoError(t, err)
	assert.False(t, tbl.HasOpenOrder())
	assert.Equal(t, table.StatusAvailable, tbl.Status)
	assert.Len(t, f.queued(t), 2)
}

func TestService_StatusConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	o := syncedOrder(t, f, testutil.Version(1))

	conflict := &shared.RemoteError{Kind: shared.FailureVersionConflict, StatusCode: 409, Code: "VERSION_CONFLICT", Message: "stale"}
	f.remote.On("UpdateOrderStatus", mock.Anything, o.ID, mock.MatchedBy(func(req remote.StatusRequest) bool {
		return req.ExpectedUpdatedAt == shared.FormatVersion(testutil.Version(1))
	})).Return(nil, conflict).Once()
	f.remote.On("GetOrder", mock.Anything, o.ID).Return(nil, &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: 503}).Once()

	_, err := f.svc.ApplyAction(ctx, o.ID, StatusActionRequest{Action: string(order.ActionStart)})
	require.Error(t, err)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPending), got.Status)
	assert.Equal(t, string(shared.SyncStatusSynced), got.SyncStatus)
	assert.Empty(t, f.queued(t))

	notes := f.events.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, shared.FailureVersionConflict, notes[0].Kind)
	assert.True(t, notes[0].RolledBack)
}

func TestService_StatusConflictTakesServerCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	o := syncedOrder(t, f, testutil.Version(1))

	f.remote.On("UpdateOrderStatus", mock.Anything, o.ID, mock.Anything).
		Return(nil, &shared.RemoteError{Kind: shared.FailurePrecondition, StatusCode: 422, Code: "ORDER_CLOSED"}).Once()
	f.remote.On("GetOrder", mock.Anything, o.ID).Return(serverCopy(o, order.StatusCancelled, testutil.Version(4)), nil).Once()

	_, err := f.svc.ApplyAction(ctx, o.ID, StatusActionRequest{Action: string(order.ActionStart)})
	require.Error(t, err)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusCancelled), got.Status)
	assert.Equal(t, shared.FormatVersion(testutil.Version(4)), got.Version)
}

func TestService_WriteWaitsBehindQueuedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)

	// back online before the queue drained; the status change must queue
	// behind the create
	f.online.Set(true)
	_, err = f.svc.ApplyAction(ctx, created.ID, StatusActionRequest{Action: string(order.ActionStart)})
	require.NoError(t, err)

	assert.Len(t, f.queued(t), 2)
	f.remote.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_DeleteOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, created.ID))

	_, err = f.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	tbl, err := f.tables.Get(ctx, f.table5.ID)
	require.NoError(t, err)
	assert.False(t, tbl.HasOpenOrder())

	entries := f.queued(t)
	require.Len(t, entries, 2)
	assert.Equal(t, shared.OperationDelete, entries[1].Operation)
}

func TestService_DeleteOnline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	o := syncedOrder(t, f, testutil.Version(1))

	f.remote.On("DeleteOrder", mock.Anything, o.ID, remote.DeleteRequest{ExpectedUpdatedAt: shared.FormatVersion(testutil.Version(1))}).
		Return(nil).Once()

	require.NoError(t, f.svc.Delete(ctx, o.ID))
	_, err := f.orders.Get(ctx, o.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	f.remote.AssertExpectations(t)
}

func TestService_RejectedCreateIsFlagged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)

	f.remote.On("UpsertOrder", mock.Anything, mock.Anything).
		Return(nil, &shared.RemoteError{Kind: shared.FailureValidation, StatusCode: 422, Code: "INVALID_ORDER"}).Once()

	f.online.Set(true)
	res := f.reconciler().Drain(ctx, syncqueue.TriggerManual)
	assert.Equal(t, 1, res.Dropped)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(shared.SyncStatusConflicted), got.SyncStatus)

	n, err := f.dead.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	notes := f.events.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, shared.EventTypeSyncEntryDropped, notes[0].EventType())
	assert.False(t, notes[0].RolledBack)
}

func TestService_RejectedStatusRestoresServerCopy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	o := syncedOrder(t, f, testutil.Version(1))

	_, err := f.svc.ApplyAction(ctx, o.ID, StatusActionRequest{Action: string(order.ActionStart)})
	require.NoError(t, err)

	f.remote.On("UpdateOrderStatus", mock.Anything, o.ID, mock.Anything).
		Return(nil, &shared.RemoteError{Kind: shared.FailureVersionConflict, StatusCode: 409, Code: "VERSION_CONFLICT"}).Once()
	f.remote.On("GetOrder", mock.Anything, o.ID).Return(serverCopy(o, order.StatusReady, testutil.Version(5)), nil).Once()

	f.online.Set(true)
	res := f.reconciler().Drain(ctx, syncqueue.TriggerManual)
	assert.Equal(t, 1, res.Dropped)

	got, err := f.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusReady), got.Status)
	assert.Equal(t, string(shared.SyncStatusSynced), got.SyncStatus)

	notes := f.events.Notifications()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].RolledBack)
}

func TestService_Refresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	local, err := f.orders.Get(ctx, created.ID)
	require.NoError(t, err)

	other, err := order.NewOrder(order.TypePickup, testutil.TestBranchID(), nil, testutil.Items("Soup", 1, 12))
	require.NoError(t, err)

	f.remote.On("ListOrders", mock.Anything, mock.MatchedBy(func(filter remote.OrderFilter) bool {
		return filter.BranchID == testutil.TestBranchID()
	})).Return([]*order.Order{
		serverCopy(local, order.StatusReady, testutil.Version(3)),
		serverCopy(other, order.StatusPending, testutil.Version(2)),
	}, nil).Once()

	assert.ErrorIs(t, f.svc.Refresh(ctx), shared.ErrOffline)

	f.online.Set(true)
	require.NoError(t, f.svc.Refresh(ctx))

	mine, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(order.StatusPending), mine.Status, "queued order keeps its local state")

	fetched, err := f.svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, string(shared.SyncStatusSynced), fetched.SyncStatus)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	first, err := f.svc.Create(ctx, dineInRequest(f.table5.ID))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, CreateOrderRequest{
		Type:  string(order.TypeTakeaway),
		Items: []OrderItemInput{{Name: "Coffee", Quantity: 1, UnitPrice: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)
	_, err = f.svc.ApplyAction(ctx, second.ID, StatusActionRequest{Action: string(order.ActionCancel)})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, OrderListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := f.svc.List(ctx, OrderListFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)

	atTable, err := f.svc.List(ctx, OrderListFilter{TableID: &f.table5.ID})
	require.NoError(t, err)
	assert.Len(t, atTable, 1)
}
