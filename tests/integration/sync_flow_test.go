//go:build integration

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	orderapp "github.com/erp/pos/internal/application/order"
	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/connectivity"
	"github.com/erp/pos/internal/infrastructure/event"
	"github.com/erp/pos/internal/infrastructure/migration"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/internal/infrastructure/remote"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

// agent is the sync stack wired over postgres the way cmd/posagent wires it
type agent struct {
	orders        *persistence.OrderStore
	queue         *persistence.GormSyncQueueRepository
	deadLetters   *persistence.GormDeadLetterRepository
	monitor       *connectivity.Monitor
	reconciler    *syncqueue.Reconciler
	notifications *syncqueue.NotificationLog
	service       *orderapp.Service
}

func newAgent(t *testing.T, tdb *TestDB, serverURL string) *agent {
	t.Helper()
	log := zap.NewNop()

	a := &agent{
		orders:        persistence.NewOrderStore(tdb.DB, log),
		queue:         persistence.NewGormSyncQueueRepository(tdb.DB),
		deadLetters:   persistence.NewGormDeadLetterRepository(tdb.DB),
		monitor:       connectivity.NewMonitor(),
		notifications: syncqueue.NewNotificationLog(10, log),
	}
	client, err := remote.New(config.RemoteConfig{BaseURL: serverURL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(a.notifications, a.notifications.EventTypes()...)

	a.reconciler = syncqueue.NewReconciler(a.queue, a.deadLetters, persistence.NewGormIdempotencyStore(tdb.DB),
		a.monitor, bus, syncqueue.ReconcilerConfig{CallTimeout: 2 * time.Second}, log)
	a.service = orderapp.NewService(a.orders, persistence.NewTableStore(tdb.DB, log), syncqueue.NewQueue(a.queue, log),
		client, a.monitor, uuid.New(), log)
	a.service.SetEventPublisher(bus)
	a.service.Register(a.reconciler)
	return a
}

func takeaway() orderapp.CreateOrderRequest {
	return orderapp.CreateOrderRequest{
		Type: "TAKEAWAY",
		Items: []orderapp.OrderItemInput{
			{CartID: "c1", Name: "Banh mi", Quantity: 2, UnitPrice: decimal.NewFromInt(45)},
		},
	}
}

func TestOfflineOrderDrainsOnReconnect(t *testing.T) {
	tdb := NewSharedTestDB(t)
	serverTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		body, _ := io.ReadAll(r.Body)

		var sent map[string]any
		require.NoError(t, json.Unmarshal(body, &sent))
		sent["updated_at"] = serverTime
		raw, _ := json.Marshal(map[string]any{"success": true, "data": sent})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	a := newAgent(t, tdb, srv.URL)
	ctx := t.Context()

	created, err := a.service.Create(ctx, takeaway())
	require.NoError(t, err)
	assert.Equal(t, string(shared.SyncStatusPending), created.SyncStatus)
	assert.Zero(t, calls.Load(), "offline create must not reach the server")

	pending, err := a.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	// offline drains are refused
	res := a.reconciler.SyncNow(ctx)
	assert.Equal(t, syncqueue.OutcomeOffline, res.Outcome)

	a.monitor.SetOnline(true)
	res = a.reconciler.SyncNow(ctx)
	assert.Equal(t, syncqueue.OutcomeDrained, res.Outcome)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, int32(1), calls.Load())

	pending, err = a.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	got, err := a.orders.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.SyncStatusSynced, got.SyncStatus)
	assert.Equal(t, serverTime, got.UpdatedAt.UTC())
	assert.True(t, decimal.NewFromInt(90).Equal(got.Total))
}

func TestRejectedOrderIsDeadLettered(t *testing.T) {
	tdb := NewSharedTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"success":false,"error":{"code":"MENU_ITEM_RETIRED","message":"Banh mi is no longer sold"}}`)
	}))
	defer srv.Close()

	a := newAgent(t, tdb, srv.URL)
	ctx := t.Context()

	created, err := a.service.Create(ctx, takeaway())
	require.NoError(t, err)

	a.monitor.SetOnline(true)
	res := a.reconciler.SyncNow(ctx)
	assert.Equal(t, syncqueue.OutcomeDrained, res.Outcome)
	assert.Equal(t, 1, res.Dropped)

	pending, err := a.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	letters, err := a.reconciler.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, created.ID, letters[0].Entry.EntityID)
	assert.Equal(t, "MENU_ITEM_RETIRED", letters[0].Code)

	recent := a.notifications.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, shared.EventTypeSyncEntryDropped, recent[0].Type)

	// The operator can put the entry back on the queue. Offline, so the
	// requeued entry is not replayed straight away.
	a.monitor.SetOnline(false)
	entry, err := a.reconciler.Retry(ctx, letters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, entry.EntityID)
	pending, err = a.queue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestMigrationsApplied(t *testing.T) {
	tdb := NewSharedTestDB(t)
	m, err := migration.New(tdb.SqlDB, zap.NewNop())
	require.NoError(t, err)
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	var tables int64
	require.NoError(t, tdb.DB.Raw(`SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = 'sync_queue'`).Scan(&tables).Error)
	assert.Equal(t, int64(1), tables)
}
