package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/connectivity"
	"github.com/erp/pos/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSyncOperator struct {
	mock.Mock
}

func (m *mockSyncOperator) Status(ctx context.Context) (syncqueue.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(syncqueue.Status), args.Error(1)
}

func (m *mockSyncOperator) SyncNow(ctx context.Context) syncqueue.DrainResult {
	return m.Called(ctx).Get(0).(syncqueue.DrainResult)
}

func (m *mockSyncOperator) Pending(ctx context.Context, limit int) ([]syncqueue.EntryResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]syncqueue.EntryResponse), args.Error(1)
}

func (m *mockSyncOperator) DeadLetters(ctx context.Context, limit int) ([]syncqueue.DeadLetterResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]syncqueue.DeadLetterResponse), args.Error(1)
}

func (m *mockSyncOperator) Retry(ctx context.Context, id uuid.UUID) (*syncqueue.EntryResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncqueue.EntryResponse), args.Error(1)
}

func (m *mockSyncOperator) Discard(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type fakeFeed struct {
	items []syncqueue.NotificationResponse
}

func (f *fakeFeed) Recent(limit int) []syncqueue.NotificationResponse {
	if limit < len(f.items) {
		return f.items[:limit]
	}
	return f.items
}

func (f *fakeFeed) Total() int64 { return int64(len(f.items)) }

func syncEngine(op SyncOperator, feed NotificationFeed, conn Connectivity) *gin.Engine {
	h := NewSyncHandler(op, feed, conn)
	engine := newEngine()
	g := engine.Group("/api/v1")
	g.GET("/sync/status", h.Status)
	g.POST("/sync/now", h.SyncNow)
	g.GET("/sync/pending", h.Pending)
	g.GET("/sync/dead-letters", h.DeadLetters)
	g.POST("/sync/dead-letters/:id/retry", h.Retry)
	g.DELETE("/sync/dead-letters/:id", h.Discard)
	g.GET("/sync/notifications", h.Notifications)
	g.GET("/connectivity", h.Connectivity)
	g.PUT("/connectivity", h.SetConnectivity)
	return engine
}

func TestSyncHandler_StatusAndDrain(t *testing.T) {
	op := new(mockSyncOperator)
	engine := syncEngine(op, &fakeFeed{}, connectivity.NewMonitor())

	op.On("Status", mock.Anything).Return(syncqueue.Status{Online: true, Pending: 2}, nil)
	op.On("SyncNow", mock.Anything).Return(syncqueue.DrainResult{Trigger: syncqueue.TriggerManual, Outcome: syncqueue.OutcomeDrained, Replayed: 2})

	st := testutil.DataAs[syncqueue.Status](t, testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/sync/status", nil))
	assert.Equal(t, int64(2), st.Pending)

	res := testutil.DataAs[syncqueue.DrainResult](t, testutil.DoJSON(t, engine, http.MethodPost, "/api/v1/sync/now", nil))
	assert.Equal(t, syncqueue.OutcomeDrained, res.Outcome)
	assert.Equal(t, 2, res.Replayed)
	op.AssertExpectations(t)
}

func TestSyncHandler_Lists(t *testing.T) {
	op := new(mockSyncOperator)
	feed := &fakeFeed{items: []syncqueue.NotificationResponse{
		{Type: shared.EventTypeSyncConflict, Kind: string(shared.FailureVersionConflict)},
		{Type: shared.EventTypeSyncConflict, Kind: string(shared.FailurePrecondition)},
	}}
	engine := syncEngine(op, feed, connectivity.NewMonitor())

	op.On("Pending", mock.Anything, 100).Return([]syncqueue.EntryResponse{{Seq: 1}, {Seq: 2}}, nil)
	op.On("DeadLetters", mock.Anything, 10).Return([]syncqueue.DeadLetterResponse{{Kind: "VERSION_CONFLICT"}}, nil)

	entries := testutil.DataAs[[]syncqueue.EntryResponse](t, testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/sync/pending", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Seq)

	letters := testutil.DataAs[[]syncqueue.DeadLetterResponse](t, testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/sync/dead-letters?limit=10", nil))
	assert.Len(t, letters, 1)

	w := testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/sync/notifications?limit=1", nil)
	assert.Len(t, testutil.DataAs[[]syncqueue.NotificationResponse](t, w), 1)
	assert.Contains(t, w.Body.String(), `"total":2`)

	w = testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/sync/pending?limit=0", nil)
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "ERR_BAD_REQUEST")
	op.AssertExpectations(t)
}

func TestSyncHandler_RetryAndDiscard(t *testing.T) {
	op := new(mockSyncOperator)
	engine := syncEngine(op, &fakeFeed{}, connectivity.NewMonitor())
	id := testutil.NewTestUUID("DL1")
	gone := testutil.NewTestUUID("DL2")

	op.On("Retry", mock.Anything, id).Return(&syncqueue.EntryResponse{Seq: 9}, nil)
	op.On("Discard", mock.Anything, id).Return(nil)
	op.On("Discard", mock.Anything, gone).Return(shared.ErrNotFound)

	w := testutil.DoJSON(t, engine, http.MethodPost, "/api/v1/sync/dead-letters/"+id.String()+"/retry", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(9), testutil.DataAs[syncqueue.EntryResponse](t, w).Seq)

	w = testutil.DoJSON(t, engine, http.MethodDelete, "/api/v1/sync/dead-letters/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodDelete, "/api/v1/sync/dead-letters/"+gone.String(), nil)
	testutil.AssertErrorResponse(t, w, http.StatusNotFound, "ERR_NOT_FOUND")
	op.AssertExpectations(t)
}

func TestSyncHandler_Connectivity(t *testing.T) {
	monitor := connectivity.NewMonitor()
	var reconnects int
	monitor.Subscribe(func() { reconnects++ })
	engine := syncEngine(new(mockSyncOperator), &fakeFeed{}, monitor)

	st := testutil.DataAs[connectivity.Status](t, testutil.DoJSON(t, engine, http.MethodGet, "/api/v1/connectivity", nil))
	assert.False(t, st.Online)

	w := testutil.DoJSON(t, engine, http.MethodPut, "/api/v1/connectivity", map[string]bool{"online": true})
	st = testutil.DataAs[connectivity.Status](t, w)
	assert.True(t, st.Online)
	assert.True(t, monitor.IsOnline())
	assert.Equal(t, 1, reconnects)

	w = testutil.DoJSON(t, engine, http.MethodPut, "/api/v1/connectivity", map[string]any{})
	testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "ERR_VALIDATION")
}
