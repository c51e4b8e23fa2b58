package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	types []string
	err   error

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func newNotification(eventType string) *shared.SyncNotificationEvent {
	return shared.NewSyncNotificationEvent(eventType, shared.EntityOrder, uuid.New(),
		shared.OperationUpdate, shared.FailureVersionConflict, "VERSION_CONFLICT", "stale")
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	dropped := &recordingHandler{}
	bus.Subscribe(dropped, shared.EventTypeSyncEntryDropped)

	ev := newNotification(shared.EventTypeSyncEntryDropped)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Equal(t, 1, dropped.count())
	assert.Same(t, ev, dropped.handled[0])

	require.NoError(t, bus.Publish(context.Background(), newNotification(shared.EventTypeSyncConflict)))
	assert.Equal(t, 1, dropped.count(), "other event types are not delivered")
}

func TestInMemoryEventBus_SubscribeUsesHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{types: []string{shared.EventTypeSyncConflict}}
	bus.Subscribe(h)

	_ = bus.Publish(context.Background(),
		newNotification(shared.EventTypeSyncConflict),
		newNotification(shared.EventTypeSyncEntryDropped),
	)
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_Wildcard(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := &recordingHandler{}
	bus.Subscribe(all)

	_ = bus.Publish(context.Background(),
		newNotification(shared.EventTypeSyncConflict),
		newNotification(shared.EventTypeSyncEntryDropped),
	)
	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_HandlerErrorsDoNotStopDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recordingHandler{err: errors.New("boom")}
	panicking := &HandlerFunc{Fn: func(context.Context, shared.DomainEvent) error { panic("bad handler") }}
	ok := &recordingHandler{}
	bus.Subscribe(failing, shared.EventTypeSyncConflict)
	bus.Subscribe(panicking, shared.EventTypeSyncConflict)
	bus.Subscribe(ok, shared.EventTypeSyncConflict)

	err := bus.Publish(context.Background(), newNotification(shared.EventTypeSyncConflict))
	assert.NoError(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, int64(2), bus.failed.Load())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{}
	bus.Subscribe(h, shared.EventTypeSyncConflict, shared.EventTypeSyncEntryDropped)
	bus.Unsubscribe(h)

	_ = bus.Publish(context.Background(), newNotification(shared.EventTypeSyncConflict))
	assert.Equal(t, 0, h.count())
	assert.Empty(t, bus.byType)
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	assert.True(t, bus.Running())
	require.NoError(t, bus.Stop(context.Background()))
	assert.False(t, bus.Running())
}
