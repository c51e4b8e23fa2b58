package syncqueue

import (
	"context"
	"testing"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func notification(kind shared.FailureKind, code string) *shared.SyncNotificationEvent {
	return shared.NewSyncNotificationEvent(shared.EventTypeSyncEntryDropped, shared.EntityOrder, uuid.New(), shared.OperationUpdate, kind, code, code)
}

func TestNotificationLog_NewestFirstAndBounded(t *testing.T) {
	log := NewNotificationLog(3, nil)
	var sent []*shared.SyncNotificationEvent
	for i := 0; i < 5; i++ {
		n := notification(shared.FailurePrecondition, "C"+string(rune('0'+i)))
		sent = append(sent, n)
		require.NoError(t, log.Handle(context.Background(), n))
	}

	recent := log.Recent(0)

	require.Len(t, recent, 3)
	assert.Equal(t, sent[4].EventID(), recent[0].ID)
	assert.Equal(t, sent[3].EventID(), recent[1].ID)
	assert.Equal(t, sent[2].EventID(), recent[2].ID)
	assert.Len(t, log.Recent(2), 2)
	assert.Equal(t, int64(5), log.Total())
}

func TestNotificationLog_Empty(t *testing.T) {
	log := NewNotificationLog(0, nil)

	assert.Empty(t, log.Recent(10))
	assert.Zero(t, log.Total())
}

func TestNotificationLog_IgnoresOtherEvents(t *testing.T) {
	log := NewNotificationLog(5, nil)
	other := shared.NewBaseDomainEvent("OrderCreated", "Order", uuid.New())

	require.NoError(t, log.Handle(context.Background(), &other))

	assert.Zero(t, log.Total())
}

func TestNotificationLog_PermissionLoggedAsError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewNotificationLog(5, zap.New(core))

	require.NoError(t, log.Handle(context.Background(), notification(shared.FailurePermission, "FORBIDDEN")))
	require.NoError(t, log.Handle(context.Background(), notification(shared.FailureVersionConflict, "VERSION_CONFLICT")))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestNotificationLog_SubscribedToBus(t *testing.T) {
	bus := event.NewInMemoryEventBus(zap.NewNop())
	log := NewNotificationLog(5, nil)
	bus.Subscribe(log)

	n := notification(shared.FailureValidation, "INVALID_INPUT")
	n.RolledBack = true
	require.NoError(t, bus.Publish(context.Background(), n))

	recent := log.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, shared.EventTypeSyncEntryDropped, recent[0].Type)
	assert.Equal(t, "VALIDATION", recent[0].Kind)
	assert.True(t, recent[0].RolledBack)
}
