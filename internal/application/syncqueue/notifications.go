package syncqueue

import (
	"context"
	"sync"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationLog keeps the most recent sync notifications for the operator
// screen. It subscribes to the event bus.
type NotificationLog struct {
	logger *zap.Logger

	mu    sync.Mutex
	buf   []*shared.SyncNotificationEvent
	next  int
	full  bool
	total int64
}

// NewNotificationLog keeps up to size notifications
func NewNotificationLog(size int, logger *zap.Logger) *NotificationLog {
	if size <= 0 {
		size = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationLog{
		logger: logger,
		buf:    make([]*shared.SyncNotificationEvent, size),
	}
}

// EventTypes implements shared.EventHandler
func (l *NotificationLog) EventTypes() []string {
	return []string{shared.EventTypeSyncEntryDropped, shared.EventTypeSyncConflict}
}

// Handle implements shared.EventHandler
func (l *NotificationLog) Handle(_ context.Context, event shared.DomainEvent) error {
	ev, ok := event.(*shared.SyncNotificationEvent)
	if !ok {
		return nil
	}

	l.mu.Lock()
	l.buf[l.next] = ev
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.total++
	l.mu.Unlock()

	fields := []zap.Field{
		zap.String("event_type", ev.EventType()),
		zap.String("entity_type", string(ev.EntityType)),
		zap.String("entity_id", ev.AggregateID().String()),
		zap.String("kind", string(ev.Kind)),
		zap.String("code", ev.Code),
		zap.Bool("rolled_back", ev.RolledBack),
	}
	if ev.Kind == shared.FailurePermission {
		l.logger.Error("Change refused by server, check terminal permissions", fields...)
	} else {
		l.logger.Warn("Change did not reach the server as made", fields...)
	}
	return nil
}

// Recent returns up to limit notifications, newest first
func (l *NotificationLog) Recent(limit int) []NotificationResponse {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]NotificationResponse, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
		out = append(out, ToNotificationResponse(l.buf[idx]))
	}
	return out
}

// Total counts every notification seen since start
func (l *NotificationLog) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// NotifyConflict tells the operator that an online write was refused. The
// change was never queued, so there is no dead letter.
func NotifyConflict(ctx context.Context, publisher shared.EventPublisher, entityType shared.EntityType, entityID uuid.UUID, op shared.Operation, cause error, rolledBack bool) {
	if publisher == nil || cause == nil {
		return
	}
	ev := shared.NewSyncNotificationEvent(shared.EventTypeSyncConflict, entityType, entityID, op,
		shared.ClassifyFailure(cause), shared.FailureCode(cause), failureMessage(cause))
	ev.RolledBack = rolledBack
	_ = publisher.Publish(ctx, ev)
}
