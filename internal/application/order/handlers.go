package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/remote"
	"go.uber.org/zap"
)

// orderHandler replays queued order CREATE and DELETE entries
type orderHandler struct {
	s *Service
}

func (h *orderHandler) Send(ctx context.Context, entry *shared.SyncQueueEntry) (syncqueue.ApplyFunc, error) {
	switch entry.Operation {
	case shared.OperationCreate, shared.OperationUpdate:
		var dto remote.OrderDTO
		if err := h.s.queue.Decode(entry, &dto); err != nil {
			return nil, err
		}
		confirmed, err := h.s.remote.UpsertOrder(ctx, dto)
		if err != nil {
			return nil, err
		}
		return h.s.confirmFunc(entry, confirmed), nil

	case shared.OperationDelete:
		var req remote.DeleteRequest
		if err := h.s.queue.Decode(entry, &req); err != nil {
			return nil, err
		}
		req.ExpectedUpdatedAt = entry.BaseVersion
		if err := h.s.remote.DeleteOrder(ctx, entry.EntityID, req); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// already gone on the server
				return nil, nil
			}
			return nil, err
		}
		return nil, nil
	}
	return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unsupported order operation %q", entry.Operation))
}

func (h *orderHandler) Reject(ctx context.Context, entry *shared.SyncQueueEntry, _ error) (bool, error) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Operation == shared.OperationDelete {
		// the server kept the order; bring it back
		authoritative, err := s.remote.GetOrder(ctx, entry.EntityID)
		if err != nil {
			return false, nil
		}
		s.put(ctx, authoritative)
		return true, nil
	}

	o, err := s.orders.Get(ctx, entry.EntityID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rolledBack := o.Rollback()
	s.put(ctx, o)
	return rolledBack, nil
}

func (h *orderHandler) CurrentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error) {
	return h.s.currentVersion(ctx, entry)
}

// statusHandler replays queued ORDER_STATUS entries
type statusHandler struct {
	s *Service
}

func (h *statusHandler) Send(ctx context.Context, entry *shared.SyncQueueEntry) (syncqueue.ApplyFunc, error) {
	var req remote.StatusRequest
	if err := h.s.queue.Decode(entry, &req); err != nil {
		return nil, err
	}
	req.ExpectedUpdatedAt = entry.BaseVersion
	confirmed, err := h.s.remote.UpdateOrderStatus(ctx, entry.EntityID, req)
	if err != nil {
		return nil, err
	}
	return h.s.confirmFunc(entry, confirmed), nil
}

func (h *statusHandler) Reject(ctx context.Context, entry *shared.SyncQueueEntry, _ error) (bool, error) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.orders.Get(ctx, entry.EntityID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rolledBack := s.restore(ctx, o)
	s.put(ctx, o)
	if o.IsOpen() && o.TableID != nil {
		s.reseat(ctx, o)
	}
	return rolledBack, nil
}

func (h *statusHandler) CurrentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error) {
	return h.s.currentVersion(ctx, entry)
}

// confirmFunc writes the server's copy of the order locally and reports the
// version move so later entries for the order carry the new token
func (s *Service) confirmFunc(entry *shared.SyncQueueEntry, confirmed *order.Order) syncqueue.ApplyFunc {
	return func(ctx context.Context, pending syncqueue.PendingCounter) ([]syncqueue.VersionChange, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		from := entry.BaseVersion
		o, err := s.orders.Get(ctx, confirmed.ID)
		switch {
		case err == nil:
			if v := o.BaseVersion(); v != "" {
				from = v
			}
		case errors.Is(err, shared.ErrNotFound):
			o = confirmed.Clone()
		default:
			return nil, err
		}

		o.Confirm(confirmed, syncqueue.StillPending(ctx, pending, entry, confirmed.ID))
		if err := s.orders.Put(ctx, o); err != nil {
			return nil, err
		}
		to := shared.FormatVersion(confirmed.UpdatedAt)
		s.logger.Debug("Order confirmed by server",
			zap.String("order_id", confirmed.ID.String()),
			zap.String("version", to),
			zap.String("sync_status", string(o.SyncStatus)),
		)
		return []syncqueue.VersionChange{{EntityID: confirmed.ID, From: from, To: to}}, nil
	}
}

// currentVersion is the token a retried entry for the order should carry
func (s *Service) currentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error) {
	o, err := s.orders.Get(ctx, entry.EntityID)
	if err != nil {
		return "", err
	}
	return o.BaseVersion(), nil
}

// reseat puts an order restored to an open state back on its table
func (s *Service) reseat(ctx context.Context, o *order.Order) {
	tbl, err := s.tables.Get(ctx, *o.TableID)
	if err != nil || tbl.CurrentOrderID != nil {
		return
	}
	s.seat(ctx, tbl, o)
}
