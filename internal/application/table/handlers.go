package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/pos/internal/application/syncqueue"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/remote"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusHandler replays queued TABLE status changes
type statusHandler struct {
	s *Service
}

func (h *statusHandler) Send(ctx context.Context, entry *shared.SyncQueueEntry) (syncqueue.ApplyFunc, error) {
	var req remote.TableStatusRequest
	if err := h.s.queue.Decode(entry, &req); err != nil {
		return nil, err
	}
	req.ExpectedUpdatedAt = entry.BaseVersion
	confirmed, err := h.s.remote.UpdateTableStatus(ctx, entry.EntityID, req)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, pending syncqueue.PendingCounter) ([]syncqueue.VersionChange, error) {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
		return h.s.applyChange(ctx, &remote.FloorChange{Tables: []*table.Table{confirmed}}, pending, entry, nil), nil
	}, nil
}

func (h *statusHandler) Reject(ctx context.Context, entry *shared.SyncQueueEntry, _ error) (bool, error) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreTables(ctx, entry.EntityID), nil
}

func (h *statusHandler) CurrentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error) {
	t, err := h.s.tables.Get(ctx, entry.EntityID)
	if err != nil {
		return "", err
	}
	return t.BaseVersion(), nil
}

// floorHandler replays queued transfers, merges and splits. The entry is
// keyed on the source order.
type floorHandler struct {
	s          *Service
	entityType shared.EntityType
}

// intent decodes the entry's payload into the tables and orders it names
func (h *floorHandler) intent(entry *shared.SyncQueueEntry) (tables, orders []uuid.UUID, payload any, err error) {
	switch h.entityType {
	case shared.EntityTableTransfer:
		var req remote.TransferRequest
		if err := h.s.queue.Decode(entry, &req); err != nil {
			return nil, nil, nil, err
		}
		req.ExpectedUpdatedAt = entry.BaseVersion
		return []uuid.UUID{req.FromTableID, req.ToTableID}, []uuid.UUID{req.OrderID}, req, nil
	case shared.EntityTableMerge, shared.EntityTableSplit:
		var req remote.MoveItemsRequest
		if err := h.s.queue.Decode(entry, &req); err != nil {
			return nil, nil, nil, err
		}
		req.ExpectedUpdatedAt = entry.BaseVersion
		return []uuid.UUID{req.FromTableID, req.ToTableID}, []uuid.UUID{req.SourceOrderID, req.TargetOrderID}, req, nil
	}
	return nil, nil, nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unsupported floor entry %s", h.entityType))
}

func (h *floorHandler) Send(ctx context.Context, entry *shared.SyncQueueEntry) (syncqueue.ApplyFunc, error) {
	_, _, payload, err := h.intent(entry)
	if err != nil {
		return nil, err
	}

	var change *remote.FloorChange
	switch req := payload.(type) {
	case remote.TransferRequest:
		change, err = h.s.remote.TransferTable(ctx, req)
	case remote.MoveItemsRequest:
		if h.entityType == shared.EntityTableSplit {
			change, err = h.s.remote.SplitTable(ctx, req)
		} else {
			change, err = h.s.remote.MergeTables(ctx, req)
		}
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, pending syncqueue.PendingCounter) ([]syncqueue.VersionChange, error) {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
		return h.s.applyChange(ctx, change, pending, entry, nil), nil
	}, nil
}

func (h *floorHandler) Reject(ctx context.Context, entry *shared.SyncQueueEntry, _ error) (bool, error) {
	tableIDs, orderIDs, payload, err := h.intent(entry)
	if err != nil {
		return false, nil
	}
	var created uuid.UUID
	if req, ok := payload.(remote.MoveItemsRequest); ok && h.entityType == shared.EntityTableSplit {
		created = req.TargetOrderID
	}

	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := s.restoreTables(ctx, tableIDs...)
	for _, id := range orderIDs {
		if !s.restoreOrder(ctx, id, id == created) {
			restored = false
		}
	}
	return restored, nil
}

func (h *floorHandler) CurrentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error) {
	o, err := h.s.orders.Get(ctx, entry.EntityID)
	if err != nil {
		return "", err
	}
	return o.BaseVersion(), nil
}

// restoreTables puts the server's floor back for the given tables, or their
// last confirmed copies when the floor cannot be fetched
func (s *Service) restoreTables(ctx context.Context, ids ...uuid.UUID) bool {
	byID := make(map[uuid.UUID]*table.Table)
	if floor, err := s.remote.GetFloor(ctx, s.branchID); err == nil {
		for _, t := range floor.Tables {
			byID[t.ID] = t
		}
	} else {
		s.logger.Debug("Could not fetch floor to restore tables", zap.Error(err))
	}

	all := true
	for _, id := range ids {
		local, err := s.tables.Get(ctx, id)
		if err != nil {
			continue
		}
		if authoritative, ok := byID[id]; ok {
			local.Confirm(authoritative, false)
		} else if !local.Rollback() {
			all = false
		}
		s.putTable(ctx, local)
	}
	return all
}

// restoreOrder puts the server's copy of an order back. An order that only
// existed because of the refused split is removed.
func (s *Service) restoreOrder(ctx context.Context, id uuid.UUID, createdLocally bool) bool {
	local, err := s.orders.Get(ctx, id)
	if err != nil {
		return errors.Is(err, shared.ErrNotFound)
	}
	if authoritative, err := s.remote.GetOrder(ctx, id); err == nil {
		local.Confirm(authoritative, false)
		s.putOrder(ctx, local)
		return true
	}
	if createdLocally && local.Confirmed == nil {
		if err := s.orders.Delete(ctx, id); err != nil {
			s.logger.Error("Failed to delete refused split order", zap.String("order_id", id.String()), zap.Error(err))
		}
		return true
	}
	ok := local.Rollback()
	s.putOrder(ctx, local)
	return ok
}
