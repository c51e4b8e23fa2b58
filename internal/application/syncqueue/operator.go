package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is what the operator sees of the sync machinery
type Status struct {
	Online      bool         `json:"online"`
	Pending     int64        `json:"pending"`
	DeadLetters int64        `json:"dead_letters"`
	Draining    bool         `json:"draining"`
	LastDrain   *DrainResult `json:"last_drain,omitempty"`
}

// Status reports the queue depth, the dead letter count, the online flag and
// the last drain
func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	pending, err := r.repo.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count queue: %w", err)
	}
	dead, err := r.dead.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count dead letters: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		Online:      r.online.IsOnline(),
		Pending:     pending,
		DeadLetters: dead,
		Draining:    r.draining,
	}
	if r.last != nil {
		last := *r.last
		st.LastDrain = &last
	}
	return st, nil
}

// SyncNow drains the queue inside the call. Offline it returns at once with
// an offline outcome.
func (r *Reconciler) SyncNow(ctx context.Context) DrainResult {
	return r.Drain(ctx, TriggerManual)
}

// Pending lists queued entries in replay order
func (r *Reconciler) Pending(ctx context.Context, limit int) ([]EntryResponse, error) {
	entries, err := r.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = ToEntryResponse(e)
	}
	return out, nil
}

// DeadLetters lists dropped entries, newest first
func (r *Reconciler) DeadLetters(ctx context.Context, limit int) ([]DeadLetterResponse, error) {
	letters, err := r.dead.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetterResponse, len(letters))
	for i, l := range letters {
		out[i] = ToDeadLetterResponse(l)
	}
	return out, nil
}

// Retry puts a dropped entry back at the tail of the queue with the entity's
// current version token, removes the dead letter and starts a drain when
// online. The local speculative state is re-established when the server
// accepts the entry.
func (r *Reconciler) Retry(ctx context.Context, deadLetterID uuid.UUID) (*EntryResponse, error) {
	letter, err := r.dead.FindByID(ctx, deadLetterID)
	if err != nil {
		return nil, err
	}
	h, err := r.handlerFor(letter.Entry.EntityType)
	if err != nil {
		return nil, err
	}
	version, err := h.CurrentVersion(ctx, &letter.Entry)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("current version of %s %s: %w", letter.Entry.EntityType, letter.Entry.EntityID, err)
	}

	entry := shared.NewSyncQueueEntry(letter.Entry.EntityType, letter.Entry.EntityID, letter.Entry.Operation, letter.Entry.Payload, version)
	if err := r.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: requeue dead letter %s: %w", shared.ErrPersistFailed, deadLetterID, err)
	}
	if err := r.dead.Delete(ctx, deadLetterID); err != nil {
		// the entry is queued; a leftover dead letter only shows twice
		r.logger.Warn("failed to delete retried dead letter", zap.String("dead_letter_id", deadLetterID.String()), zap.Error(err))
	}

	r.logger.Info("dead letter requeued",
		zap.String("dead_letter_id", deadLetterID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.Int64("seq", entry.Seq),
		zap.String("base_version", version),
	)
	if r.online.IsOnline() {
		r.Trigger(TriggerRetry)
	}
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// Discard forgets a dropped entry for good
func (r *Reconciler) Discard(ctx context.Context, deadLetterID uuid.UUID) error {
	if _, err := r.dead.FindByID(ctx, deadLetterID); err != nil {
		return err
	}
	if err := r.dead.Delete(ctx, deadLetterID); err != nil {
		return err
	}
	r.logger.Info("dead letter discarded", zap.String("dead_letter_id", deadLetterID.String()))
	return nil
}
