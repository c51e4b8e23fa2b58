package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enqueuer is what the application services need from the queue
type Enqueuer interface {
	Enqueue(ctx context.Context, entityType shared.EntityType, entityID uuid.UUID, op shared.Operation, payload any, baseVersion string) (*shared.SyncQueueEntry, error)
	HasPending(ctx context.Context, entityID uuid.UUID) (bool, error)
	Decode(entry *shared.SyncQueueEntry, out any) error
}

// Queue appends offline writes to the durable sync queue
type Queue struct {
	repo     shared.SyncQueueRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewQueue creates a queue over repo
func NewQueue(repo shared.SyncQueueRepository, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Enqueue validates and persists one write. The entry is durable when
// Enqueue returns; callers apply their optimistic local change only after
// that, so a failed append leaves nothing applied.
func (q *Queue) Enqueue(ctx context.Context, entityType shared.EntityType, entityID uuid.UUID, op shared.Operation, payload any, baseVersion string) (*shared.SyncQueueEntry, error) {
	if !op.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown operation %q", op))
	}
	if err := q.validate.Struct(payload); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("invalid %s payload: %v", entityType, err))
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("cannot encode %s payload: %v", entityType, err))
	}

	entry := shared.NewSyncQueueEntry(entityType, entityID, op, raw, baseVersion)
	if err := q.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: enqueue %s %s: %w", shared.ErrPersistFailed, entityType, entityID, err)
	}

	q.logger.Info("Write queued for replay",
		zap.Int64("seq", entry.Seq),
		zap.String("entity_type", string(entityType)),
		zap.String("entity_id", entityID.String()),
		zap.String("operation", string(op)),
		zap.String("base_version", baseVersion),
	)
	return entry, nil
}

// HasPending reports whether queued entries touch the entity. A write for
// such an entity must be queued behind them even when online.
func (q *Queue) HasPending(ctx context.Context, entityID uuid.UUID) (bool, error) {
	n, err := q.repo.CountForEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Decode unmarshals an entry payload and checks it. Failures wrap
// shared.ErrInvalidInput so the reconciler drops the entry.
func (q *Queue) Decode(entry *shared.SyncQueueEntry, out any) error {
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return fmt.Errorf("%w: %s payload of entry %s: %v", shared.ErrInvalidInput, entry.EntityType, entry.ID, err)
	}
	if err := q.validate.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return fmt.Errorf("%w: %s payload of entry %s: %v", shared.ErrInvalidInput, entry.EntityType, entry.ID, err)
		}
	}
	return nil
}

var _ Enqueuer = (*Queue)(nil)
