package shared

import (
	"context"

	"github.com/google/uuid"
)

// LocalStore is the durable on-terminal store for one entity family.
// It never touches the network. Put and BulkPut stamp the local
// modification time; when the underlying write fails the entity is kept in
// memory, reads keep returning it, and the error wraps ErrPersistFailed.
type LocalStore[T LocalEntity] interface {
	Get(ctx context.Context, id uuid.UUID) (T, error)
	Put(ctx context.Context, entity T) error
	BulkPut(ctx context.Context, entities []T) error
	Delete(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, match func(T) bool) ([]T, error)
}

// All matches every entity; handy as a Query predicate.
func All[T any](T) bool { return true }
