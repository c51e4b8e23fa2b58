// Package syncqueue owns the durable queue of writes made while the server
// was unreachable and the reconciler that replays them in order once it is
// reachable again.
package syncqueue

import (
	"context"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
)

// PendingCounter reports how many queued entries still touch an entity
type PendingCounter interface {
	CountForEntity(ctx context.Context, entityID uuid.UUID) (int64, error)
}

// VersionChange is a version token the server issued while accepting an
// entry. Later entries of the entity made against From are moved to To.
type VersionChange struct {
	EntityID uuid.UUID
	From     string
	To       string
}

// ApplyFunc writes the server's answer to the local store. It runs after the
// entry has been recorded as accepted and while the entry is still queued.
type ApplyFunc func(ctx context.Context, pending PendingCounter) ([]VersionChange, error)

// Handler replays one entity type. Each application service registers the
// handlers for the entries it enqueues.
type Handler interface {
	// Send makes the remote call for the entry. Errors are classified with
	// shared.ClassifyFailure; payloads that cannot be decoded must wrap
	// shared.ErrInvalidInput so they are dropped rather than retried forever.
	Send(ctx context.Context, entry *shared.SyncQueueEntry) (ApplyFunc, error)
	// Reject undoes the local speculative state of a dropped entry. It
	// reports whether a confirmed copy was restored; otherwise the entity is
	// flagged CONFLICTED.
	Reject(ctx context.Context, entry *shared.SyncQueueEntry, cause error) (rolledBack bool, err error)
	// CurrentVersion returns the version token a retried entry should carry
	CurrentVersion(ctx context.Context, entry *shared.SyncQueueEntry) (string, error)
}

// Registrar installs handlers; the Reconciler is one
type Registrar interface {
	Register(entityType shared.EntityType, h Handler)
}

// StillPending reports whether an entity has queued entries other than the
// one being applied. The entry being applied is still queued, so it is not
// counted when it is keyed on, or names, the entity.
func StillPending(ctx context.Context, pending PendingCounter, entry *shared.SyncQueueEntry, entityID uuid.UUID) bool {
	if pending == nil {
		return false
	}
	n, err := pending.CountForEntity(ctx, entityID)
	if err != nil {
		// keeping speculative state is the safe side
		return true
	}
	return n > 1
}
