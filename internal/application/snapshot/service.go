// Package snapshot keeps the read-only reference documents (menu, inventory,
// settings) the terminal needs while offline.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Remote downloads reference documents
type Remote interface {
	FetchSnapshot(ctx context.Context, branchID uuid.UUID, kind snapshot.Kind) (*snapshot.Snapshot, error)
}

// OnlineChecker reports whether the server is reachable
type OnlineChecker interface {
	IsOnline() bool
}

// Response represents a cached document in API responses
type Response struct {
	Kind      string          `json:"kind"`
	Document  json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updated_at"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Service refreshes and serves the cached documents
type Service struct {
	store    shared.LocalStore[*snapshot.Snapshot]
	remote   Remote
	online   OnlineChecker
	branchID uuid.UUID
	kinds    []snapshot.Kind
	logger   *zap.Logger
}

// NewService creates a new snapshot service
func NewService(store shared.LocalStore[*snapshot.Snapshot], client Remote, online OnlineChecker, branchID uuid.UUID, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		remote:   client,
		online:   online,
		branchID: branchID,
		kinds:    []snapshot.Kind{snapshot.KindMenu, snapshot.KindInventory, snapshot.KindSettings},
		logger:   logger,
	}
}

// Refresh fetches every document and overwrites the local copy. A document
// that cannot be fetched keeps its previous copy; the first error is
// returned after all kinds were tried.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.online.IsOnline() {
		return shared.ErrOffline
	}
	var firstErr error
	for _, kind := range s.kinds {
		if err := s.refreshKind(ctx, kind); err != nil {
			s.logger.Warn("Snapshot refresh failed", zap.String("kind", string(kind)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) refreshKind(ctx context.Context, kind snapshot.Kind) error {
	snap, err := s.remote.FetchSnapshot(ctx, s.branchID, kind)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", kind, err)
	}
	if err := s.store.Put(ctx, snap); err != nil && !errors.Is(err, shared.ErrPersistFailed) {
		return err
	}
	s.logger.Debug("Snapshot refreshed", zap.String("kind", string(kind)), zap.Int("bytes", len(snap.Document)))
	return nil
}

// Get returns the cached document of a kind
func (s *Service) Get(ctx context.Context, kind snapshot.Kind) (*Response, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("Unknown snapshot kind %q", kind))
	}
	snap, err := s.store.Get(ctx, snapshot.KeyFor(s.branchID, kind))
	if err != nil {
		return nil, err
	}
	return &Response{
		Kind:      string(snap.Kind),
		Document:  snap.Document,
		UpdatedAt: snap.UpdatedAt,
		FetchedAt: snap.FetchedAt,
	}, nil
}
