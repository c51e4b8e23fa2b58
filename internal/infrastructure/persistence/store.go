package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// storeMapping tells a GormStore how one entity family is laid out
type storeMapping[T shared.LocalEntity, M any] struct {
	name     string
	preload  []string
	toModel  func(T) (*M, error)
	toDomain func(*M) (T, error)
	// save and remove default to a plain upsert and delete by id
	save   func(tx *gorm.DB, m *M) error
	remove func(tx *gorm.DB, id uuid.UUID) error
}

// GormStore is the local durable store for one entity family. Writes that
// fail to reach the database are kept in an in-memory overlay which reads
// prefer, so the terminal keeps working on what the operator did; Flush
// retries them.
type GormStore[T shared.LocalEntity, M any] struct {
	db      *gorm.DB
	mapping storeMapping[T, M]
	logger  *zap.Logger
	now     func() time.Time

	mu sync.RWMutex
	// overlay holds unpersisted writes; a nil model marks an unpersisted delete
	overlay map[uuid.UUID]*M
}

func newGormStore[T shared.LocalEntity, M any](db *gorm.DB, mapping storeMapping[T, M], logger *zap.Logger) *GormStore[T, M] {
	if mapping.save == nil {
		mapping.save = func(tx *gorm.DB, m *M) error {
			return tx.Save(m).Error
		}
	}
	if mapping.remove == nil {
		mapping.remove = func(tx *gorm.DB, id uuid.UUID) error {
			return tx.Delete(new(M), "id = ?", id).Error
		}
	}
	return &GormStore[T, M]{
		db:      db,
		mapping: mapping,
		logger:  logger.With(zap.String("store", mapping.name)),
		now:     func() time.Time { return time.Now().UTC() },
		overlay: make(map[uuid.UUID]*M),
	}
}

func (s *GormStore[T, M]) query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	for _, assoc := range s.mapping.preload {
		q = q.Preload(assoc)
	}
	return q
}

// Get returns the entity or shared.ErrNotFound
func (s *GormStore[T, M]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	var zero T

	s.mu.RLock()
	m, inOverlay := s.overlay[id]
	s.mu.RUnlock()
	if inOverlay {
		if m == nil {
			return zero, shared.ErrNotFound
		}
		return s.mapping.toDomain(m)
	}

	var model M
	if err := s.query(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, shared.ErrNotFound
		}
		return zero, fmt.Errorf("load %s %s: %w", s.mapping.name, id, err)
	}
	return s.mapping.toDomain(&model)
}

// Put stamps the local modification time and writes the entity
func (s *GormStore[T, M]) Put(ctx context.Context, entity T) error {
	entity.TouchLocal(s.now())
	m, err := s.mapping.toModel(entity)
	if err != nil {
		return fmt.Errorf("map %s %s: %w", s.mapping.name, entity.GetID(), err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.mapping.save(tx, m)
	})
	s.settle(entity.GetID(), m, err)
	return s.persistErr(err)
}

// BulkPut writes all entities in one transaction
func (s *GormStore[T, M]) BulkPut(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	now := s.now()
	ms := make([]*M, len(entities))
	for i, e := range entities {
		e.TouchLocal(now)
		m, err := s.mapping.toModel(e)
		if err != nil {
			return fmt.Errorf("map %s %s: %w", s.mapping.name, e.GetID(), err)
		}
		ms[i] = m
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range ms {
			if err := s.mapping.save(tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	for i, e := range entities {
		s.settle(e.GetID(), ms[i], err)
	}
	return s.persistErr(err)
}

// Delete removes the entity. Deleting an absent entity is not an error.
func (s *GormStore[T, M]) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.mapping.remove(tx, id)
	})
	s.settle(id, nil, err)
	return s.persistErr(err)
}

// Query returns every entity matching the predicate, oldest first
func (s *GormStore[T, M]) Query(ctx context.Context, match func(T) bool) ([]T, error) {
	var rows []M
	if err := s.query(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", s.mapping.name, err)
	}

	s.mu.RLock()
	pending := make(map[uuid.UUID]*M, len(s.overlay))
	for id, m := range s.overlay {
		pending[id] = m
	}
	s.mu.RUnlock()

	out := make([]T, 0, len(rows))
	emit := func(m *M) error {
		e, err := s.mapping.toDomain(m)
		if err != nil {
			return err
		}
		if match == nil || match(e) {
			out = append(out, e)
		}
		return nil
	}

	for i := range rows {
		row := &rows[i]
		e, err := s.mapping.toDomain(row)
		if err != nil {
			return nil, err
		}
		if m, ok := pending[e.GetID()]; ok {
			delete(pending, e.GetID())
			if m == nil {
				continue
			}
			row = m
		}
		if err := emit(row); err != nil {
			return nil, err
		}
	}
	// overlay entries the database has never seen
	for _, m := range pending {
		if m == nil {
			continue
		}
		if err := emit(m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Flush retries writes held in the overlay and returns how many remain
func (s *GormStore[T, M]) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for id, m := range s.overlay {
		var err error
		if m == nil {
			err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return s.mapping.remove(tx, id)
			})
		} else {
			err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				return s.mapping.save(tx, m)
			})
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(s.overlay, id)
	}
	if firstErr != nil {
		return len(s.overlay), s.persistErr(firstErr)
	}
	return 0, nil
}

// Unflushed reports how many writes exist only in memory
func (s *GormStore[T, M]) Unflushed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overlay)
}

// settle records the outcome of a write: success clears any overlay entry,
// failure keeps the state in memory
func (s *GormStore[T, M]) settle(id uuid.UUID, m *M, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.overlay, id)
		return
	}
	s.overlay[id] = m
	s.logger.Warn("Local write failed, keeping change in memory",
		zap.String("id", id.String()),
		zap.Error(err),
	)
}

func (s *GormStore[T, M]) persistErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", shared.ErrPersistFailed, s.mapping.name, err)
}
