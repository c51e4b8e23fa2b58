package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIdempotencyStore keeps applied queue entry keys in the local database,
// so the record survives a crash between the server's acknowledgement and the
// local delete of the entry.
type GormIdempotencyStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormIdempotencyStore creates the store
func NewGormIdempotencyStore(db *gorm.DB) *GormIdempotencyStore {
	return &GormIdempotencyStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// MarkProcessed inserts the key; an unexpired existing key returns false
func (s *GormIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()
	marked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ? AND expires_at <= ?", key, now).Delete(&models.AppliedKeyModel{}).Error; err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.AppliedKeyModel{Key: key, ExpiresAt: now.Add(ttl)})
		if result.Error != nil {
			return result.Error
		}
		marked = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark %s as applied: %w", key, err)
	}
	return marked, nil
}

// IsProcessed checks whether the key is marked and not expired
func (s *GormIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.AppliedKeyModel{}).
		Where("key = ? AND expires_at > ?", key, s.now()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

// Purge deletes expired keys and returns how many went
func (s *GormIdempotencyStore) Purge(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.AppliedKeyModel{})
	return result.RowsAffected, result.Error
}

// Close is a no-op; the database is owned by the caller
func (s *GormIdempotencyStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*GormIdempotencyStore)(nil)
