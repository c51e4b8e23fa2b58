package persistence

import (
	"context"
	"errors"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncQueueRepository implements SyncQueueRepository using GORM
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GORM-based sync queue repository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormSyncQueueRepository) WithTx(tx *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: tx}
}

// Append persists the entry and assigns its Seq
func (r *GormSyncQueueRepository) Append(ctx context.Context, entry *shared.SyncQueueEntry) error {
	m := models.SyncQueueModelFromDomain(entry)
	m.Seq = 0
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	entry.Seq = m.Seq
	return nil
}

// ListPending retrieves entries in FIFO order
func (r *GormSyncQueueRepository) ListPending(ctx context.Context, limit int) ([]*shared.SyncQueueEntry, error) {
	var rows []models.SyncQueueModel
	q := r.db.WithContext(ctx).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]*shared.SyncQueueEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// FindByID retrieves a single entry
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.SyncQueueEntry, error) {
	var m models.SyncQueueModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// RecordAttempt persists attempt bookkeeping
func (r *GormSyncQueueRepository) RecordAttempt(ctx context.Context, entry *shared.SyncQueueEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"attempts":   entry.Attempts,
			"last_error": entry.LastError,
		}).Error
}

// Delete removes an entry
func (r *GormSyncQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SyncQueueModel{}).Error
}

// CountForEntity counts queued entries keyed on the entity or naming it in
// their payload, such as the tables of a transfer
func (r *GormSyncQueueRepository) CountForEntity(ctx context.Context, entityID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("entity_id = ? OR payload LIKE ?", entityID, "%"+entityID.String()+"%").
		Count(&n).Error
	return n, err
}

// RebaseVersion moves later entries of the entity onto the new version token
func (r *GormSyncQueueRepository) RebaseVersion(ctx context.Context, entityID uuid.UUID, from, to string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueModel{}).
		Where("entity_id = ? AND base_version = ?", entityID, from).
		Update("base_version", to)
	return result.RowsAffected, result.Error
}

// Count returns the queue length
func (r *GormSyncQueueRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.SyncQueueModel{}).Count(&n).Error
	return n, err
}

// Ensure GormSyncQueueRepository implements SyncQueueRepository
var _ shared.SyncQueueRepository = (*GormSyncQueueRepository)(nil)

// GormDeadLetterRepository implements DeadLetterRepository using GORM
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewGormDeadLetterRepository creates a new GORM-based dead letter repository
func NewGormDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// Save persists a dead letter
func (r *GormDeadLetterRepository) Save(ctx context.Context, letter *shared.SyncDeadLetter) error {
	return r.db.WithContext(ctx).Create(models.DeadLetterModelFromDomain(letter)).Error
}

// List returns dead letters newest first
func (r *GormDeadLetterRepository) List(ctx context.Context, limit int) ([]*shared.SyncDeadLetter, error) {
	var rows []models.DeadLetterModel
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	letters := make([]*shared.SyncDeadLetter, len(rows))
	for i := range rows {
		letters[i] = rows[i].ToDomain()
	}
	return letters, nil
}

// FindByID retrieves a single dead letter
func (r *GormDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.SyncDeadLetter, error) {
	var m models.DeadLetterModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Delete removes a dead letter
func (r *GormDeadLetterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DeadLetterModel{}).Error
}

// Count returns the number of dead letters
func (r *GormDeadLetterRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.DeadLetterModel{}).Count(&n).Error
	return n, err
}

// Ensure GormDeadLetterRepository implements DeadLetterRepository
var _ shared.DeadLetterRepository = (*GormDeadLetterRepository)(nil)
