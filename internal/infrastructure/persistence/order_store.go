package persistence

import (
	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderStore is the local store for orders and their cart lines
type OrderStore = GormStore[*order.Order, models.OrderModel]

// NewOrderStore creates the order store
func NewOrderStore(db *gorm.DB, logger *zap.Logger) *OrderStore {
	return newGormStore(db, storeMapping[*order.Order, models.OrderModel]{
		name:     "order",
		preload:  []string{"Items"},
		toModel:  models.FromDomainOrder,
		toDomain: (*models.OrderModel).ToDomain,
		save:     saveOrder,
		remove:   removeOrder,
	}, logger)
}

// saveOrder upserts the order row and replaces its cart lines, since lines
// leave an order on merge and split
func saveOrder(tx *gorm.DB, m *models.OrderModel) error {
	items := m.Items
	if err := tx.Omit(clause.Associations).Save(m).Error; err != nil {
		return err
	}
	if err := tx.Where("order_id = ?", m.ID).Delete(&models.OrderItemModel{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func removeOrder(tx *gorm.DB, id uuid.UUID) error {
	if err := tx.Where("order_id = ?", id).Delete(&models.OrderItemModel{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.OrderModel{}, "id = ?", id).Error
}
