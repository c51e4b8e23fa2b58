package persistence

import (
	"github.com/erp/pos/internal/domain/snapshot"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TableStore is the local store for floor plan tables
type TableStore = GormStore[*table.Table, models.TableModel]

// ZoneStore is the local store for floor plan zones
type ZoneStore = GormStore[*table.Zone, models.ZoneModel]

// SnapshotStore is the local store for cached reference documents
type SnapshotStore = GormStore[*snapshot.Snapshot, models.SnapshotModel]

// NewTableStore creates the table store
func NewTableStore(db *gorm.DB, logger *zap.Logger) *TableStore {
	return newGormStore(db, storeMapping[*table.Table, models.TableModel]{
		name:     "table",
		toModel:  models.FromDomainTable,
		toDomain: (*models.TableModel).ToDomain,
	}, logger)
}

// NewZoneStore creates the zone store
func NewZoneStore(db *gorm.DB, logger *zap.Logger) *ZoneStore {
	return newGormStore(db, storeMapping[*table.Zone, models.ZoneModel]{
		name:     "zone",
		toModel:  models.FromDomainZone,
		toDomain: (*models.ZoneModel).ToDomain,
	}, logger)
}

// NewSnapshotStore creates the snapshot store
func NewSnapshotStore(db *gorm.DB, logger *zap.Logger) *SnapshotStore {
	return newGormStore(db, storeMapping[*snapshot.Snapshot, models.SnapshotModel]{
		name:     "snapshot",
		toModel:  models.FromDomainSnapshot,
		toDomain: (*models.SnapshotModel).ToDomain,
	}, logger)
}
