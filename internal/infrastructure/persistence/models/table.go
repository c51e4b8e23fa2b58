package models

import (
	"encoding/json"
	"fmt"

	"github.com/erp/pos/internal/domain/table"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TableModel is the persistence model for a floor plan table
type TableModel struct {
	AggregateModel
	BranchID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ZoneID            uuid.UUID       `gorm:"type:uuid;index"`
	Name              string          `gorm:"type:varchar(50);not null"`
	Seats             int             `gorm:"not null;default:0"`
	PosX              float64         `gorm:"not null;default:0"`
	PosY              float64         `gorm:"not null;default:0"`
	Shape             string          `gorm:"type:varchar(20)"`
	Status            table.Status    `gorm:"type:varchar(20);not null;default:'AVAILABLE'"`
	CurrentOrderID    *uuid.UUID      `gorm:"type:uuid;index"`
	CurrentOrderTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Confirmed         string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (TableModel) TableName() string {
	return "floor_tables"
}

// ToDomain converts the persistence model to a domain Table
func (m *TableModel) ToDomain() (*table.Table, error) {
	t := &table.Table{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		BranchID:          m.BranchID,
		ZoneID:            m.ZoneID,
		Name:              m.Name,
		Seats:             m.Seats,
		PosX:              m.PosX,
		PosY:              m.PosY,
		Shape:             m.Shape,
		Status:            m.Status,
		CurrentOrderID:    m.CurrentOrderID,
		CurrentOrderTotal: m.CurrentOrderTotal,
	}
	if m.Confirmed != "" {
		var confirmed TableModel
		if err := json.Unmarshal([]byte(m.Confirmed), &confirmed); err != nil {
			return nil, fmt.Errorf("decode confirmed copy of table %s: %w", m.ID, err)
		}
		c, err := confirmed.ToDomain()
		if err != nil {
			return nil, err
		}
		t.Confirmed = c
	}
	return t, nil
}

// FromDomainTable converts a domain Table to its persistence model
func FromDomainTable(t *table.Table) (*TableModel, error) {
	m := &TableModel{
		BranchID:          t.BranchID,
		ZoneID:            t.ZoneID,
		Name:              t.Name,
		Seats:             t.Seats,
		PosX:              t.PosX,
		PosY:              t.PosY,
		Shape:             t.Shape,
		Status:            t.Status,
		CurrentOrderID:    t.CurrentOrderID,
		CurrentOrderTotal: t.CurrentOrderTotal,
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	if t.Confirmed != nil {
		cm, err := FromDomainTable(t.Confirmed)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(cm)
		if err != nil {
			return nil, err
		}
		m.Confirmed = string(raw)
	}
	return m, nil
}

// ZoneModel is the persistence model for a floor plan zone
type ZoneModel struct {
	AggregateModel
	BranchID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:varchar(100);not null"`
	SortOrder int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ZoneModel) TableName() string {
	return "zones"
}

// ToDomain converts the persistence model to a domain Zone
func (m *ZoneModel) ToDomain() (*table.Zone, error) {
	return &table.Zone{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		BranchID:          m.BranchID,
		Name:              m.Name,
		SortOrder:         m.SortOrder,
	}, nil
}

// FromDomainZone converts a domain Zone to its persistence model
func FromDomainZone(z *table.Zone) (*ZoneModel, error) {
	m := &ZoneModel{
		BranchID:  z.BranchID,
		Name:      z.Name,
		SortOrder: z.SortOrder,
	}
	m.FromDomainAggregateRoot(z.BaseAggregateRoot)
	return m, nil
}
