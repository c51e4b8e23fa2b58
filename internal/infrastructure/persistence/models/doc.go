// Package models contains GORM-specific persistence models for the terminal's
// local database. Domain entities stay free of GORM tags; every model has a
// ToDomain method and a matching FromDomain constructor.
//
// Structure:
// - base.go: BaseModel and AggregateModel (sync bookkeeping)
// - order.go: orders and their cart lines
// - table.go: tables and zones of the floor plan
// - snapshot.go: cached reference documents
// - sync.go: sync queue entries and dead letters
package models
