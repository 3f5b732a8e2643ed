package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the subset of the catalog listing the order engine depends on.
// Stock is written only by the inventory ledger.
type Product struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	Price           decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	StockQty        int             `gorm:"column:stock_qty;not null;default:0"`
	InitialStockQty int             `gorm:"column:initial_stock_qty;not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
