package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// StockMovement is an append-only ledger entry describing one stock change.
type StockMovement struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	Delta         int                  `gorm:"column:delta;not null"`
	Reason        enums.MovementReason `gorm:"column:reason;type:movement_reason;not null"`
	OrderID       *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	PurchasePrice *decimal.Decimal     `gorm:"column:purchase_price;type:numeric(12,2)"`
	Supplier      *string              `gorm:"column:supplier"`
	Note          *string              `gorm:"column:note"`
	StockAfter    int                  `gorm:"column:stock_after;not null"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovement) TableName() string { return "stock_movements" }

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
