package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// Order is the immutable snapshot created at checkout. Only Status, UpdatedAt
// and CanceledAt change after creation.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	TotalPrice      decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	Notes           *string           `gorm:"column:notes"`
	Lines           []OrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;<-:create"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	CanceledAt      *time.Time        `gorm:"column:canceled_at"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	for i := range o.Lines {
		o.Lines[i].OrderID = o.ID
	}
	return nil
}

// LinesTotal recomputes sum(quantity * unit price) over the frozen lines.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// OrderLine freezes the unit price a product had when the order was placed.
type OrderLine struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID           uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Position            int             `gorm:"column:position;not null"`
	Quantity            int             `gorm:"column:quantity;not null"`
	UnitPriceAtPurchase decimal.Decimal `gorm:"column:unit_price_at_purchase;type:numeric(12,2);not null"`
}

func (OrderLine) TableName() string { return "order_lines" }

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Subtotal returns quantity * unit price at purchase.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
