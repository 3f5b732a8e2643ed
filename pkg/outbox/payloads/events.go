package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// OrderLine is the frozen line snapshot carried by order events.
type OrderLine struct {
	ProductID           uuid.UUID       `json:"product_id"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
}

// OrderCreatedEvent is emitted when checkout converts a cart into an order.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	UserID     uuid.UUID       `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Lines      []OrderLine     `json:"lines"`
}

// OrderCanceledEvent is emitted when an order is canceled and its stock restored.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	CanceledAt time.Time         `json:"canceled_at"`
	Restored   []OrderLine       `json:"restored"`
}

// OrderStatusChangedEvent is emitted for every admin status change.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	UserID  uuid.UUID         `json:"user_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// StockImportedEvent records a stock receipt.
type StockImportedEvent struct {
	ProductID     uuid.UUID        `json:"product_id"`
	Quantity      int              `json:"quantity"`
	StockAfter    int              `json:"stock_after"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	Supplier      *string          `json:"supplier,omitempty"`
}

// StockExportedEvent records a manual stock removal.
type StockExportedEvent struct {
	ProductID  uuid.UUID `json:"product_id"`
	Quantity   int       `json:"quantity"`
	StockAfter int       `json:"stock_after"`
	Note       *string   `json:"note,omitempty"`
}
