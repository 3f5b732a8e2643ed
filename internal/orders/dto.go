package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/payloads"
)

// Actor identifies the caller of an administrative operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// ListFilter is the admin listing filter.
type ListFilter struct {
	Status *enums.OrderStatus
}

// OrderDetail is the order as returned to callers.
type OrderDetail struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          enums.OrderStatus `json:"status"`
	TotalPrice      decimal.Decimal   `json:"total_price"`
	ShippingAddress string            `json:"shipping_address"`
	Notes           *string           `json:"notes,omitempty"`
	Lines           []LineItem        `json:"lines"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CanceledAt      *time.Time        `json:"canceled_at,omitempty"`
}

// LineItem is a frozen order line.
type LineItem struct {
	ProductID           uuid.UUID       `json:"product_id"`
	Position            int             `json:"position"`
	Quantity            int             `json:"quantity"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price_at_purchase"`
	Subtotal            decimal.Decimal `json:"subtotal"`
}

// OrderList wraps paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ToDetail converts a persisted order into its API shape.
func ToDetail(order models.Order) OrderDetail {
	lines := make([]LineItem, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = LineItem{
			ProductID:           line.ProductID,
			Position:            line.Position,
			Quantity:            line.Quantity,
			UnitPriceAtPurchase: line.UnitPriceAtPurchase,
			Subtotal:            line.Subtotal(),
		}
	}
	return OrderDetail{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
		Lines:           lines,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		CanceledAt:      order.CanceledAt,
	}
}

// EventLines snapshots order lines for outbox payloads.
func EventLines(lines []models.OrderLine) []payloads.OrderLine {
	out := make([]payloads.OrderLine, len(lines))
	for i, line := range lines {
		out[i] = payloads.OrderLine{
			ProductID:           line.ProductID,
			Quantity:            line.Quantity,
			UnitPriceAtPurchase: line.UnitPriceAtPurchase,
		}
	}
	return out
}
