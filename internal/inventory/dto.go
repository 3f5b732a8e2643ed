package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// StockLevel is the stock of a product right after a ledger write.
type StockLevel struct {
	ProductID uuid.UUID `json:"product_id"`
	Stock     int       `json:"stock"`
}

// ImportInput describes a stock receipt.
type ImportInput struct {
	ProductID     uuid.UUID
	Quantity      int
	PurchasePrice *decimal.Decimal
	Supplier      *string
	Note          *string
	Actor         uuid.UUID
}

// ExportInput describes a manual stock removal.
type ExportInput struct {
	ProductID uuid.UUID
	Quantity  int
	Note      *string
	Actor     uuid.UUID
}

// Movement is the API view of a ledger row.
type Movement struct {
	ID            uuid.UUID            `json:"id"`
	ProductID     uuid.UUID            `json:"product_id"`
	Delta         int                  `json:"delta"`
	Reason        enums.MovementReason `json:"reason"`
	OrderID       *uuid.UUID           `json:"order_id,omitempty"`
	PurchasePrice *decimal.Decimal     `json:"purchase_price,omitempty"`
	Supplier      *string              `json:"supplier,omitempty"`
	Note          *string              `json:"note,omitempty"`
	StockAfter    int                  `json:"stock_after"`
	CreatedAt     time.Time            `json:"created_at"`
}

// MovementList is one page of the movement log, newest first.
type MovementList struct {
	Movements  []Movement `json:"movements"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ReplayResult compares stored stock with the stock implied by the log.
type ReplayResult struct {
	ProductID    uuid.UUID `json:"product_id"`
	InitialStock int       `json:"initial_stock"`
	DeltaSum     int       `json:"delta_sum"`
	CurrentStock int       `json:"current_stock"`
	Consistent   bool      `json:"consistent"`
}

// Drift is how far stored stock is from the replayed value.
func (r ReplayResult) Drift() int {
	return r.CurrentStock - (r.InitialStock + r.DeltaSum)
}

func toMovement(m models.StockMovement) Movement {
	return Movement{
		ID:            m.ID,
		ProductID:     m.ProductID,
		Delta:         m.Delta,
		Reason:        m.Reason,
		OrderID:       m.OrderID,
		PurchasePrice: m.PurchasePrice,
		Supplier:      m.Supplier,
		Note:          m.Note,
		StockAfter:    m.StockAfter,
		CreatedAt:     m.CreatedAt,
	}
}
