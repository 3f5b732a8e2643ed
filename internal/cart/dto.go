package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
)

// Cart is the user's current basket. It exists implicitly as the set of lines.
type Cart struct {
	UserID    uuid.UUID       `json:"user_id"`
	Lines     []LineView      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// LineView is a cart line priced at the product's current price.
type LineView struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	InStock     int             `json:"in_stock"`
}

func toLineView(line models.CartLine) LineView {
	view := LineView{
		ID:        line.ID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		UnitPrice: decimal.Zero,
		Subtotal:  decimal.Zero,
	}
	if line.Product != nil {
		view.ProductName = line.Product.Name
		view.UnitPrice = line.Product.Price
		view.Subtotal = line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.InStock = line.Product.StockQty
	}
	return view
}

func toCart(userID uuid.UUID, lines []models.CartLine) *Cart {
	cart := &Cart{UserID: userID, Lines: make([]LineView, len(lines)), Subtotal: decimal.Zero}
	for i, line := range lines {
		cart.Lines[i] = toLineView(line)
		cart.Subtotal = cart.Subtotal.Add(cart.Lines[i].Subtotal)
	}
	cart.ItemCount = len(lines)
	return cart
}
