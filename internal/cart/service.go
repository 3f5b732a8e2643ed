package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages a user's cart lines. Identity is always passed explicitly.
type Service interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*LineView, error)
	UpdateItem(ctx context.Context, userID, lineID uuid.UUID, qty int) (*LineView, error)
	RemoveItem(ctx context.Context, userID, lineID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	ItemCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a cart service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, db.Wrap(err, "load cart")
	}
	return toCart(userID, lines), nil
}

// AddItem sums qty into the product's line, creating it when absent. The
// stock check is advisory; checkout reservation is authoritative.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*LineView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var view LineView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, productID)
		if err != nil {
			return notFoundOr(err, "product not found", "load product")
		}
		if err := repo.AddQuantity(ctx, userID, productID, qty); err != nil {
			return db.Wrap(err, "add cart line")
		}
		line, err := repo.FindLineByProduct(ctx, userID, productID)
		if err != nil {
			return db.Wrap(err, "reload cart line")
		}
		if line.Quantity > product.StockQty {
			return inventory.InsufficientStock(productID, line.Quantity, product.StockQty)
		}
		view = toLineView(*line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) UpdateItem(ctx context.Context, userID, lineID uuid.UUID, qty int) (*LineView, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var view LineView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.FindLine(ctx, userID, lineID)
		if err != nil {
			return notFoundOr(err, "cart line not found", "load cart line")
		}
		if line.Product != nil && qty > line.Product.StockQty {
			return inventory.InsufficientStock(line.ProductID, qty, line.Product.StockQty)
		}
		if _, err := repo.UpdateQuantity(ctx, userID, lineID, qty); err != nil {
			return db.Wrap(err, "update cart line")
		}
		line.Quantity = qty
		view = toLineView(*line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, lineID uuid.UUID) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteLine(ctx, userID, lineID)
	if err != nil {
		return db.Wrap(err, "remove cart line")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.repo.DeleteAll(ctx, userID); err != nil {
		return db.Wrap(err, "clear cart")
	}
	return nil
}

// ItemCount is the number of distinct lines, not the sum of quantities.
func (s *service) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	count, err := s.repo.CountLines(ctx, userID)
	if err != nil {
		return 0, db.Wrap(err, "count cart lines")
	}
	return int(count), nil
}

func requireUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	return nil
}

func notFoundOr(err error, notFoundMsg, internalMsg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return db.Wrap(err, internalMsg)
}
