package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/papshop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of products.stock_qty. Every write appends a
// movement in the same transaction.
type Service interface {
	Reserve(ctx context.Context, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error)
	Restore(ctx context.Context, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error)
	ImportStock(ctx context.Context, input ImportInput) (StockLevel, error)
	ExportStock(ctx context.Context, input ExportInput) (StockLevel, error)

	// ReserveTx and RestoreTx run inside the caller's transaction. The caller
	// must already hold the product locks (see LockProducts).
	ReserveTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error)
	RestoreTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error)
	LockProducts(ctx context.Context, productIDs []uuid.UUID) (Release, error)

	ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) (*MovementList, error)
	Replay(ctx context.Context, productID uuid.UUID) (*ReplayResult, error)
	ProductIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Locker     Locker
	Outbox     outbox.Emitter
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	locker  Locker
	outbox  outbox.Emitter
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

// NewService builds the inventory ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("product locker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:    params.Repository,
		tx:      params.TxRunner,
		locker:  params.Locker,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
	}, nil
}

func (s *service) Reserve(ctx context.Context, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error) {
	if err := validateQuantity(qty); err != nil {
		return StockLevel{}, err
	}
	var level StockLevel
	err := s.underLock(ctx, productID, func(tx *gorm.DB) error {
		var err error
		level, err = s.ReserveTx(ctx, tx, productID, qty, orderID)
		return err
	})
	return level, err
}

func (s *service) Restore(ctx context.Context, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error) {
	if err := validateQuantity(qty); err != nil {
		return StockLevel{}, err
	}
	var level StockLevel
	err := s.underLock(ctx, productID, func(tx *gorm.DB) error {
		var err error
		level, err = s.RestoreTx(ctx, tx, productID, qty, orderID)
		return err
	})
	return level, err
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error) {
	if err := validateQuantity(qty); err != nil {
		return StockLevel{}, err
	}
	return s.decrement(ctx, tx, productID, qty, models.StockMovement{
		Reason:  enums.MovementReasonOrderReserve,
		OrderID: optionalID(orderID),
	})
}

func (s *service) RestoreTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (StockLevel, error) {
	if err := validateQuantity(qty); err != nil {
		return StockLevel{}, err
	}
	return s.increment(ctx, tx, productID, qty, models.StockMovement{
		Reason:  enums.MovementReasonOrderRestore,
		OrderID: optionalID(orderID),
	})
}

func (s *service) ImportStock(ctx context.Context, input ImportInput) (StockLevel, error) {
	if input.ProductID == uuid.Nil {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity <= 0 {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "import quantity must be positive")
	}
	if input.PurchasePrice != nil && input.PurchasePrice.IsNegative() {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "purchase price must not be negative")
	}

	var level StockLevel
	err := s.underLock(ctx, input.ProductID, func(tx *gorm.DB) error {
		var err error
		level, err = s.increment(ctx, tx, input.ProductID, input.Quantity, models.StockMovement{
			Reason:        enums.MovementReasonImport,
			PurchasePrice: input.PurchasePrice,
			Supplier:      trimmed(input.Supplier),
			Note:          trimmed(input.Note),
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockImported,
			AggregateType: enums.AggregateProduct,
			AggregateID:   input.ProductID,
			Actor:         actorRef(input.Actor),
			Data: payloads.StockImportedEvent{
				ProductID:     input.ProductID,
				Quantity:      input.Quantity,
				StockAfter:    level.Stock,
				PurchasePrice: input.PurchasePrice,
				Supplier:      trimmed(input.Supplier),
			},
		})
	})
	if err != nil {
		return StockLevel{}, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithProductID(ctx, input.ProductID.String()), map[string]any{
		"quantity":    input.Quantity,
		"stock_after": level.Stock,
	}), "stock imported")
	return level, nil
}

func (s *service) ExportStock(ctx context.Context, input ExportInput) (StockLevel, error) {
	if input.ProductID == uuid.Nil {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity <= 0 {
		return StockLevel{}, pkgerrors.New(pkgerrors.CodeValidation, "export quantity must be positive")
	}

	var level StockLevel
	err := s.underLock(ctx, input.ProductID, func(tx *gorm.DB) error {
		var err error
		level, err = s.decrement(ctx, tx, input.ProductID, input.Quantity, models.StockMovement{
			Reason: enums.MovementReasonExport,
			Note:   trimmed(input.Note),
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockExported,
			AggregateType: enums.AggregateProduct,
			AggregateID:   input.ProductID,
			Actor:         actorRef(input.Actor),
			Data: payloads.StockExportedEvent{
				ProductID:  input.ProductID,
				Quantity:   input.Quantity,
				StockAfter: level.Stock,
				Note:       trimmed(input.Note),
			},
		})
	})
	if err != nil {
		return StockLevel{}, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithProductID(ctx, input.ProductID.String()), map[string]any{
		"quantity":    input.Quantity,
		"stock_after": level.Stock,
	}), "stock exported")
	return level, nil
}

func (s *service) LockProducts(ctx context.Context, productIDs []uuid.UUID) (Release, error) {
	return LockProducts(ctx, s.locker, productIDs)
}

func (s *service) ListMovements(ctx context.Context, productID uuid.UUID, params pagination.Params) (*MovementList, error) {
	if _, err := s.findProduct(ctx, s.repo, productID); err != nil {
		return nil, err
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListMovements(ctx, productID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, db.Wrap(err, "list stock movements")
	}
	rows, nextCursor := pagination.Trim(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	items := make([]Movement, len(rows))
	for i, row := range rows {
		items[i] = toMovement(row)
	}
	return &MovementList{Movements: items, NextCursor: nextCursor}, nil
}

// Replay recomputes stock from the movement log. The product lock is held so
// the snapshot never straddles an in-flight write.
func (s *service) Replay(ctx context.Context, productID uuid.UUID) (*ReplayResult, error) {
	var result *ReplayResult
	err := s.underLock(ctx, productID, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.findProduct(ctx, repo, productID)
		if err != nil {
			return err
		}
		sum, err := repo.SumDeltas(ctx, productID)
		if err != nil {
			return db.Wrap(err, "sum stock movements")
		}
		result = &ReplayResult{
			ProductID:    productID,
			InitialStock: product.InitialStockQty,
			DeltaSum:     sum,
			CurrentStock: product.StockQty,
			Consistent:   product.InitialStockQty+sum == product.StockQty,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.SetDrift(productID.String(), result.Drift())
	return result, nil
}

func (s *service) ProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListProductIDs(ctx)
	if err != nil {
		return nil, db.Wrap(err, "list products")
	}
	return ids, nil
}

func (s *service) underLock(ctx context.Context, productID uuid.UUID, fn func(tx *gorm.DB) error) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	release, err := s.locker.Acquire(ctx, productID)
	if err != nil {
		return err
	}
	defer release()
	return s.tx.WithTx(ctx, fn)
}

func (s *service) decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, movement models.StockMovement) (StockLevel, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.DecrementStock(ctx, productID, qty)
	if err != nil {
		return StockLevel{}, db.Wrap(err, "decrement stock")
	}
	if !ok {
		product, err := s.findProduct(ctx, repo, productID)
		if err != nil {
			return StockLevel{}, err
		}
		return StockLevel{}, InsufficientStock(productID, qty, product.StockQty)
	}
	return s.appendMovement(ctx, repo, productID, qty, movement)
}

func (s *service) increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, movement models.StockMovement) (StockLevel, error) {
	repo := s.repo.WithTx(tx)
	ok, err := repo.IncrementStock(ctx, productID, qty)
	if err != nil {
		return StockLevel{}, db.Wrap(err, "increment stock")
	}
	if !ok {
		return StockLevel{}, productNotFound(productID)
	}
	return s.appendMovement(ctx, repo, productID, qty, movement)
}

// appendMovement records qty units against productID, signed by the
// movement's reason.
func (s *service) appendMovement(ctx context.Context, repo Repository, productID uuid.UUID, qty int, movement models.StockMovement) (StockLevel, error) {
	product, err := s.findProduct(ctx, repo, productID)
	if err != nil {
		return StockLevel{}, err
	}
	movement.Delta = qty
	if movement.Reason.IsDecrement() {
		movement.Delta = -qty
	}
	movement.ProductID = productID
	movement.StockAfter = product.StockQty
	if err := repo.InsertMovement(ctx, &movement); err != nil {
		return StockLevel{}, db.Wrap(err, "append stock movement")
	}
	s.metrics.IncMovement(movement.Reason.String())
	return StockLevel{ProductID: productID, Stock: product.StockQty}, nil
}

func (s *service) findProduct(ctx context.Context, repo Repository, productID uuid.UUID) (*models.Product, error) {
	product, err := repo.FindProduct(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, productNotFound(productID)
		}
		return nil, db.Wrap(err, "load product")
	}
	return product, nil
}

// InsufficientStock builds the typed error returned when a decrement would
// take stock below zero.
func InsufficientStock(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  requested,
			"available":  available,
		})
}

func productNotFound(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
		WithDetails(map[string]any{"product_id": productID.String()})
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func actorRef(userID uuid.UUID) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: enums.RoleAdmin}
}
