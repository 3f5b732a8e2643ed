package checkout

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/internal/cart"
	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/internal/orders"
	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/metrics"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 50 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockReserver is the slice of the inventory ledger checkout drives.
type StockReserver interface {
	LockProducts(ctx context.Context, productIDs []uuid.UUID) (inventory.Release, error)
	ReserveTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (inventory.StockLevel, error)
	RestoreTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (inventory.StockLevel, error)
}

// Service converts a user's cart into a PENDING order.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error)
}

// CheckoutInput carries the caller identity and delivery details.
type CheckoutInput struct {
	UserID          uuid.UUID
	ShippingAddress string
	Notes           *string
}

// ServiceParams wires the orchestrator.
type ServiceParams struct {
	TxRunner    txRunner
	Carts       cart.Repository
	Orders      orders.Repository
	Inventory   StockReserver
	Outbox      outbox.Emitter
	Metrics     *metrics.CheckoutMetrics
	Logger      *logger.Logger
	MaxAttempts int
	RetryBase   time.Duration
}

type service struct {
	tx          txRunner
	carts       cart.Repository
	orders      orders.Repository
	inventory   StockReserver
	outbox      outbox.Emitter
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
	maxAttempts int
	retryBase   time.Duration
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	s := &service{
		tx:          params.TxRunner,
		carts:       params.Carts,
		orders:      params.Orders,
		inventory:   params.Inventory,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		maxAttempts: params.MaxAttempts,
		retryBase:   params.RetryBase,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryBase <= 0 {
		s.retryBase = defaultRetryBase
	}
	return s, nil
}

// Checkout reserves every cart line, persists the order with frozen prices and
// clears the cart, all or nothing. Only CONTENTION is retried.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error) {
	start := time.Now()
	order, err := s.checkout(ctx, input)
	s.metrics.Observe(outcomeOf(err), time.Since(start))
	return order, err
}

func (s *service) checkout(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	address := strings.TrimSpace(input.ShippingAddress)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required").
			WithDetails(map[string]any{"field": "shipping_address"})
	}
	input.ShippingAddress = address
	input.Notes = trimmedNotes(input.Notes)

	var result *orders.OrderDetail
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			s.metrics.IncRetry()
		}
		detail, err := s.attempt(ctx, input)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = detail
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(s.logg.WithUserID(ctx, input.UserID.String()), result.ID.String()), map[string]any{
		"line_count":  len(result.Lines),
		"total_price": result.TotalPrice.StringFixed(2),
		"attempts":    attempts,
	}), "checkout completed")
	return result, nil
}

// attempt runs one locked pass. Locks are taken before the transaction so the
// single-connection SQLite pool never waits on a lock while holding the tx.
func (s *service) attempt(ctx context.Context, input CheckoutInput) (*orders.OrderDetail, error) {
	lines, err := s.carts.ListByUser(ctx, input.UserID)
	if err != nil {
		return nil, db.Wrap(err, "load cart")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	locked := productIDs(lines)
	release, err := s.inventory.LockProducts(ctx, locked)
	if err != nil {
		return nil, err
	}
	defer release()

	// Past this point the caller can no longer abort a half-done reservation.
	ctx = context.WithoutCancel(ctx)

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		lines, err := cartRepo.ListByUser(ctx, input.UserID)
		if err != nil {
			return db.Wrap(err, "reload cart")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		if !coveredBy(lines, locked) {
			return pkgerrors.New(pkgerrors.CodeContention, "cart changed during checkout")
		}
		for _, line := range lines {
			if line.Product == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
					WithDetails(map[string]any{"product_id": line.ProductID.String()})
			}
		}

		orderID := uuid.New()
		if err := s.reserveAll(ctx, tx, orderID, lines); err != nil {
			return err
		}

		order := buildOrder(orderID, input, lines)
		if _, err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return db.Wrap(err, "create order")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleCustomer},
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				TotalPrice: order.TotalPrice,
				Lines:      orders.EventLines(order.Lines),
			},
		}); err != nil {
			return db.Wrap(err, "emit order created")
		}

		if err := cartRepo.DeleteAll(ctx, input.UserID); err != nil {
			return db.Wrap(err, "clear cart")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	detail := orders.ToDetail(*created)
	return &detail, nil
}

// reserveAll reserves lines in ascending product id order. On the first
// failure the lines already reserved are restored before the error returns.
func (s *service) reserveAll(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []models.CartLine) error {
	sorted := make([]models.CartLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].ProductID[:], sorted[j].ProductID[:]) < 0
	})

	reserved := make([]models.CartLine, 0, len(sorted))
	for _, line := range sorted {
		if _, err := s.inventory.ReserveTx(ctx, tx, line.ProductID, line.Quantity, orderID); err != nil {
			s.rollback(ctx, tx, orderID, reserved)
			return err
		}
		reserved = append(reserved, line)
	}
	return nil
}

func (s *service) rollback(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reserved []models.CartLine) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if _, err := s.inventory.RestoreTx(ctx, tx, line.ProductID, line.Quantity, orderID); err != nil {
			s.logg.Error(s.logg.WithProductID(ctx, line.ProductID.String()), "restore after failed checkout", err)
		}
	}
}

func buildOrder(orderID uuid.UUID, input CheckoutInput, lines []models.CartLine) *models.Order {
	order := &models.Order{
		ID:              orderID,
		UserID:          input.UserID,
		Status:          enums.OrderStatusPending,
		ShippingAddress: input.ShippingAddress,
		Notes:           input.Notes,
		Lines:           make([]models.OrderLine, len(lines)),
	}
	for i, line := range lines {
		order.Lines[i] = models.OrderLine{
			OrderID:             orderID,
			ProductID:           line.ProductID,
			Position:            i,
			Quantity:            line.Quantity,
			UnitPriceAtPurchase: line.Product.Price,
		}
	}
	order.TotalPrice = order.LinesTotal()
	return order
}

func productIDs(lines []models.CartLine) []uuid.UUID {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	return ids
}

func coveredBy(lines []models.CartLine, locked []uuid.UUID) bool {
	set := make(map[uuid.UUID]struct{}, len(locked))
	for _, id := range locked {
		set[id] = struct{}{}
	}
	for _, line := range lines {
		if _, ok := set[line.ProductID]; !ok {
			return false
		}
	}
	return true
}

func trimmedNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	value := strings.TrimSpace(*notes)
	if value == "" {
		return nil
	}
	return &value
}

func outcomeOf(err error) string {
	switch pkgerrors.CodeOf(err) {
	case "":
		if err == nil {
			return metrics.OutcomeSuccess
		}
		return metrics.OutcomeError
	case pkgerrors.CodeEmptyCart:
		return metrics.OutcomeEmptyCart
	case pkgerrors.CodeInsufficientStock:
		return metrics.OutcomeInsufficientStock
	case pkgerrors.CodeContention:
		return metrics.OutcomeContention
	default:
		return metrics.OutcomeError
	}
}
