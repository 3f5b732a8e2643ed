package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/internal/inventory"
	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/outbox"
	"github.com/angelmondragon/papshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/papshop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockRestorer returns reserved stock when an order is canceled.
type StockRestorer interface {
	LockProducts(ctx context.Context, productIDs []uuid.UUID) (inventory.Release, error)
	RestoreTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int, orderID uuid.UUID) (inventory.StockLevel, error)
}

// Service drives the order state machine.
type Service interface {
	Cancel(ctx context.Context, orderID, requestingUserID uuid.UUID) (*OrderDetail, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) (*OrderDetail, error)
	GetByID(ctx context.Context, orderID, requestingUserID uuid.UUID) (*OrderDetail, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
}

// ServiceParams wires the order engine.
type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Inventory  StockRestorer
	Outbox     outbox.Emitter
	Logger     *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory StockRestorer
	outbox    outbox.Emitter
	logg      *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repository,
		tx:        params.TxRunner,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		logg:      logg,
	}, nil
}

// Cancel is the customer path: owner only and only while PENDING.
func (s *service) Cancel(ctx context.Context, orderID, requestingUserID uuid.UUID) (*OrderDetail, error) {
	if requestingUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestingUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, invalidTransition(order.Status, enums.OrderStatusCanceled)
	}

	updated, err := s.cancel(ctx, order, &outbox.ActorRef{UserID: requestingUserID, Role: enums.RoleCustomer}, false)
	if err != nil {
		return nil, err
	}
	detail := ToDetail(*updated)
	return &detail, nil
}

// UpdateStatus is the admin path. Moving to CANCELED restores stock like Cancel.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor) (*OrderDetail, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if actor.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": string(next)})
	}

	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, invalidTransition(order.Status, next)
	}

	ref := &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
	var updated *models.Order
	if next == enums.OrderStatusCanceled {
		updated, err = s.cancel(ctx, order, ref, true)
	} else {
		updated, err = s.advance(ctx, order, next, ref)
	}
	if err != nil {
		return nil, err
	}
	detail := ToDetail(*updated)
	return &detail, nil
}

func (s *service) GetByID(ctx context.Context, orderID, requestingUserID uuid.UUID) (*OrderDetail, error) {
	if requestingUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestingUserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	detail := ToDetail(*order)
	return &detail, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, ListQuery{UserID: userID}, params)
}

func (s *service) ListAll(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	query := ListQuery{}
	if filter.Status != nil {
		if !filter.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
		}
		query.Status = *filter.Status
	}
	return s.list(ctx, query, params)
}

func (s *service) list(ctx context.Context, query ListQuery, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, query, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, db.Wrap(err, "list orders")
	}
	rows, nextCursor := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})

	list := &OrderList{Orders: make([]OrderDetail, len(rows)), NextCursor: nextCursor}
	for i, row := range rows {
		list.Orders[i] = ToDetail(row)
	}
	return list, nil
}

// cancel flips the order to CANCELED and restores every line under the product
// locks. The conditional status write makes a concurrent second cancel fail
// before it can restore anything.
func (s *service) cancel(ctx context.Context, order *models.Order, actor *outbox.ActorRef, emitStatusChange bool) (*models.Order, error) {
	productIDs := make([]uuid.UUID, len(order.Lines))
	for i, line := range order.Lines {
		productIDs[i] = line.ProductID
	}
	release, err := s.inventory.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	defer release()

	from := order.Status
	canceledAt := time.Now().UTC()
	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID, from, enums.OrderStatusCanceled, &canceledAt)
		if err != nil {
			return db.Wrap(err, "cancel order")
		}
		if !ok {
			return s.raceLost(ctx, repo, order.ID, enums.OrderStatusCanceled)
		}

		for _, line := range order.Lines {
			if _, err := s.inventory.RestoreTx(ctx, tx, line.ProductID, line.Quantity, order.ID); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				FromStatus: from,
				CanceledAt: canceledAt,
				Restored:   EventLines(order.Lines),
			},
		}); err != nil {
			return db.Wrap(err, "emit order canceled")
		}
		if emitStatusChange {
			if err := s.emitStatusChanged(ctx, tx, order, from, enums.OrderStatusCanceled, actor); err != nil {
				return err
			}
		}

		updated, err = s.load(ctx, repo, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from":       string(from),
		"line_count": len(order.Lines),
	}), "order canceled")
	return updated, nil
}

func (s *service) advance(ctx context.Context, order *models.Order, next enums.OrderStatus, actor *outbox.ActorRef) (*models.Order, error) {
	from := order.Status
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID, from, next, nil)
		if err != nil {
			return db.Wrap(err, "update order status")
		}
		if !ok {
			return s.raceLost(ctx, repo, order.ID, next)
		}
		if err := s.emitStatusChanged(ctx, tx, order, from, next, actor); err != nil {
			return err
		}
		updated, err = s.load(ctx, repo, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from": string(from),
		"to":   string(next),
	}), "order status updated")
	return updated, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from, to enums.OrderStatus, actor *outbox.ActorRef) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: order.ID,
			UserID:  order.UserID,
			From:    from,
			To:      to,
		},
	})
	if err != nil {
		return db.Wrap(err, "emit order status changed")
	}
	return nil
}

// raceLost reports the transition failure against the status another writer left behind.
func (s *service) raceLost(ctx context.Context, repo Repository, orderID uuid.UUID, to enums.OrderStatus) error {
	current, err := s.load(ctx, repo, orderID)
	if err != nil {
		return err
	}
	return invalidTransition(current.Status, to)
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, db.Wrap(err, "load order")
	}
	return order, nil
}

func invalidTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{"from": string(from), "to": string(to)})
}
