package dashboard

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// Repository runs the aggregate queries behind the admin dashboard.
type Repository interface {
	CountProducts(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
	CountOrders(ctx context.Context) (int64, error)
	DeliveredRevenue(ctx context.Context) (decimal.Decimal, error)
	RecentOrders(ctx context.Context, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the dashboard queries to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountProducts(ctx context.Context) (int64, error) {
	return r.count(ctx, &models.Product{})
}

func (r *repository) CountUsers(ctx context.Context) (int64, error) {
	return r.count(ctx, &models.User{})
}

func (r *repository) CountOrders(ctx context.Context) (int64, error) {
	return r.count(ctx, &models.Order{})
}

// DeliveredRevenue sums total_price over DELIVERED orders only.
func (r *repository) DeliveredRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("SUM(total_price)").
		Where("status = ?", enums.OrderStatusDelivered).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (r *repository) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) count(ctx context.Context, model any) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(model).Count(&n).Error
	return n, err
}
