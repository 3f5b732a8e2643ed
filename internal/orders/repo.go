package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create persists the order together with its lines.
func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus moves the order from one status to another only if it is
// still in from. It reports false when another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, canceledAt *time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if canceledAt != nil {
		updates["canceled_at"] = canceledAt.UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, query ListQuery, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Lines", orderedLines)
	if query.UserID != uuid.Nil {
		q = q.Where("user_id = ?", query.UserID)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if cursor != nil {
		q = q.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Order
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}
