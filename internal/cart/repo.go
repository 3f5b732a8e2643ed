package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
)

// Repository exposes persistence operations for cart lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error)
	FindLine(ctx context.Context, userID, lineID uuid.UUID) (*models.CartLine, error)
	FindLineByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error)
	AddQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error
	UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, qty int) (bool, error)
	DeleteLine(ctx context.Context, userID, lineID uuid.UUID) (bool, error)
	DeleteAll(ctx context.Context, userID uuid.UUID) error
	CountLines(ctx context.Context, userID uuid.UUID) (int64, error)
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListByUser returns the user's lines in insertion order with their products.
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) FindLine(ctx context.Context, userID, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id = ? AND user_id = ?", lineID, userID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) FindLineByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// AddQuantity inserts a line or sums qty into the existing (user, product) line.
func (r *repository) AddQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	line := models.CartLine{UserID: userID, ProductID: productID, Quantity: qty}
	return r.db.WithContext(ctx).
		Omit("Product").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_lines.quantity + excluded.quantity"),
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&line).Error
}

func (r *repository) UpdateQuantity(ctx context.Context, userID, lineID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("id = ? AND user_id = ?", lineID, userID).
		UpdateColumns(map[string]any{
			"quantity":   qty,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteLine(ctx context.Context, userID, lineID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", lineID, userID).
		Delete(&models.CartLine{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartLine{}).Error
}

func (r *repository) CountLines(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CartLine{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
