package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/db/models"
	"github.com/angelmondragon/papshop-backend/pkg/pagination"
)

// Repository defines persistence for product stock and the movement log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	InsertMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, productID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.StockMovement, error)
	SumDeltas(ctx context.Context, productID uuid.UUID) (int, error)
	ListProductIDs(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the ledger repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock subtracts qty only when enough stock remains. It reports
// false when the guard rejected the write or the product does not exist.
func (r *repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_qty >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{
			"stock_qty":  gorm.Expr("stock_qty + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListMovements(ctx context.Context, productID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).Model(&models.StockMovement{}).Where("product_id = ?", productID)
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.StockMovement
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) SumDeltas(ctx context.Context, productID uuid.UUID) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(delta), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *repository) ListProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Product{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}
