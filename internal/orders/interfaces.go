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

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, canceledAt *time.Time) (bool, error)
	List(ctx context.Context, query ListQuery, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

// ListQuery narrows order listings. Zero values match everything.
type ListQuery struct {
	UserID uuid.UUID
	Status enums.OrderStatus
}
