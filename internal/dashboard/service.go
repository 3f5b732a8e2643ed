package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/enums"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
	"github.com/angelmondragon/papshop-backend/pkg/redis"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
	defaultCacheTTL    = 30 * time.Second
	statsCacheKey      = "stats"
)

// Stats are the admin dashboard headline numbers.
type Stats struct {
	TotalProducts int64           `json:"total_products"`
	TotalUsers    int64           `json:"total_users"`
	TotalOrders   int64           `json:"total_orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// RecentOrder is a line-free order summary.
type RecentOrder struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Service serves dashboard reads.
type Service interface {
	Stats(ctx context.Context) (*Stats, error)
	RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error)
}

type service struct {
	repo  Repository
	cache redis.CacheStore
	ttl   time.Duration
	logg  *logger.Logger
	group singleflight.Group
}

// NewService builds the dashboard service. cache may be nil, in which case
// every Stats call hits the database.
func NewService(repo Repository, cache redis.CacheStore, ttl time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("dashboard repository required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, cache: cache, ttl: ttl, logg: logg}, nil
}

// Stats is cache-aside: a Redis hit is returned as is, concurrent misses
// collapse into one recomputation. Cache failures degrade to a direct read.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	if stats, ok := s.cached(ctx); ok {
		return stats, nil
	}

	value, err, _ := s.group.Do(statsCacheKey, func() (interface{}, error) {
		if stats, ok := s.cached(ctx); ok {
			return stats, nil
		}
		stats, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, stats)
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Stats), nil
}

func (s *service) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := s.repo.RecentOrders(ctx, limit)
	if err != nil {
		return nil, db.Wrap(err, "load recent orders")
	}
	out := make([]RecentOrder, len(rows))
	for i, row := range rows {
		out[i] = RecentOrder{
			ID:         row.ID,
			UserID:     row.UserID,
			Status:     row.Status,
			TotalPrice: row.TotalPrice,
			CreatedAt:  row.CreatedAt,
		}
	}
	return out, nil
}

func (s *service) compute(ctx context.Context) (*Stats, error) {
	products, err := s.repo.CountProducts(ctx)
	if err != nil {
		return nil, db.Wrap(err, "count products")
	}
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, db.Wrap(err, "count users")
	}
	orders, err := s.repo.CountOrders(ctx)
	if err != nil {
		return nil, db.Wrap(err, "count orders")
	}
	revenue, err := s.repo.DeliveredRevenue(ctx)
	if err != nil {
		return nil, db.Wrap(err, "sum revenue")
	}
	return &Stats{
		TotalProducts: products,
		TotalUsers:    users,
		TotalOrders:   orders,
		Revenue:       revenue,
		ComputedAt:    time.Now().UTC(),
	}, nil
}

func (s *service) cached(ctx context.Context) (*Stats, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey("dashboard", statsCacheKey))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dashboard cache read failed")
		}
		return nil, false
	}
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dashboard cache entry unreadable")
		return nil, false
	}
	return &stats, true
}

func (s *service) store(ctx context.Context, stats *Stats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey("dashboard", statsCacheKey), string(raw), s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dashboard cache write failed")
	}
}
