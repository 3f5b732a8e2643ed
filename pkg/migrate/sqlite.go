package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the Postgres migrations for local SQLite runs and
// tests. Enum columns become TEXT with CHECK constraints.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL DEFAULT 'customer' CHECK (role IN ('customer', 'admin')),
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL CHECK (price >= 0),
  stock_qty INTEGER NOT NULL DEFAULT 0 CHECK (stock_qty >= 0),
  initial_stock_qty INTEGER NOT NULL DEFAULT 0 CHECK (initial_stock_qty >= 0),
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL REFERENCES products(id),
  delta INTEGER NOT NULL CHECK (delta <> 0),
  reason TEXT NOT NULL CHECK (reason IN ('IMPORT', 'EXPORT', 'ORDER_RESERVE', 'ORDER_RESTORE')),
  order_id TEXT,
  purchase_price NUMERIC,
  supplier TEXT,
  note TEXT,
  stock_after INTEGER NOT NULL CHECK (stock_after >= 0),
  created_at DATETIME
);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product_created ON stock_movements (product_id, created_at, id);`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_cart_lines_user_product UNIQUE (user_id, product_id)
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PROCESSING', 'SHIPPED', 'DELIVERED', 'CANCELED')),
  total_price NUMERIC NOT NULL CHECK (total_price >= 0),
  shipping_address TEXT NOT NULL,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  canceled_at DATETIME
);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at, id);`,
	`CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL REFERENCES products(id),
  position INTEGER NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  unit_price_at_purchase NUMERIC NOT NULL,
  CONSTRAINT ux_order_lines_order_position UNIQUE (order_id, position)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TRIGGER IF NOT EXISTS trg_stock_movements_no_update
  BEFORE UPDATE ON stock_movements
  BEGIN SELECT RAISE(ABORT, 'stock_movements is append-only'); END;`,
	`CREATE TRIGGER IF NOT EXISTS trg_stock_movements_no_delete
  BEFORE DELETE ON stock_movements
  BEGIN SELECT RAISE(ABORT, 'stock_movements is append-only'); END;`,
}

// ApplySQLiteSchema creates every table the services need on a SQLite connection.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for i, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("sqlite schema statement %d: %w", i, err)
		}
	}
	return nil
}
