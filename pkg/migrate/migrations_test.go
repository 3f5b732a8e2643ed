package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestCompiledSchemaMatchesSourceDir(t *testing.T) {
	if err := Lint(Schema()); err != nil {
		t.Fatalf("lint compiled schema: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	compiled, err := fs.Glob(Schema(), "*.sql")
	if err != nil {
		t.Fatalf("glob schema: %v", err)
	}
	if len(onDisk) == 0 || len(onDisk) != len(compiled) {
		t.Fatalf("compiled %d migrations, source dir has %d", len(compiled), len(onDisk))
	}
}

func TestLintReportsEveryProblem(t *testing.T) {
	broken := fstest.MapFS{
		"20250101000000_ok.sql":           {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20250101000000_same_version.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"add_index.sql":                   {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20250102000000_no_down.sql":      {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	err := Lint(broken)
	if got := len(multierr.Errors(err)); got != 3 {
		t.Fatalf("expected 3 problems, got %d: %v", got, err)
	}
	if err := Lint(fstest.MapFS{}); err == nil {
		t.Fatal("empty migration set should fail")
	}
}

func TestProductsMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_products")
	for _, check := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (stock_qty >= 0)",
		"initial_stock_qty integer NOT NULL",
		"price numeric(12,2) NOT NULL",
	} {
		if !strings.Contains(content, check) {
			t.Fatalf("products migration missing %q", check)
		}
	}
}

func TestStockMovementsMigrationIsAppendOnly(t *testing.T) {
	content := readMigration(t, "create_stock_movements")
	for _, check := range []string{
		"reason movement_reason NOT NULL",
		"REFERENCES products(id)",
		"BEFORE UPDATE OR DELETE ON stock_movements",
	} {
		if !strings.Contains(content, check) {
			t.Fatalf("stock movements migration missing %q", check)
		}
	}
}

func TestCartLinesMigrationEnforcesUniqueness(t *testing.T) {
	content := readMigration(t, "create_cart_lines")
	if !strings.Contains(content, "UNIQUE (user_id, product_id)") {
		t.Fatalf("cart lines must be unique per user and product")
	}
	if !strings.Contains(content, "CHECK (quantity >= 1)") {
		t.Fatalf("cart lines must reject zero quantities")
	}
}

func TestSQLiteSchemaAppliesAndRejectsNegativeStock(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:schema_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()
	if err := ApplySQLiteSchema(ctx, conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	// idempotent
	if err := ApplySQLiteSchema(ctx, conn); err != nil {
		t.Fatalf("re-apply schema: %v", err)
	}

	err = conn.Exec(`INSERT INTO products (id, name, price, stock_qty, initial_stock_qty) VALUES (?, 'x', 1, -1, 0)`, uuid.NewString()).Error
	if err == nil {
		t.Fatalf("expected negative stock to violate check constraint")
	}

	id := uuid.NewString()
	productID := uuid.NewString()
	if err := conn.Exec(`INSERT INTO products (id, name, price, stock_qty, initial_stock_qty) VALUES (?, 'x', 1, 1, 1)`, productID).Error; err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if err := conn.Exec(`INSERT INTO stock_movements (id, product_id, delta, reason, stock_after) VALUES (?, ?, 1, 'IMPORT', 2)`, id, productID).Error; err != nil {
		t.Fatalf("insert movement: %v", err)
	}
	if err := conn.Exec(`UPDATE stock_movements SET delta = 5 WHERE id = ?`, id).Error; err == nil {
		t.Fatalf("expected movement update to be rejected")
	}
}

func TestScaffoldWritesLintCleanMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	path, err := Scaffold(dir, "Add Supplier Index!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20250601120000_add_supplier_index.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := Lint(os.DirFS(dir)); err != nil {
		t.Fatalf("scaffolded migration should lint: %v", err)
	}
	if _, err := Scaffold(dir, "add supplier index", now); err == nil {
		t.Fatalf("expected duplicate migration to fail")
	}
	if _, err := Scaffold(dir, "!!!", now); err == nil {
		t.Fatalf("expected empty sanitized name to fail")
	}
}
