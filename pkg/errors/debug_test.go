package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsCarryPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23514",
		ConstraintName: "products_stock_qty_check",
		TableName:      "products",
		Message:        "new row violates check constraint",
	}
	err := Wrap(CodeInternal, fmt.Errorf("decrement: %w", pgErr), "reserve stock")

	fields := LogFields(err)
	if fields["error_code"] != string(CodeInternal) {
		t.Fatalf("error_code = %v", fields["error_code"])
	}
	if fields["pg_code"] != "23514" || fields["pg_constraint"] != "products_stock_qty_check" || fields["pg_table"] != "products" {
		t.Fatalf("pg fields = %+v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatalf("empty pg_detail should be omitted")
	}
	if chain := fields["error_chain"].([]string); len(chain) != 3 {
		t.Fatalf("chain = %v", chain)
	}
}

func TestPostgresReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("goose up: %w", &pq.Error{Code: "42P07", Table: "orders", Message: "relation already exists"})
	pg, ok := Postgres(err)
	if !ok || pg.Code != "42P07" || pg.Table != "orders" {
		t.Fatalf("diagnostics = %+v ok=%v", pg, ok)
	}
	if _, ok := Postgres(stdErrors.New("plain")); ok {
		t.Fatalf("plain errors have no diagnostics")
	}
}

func TestLogFieldsForPlainAndNilErrors(t *testing.T) {
	if LogFields(nil) != nil {
		t.Fatalf("nil error should produce no fields")
	}
	fields := LogFields(stdErrors.New("boom"))
	if len(fields) != 1 || fields["error"] != "boom" {
		t.Fatalf("fields = %+v", fields)
	}
}
