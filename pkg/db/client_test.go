package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/papshop-backend/pkg/errors"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:dbclient_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to keep 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			tx.Create(&testModel{Name: "panicky"})
			panic("kaboom")
		})
	}()

	var count int64
	db.Model(&testModel{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no rows after panic, got %d", count)
	}
}

func TestWithTx_ClassifiesLockErrors(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	lockErr := &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return fmt.Errorf("decrement: %w", lockErr)
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeContention {
		t.Fatalf("expected contention, got %v", err)
	}
	if !errors.Is(err, lockErr) {
		t.Fatalf("expected cause to be preserved")
	}

	typed := pkgerrors.New(pkgerrors.CodeNotFound, "missing")
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error { return typed })
	if err != typed {
		t.Fatalf("typed errors must pass through untouched, got %v", err)
	}
}

func TestWithTx_UpgradesInternalWrappedLockErrors(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	lockErr := &pgconn.PgError{Code: "55P03"}

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, lockErr, "decrement stock")
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeContention {
		t.Fatalf("expected contention, got %v", err)
	}
	if !errors.Is(err, lockErr) {
		t.Fatalf("expected cause to be preserved")
	}
}

func TestWrapPicksCodeFromCause(t *testing.T) {
	if got := Wrap(&pgconn.PgError{Code: "40P01"}, "update order").Code(); got != pkgerrors.CodeContention {
		t.Fatalf("deadlock should wrap as contention, got %s", got)
	}
	if got := Wrap(fmt.Errorf("exec: %w", errors.New("database is locked")), "add cart line").Code(); got != pkgerrors.CodeContention {
		t.Fatalf("sqlite busy should wrap as contention, got %s", got)
	}
	if got := Wrap(errors.New("connection refused"), "load cart").Code(); got != pkgerrors.CodeInternal {
		t.Fatalf("other failures should wrap as internal, got %s", got)
	}
}

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"other", errors.New("connection refused"), false},
		{"typed contention", fmt.Errorf("ctx: %w", pkgerrors.New(pkgerrors.CodeContention, "busy")), true},
		{"busy behind typed wrapper", pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("database is locked"), "x"), true},
	}
	for _, tt := range tests {
		if got := IsContention(tt.err); got != tt.want {
			t.Fatalf("%s: expected %v got %v", tt.name, tt.want, got)
		}
	}
}
