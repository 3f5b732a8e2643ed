package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/angelmondragon/papshop-backend/pkg/config"
)

func devSQLiteEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvAppEnv, config.AppEnvDev)
	t.Setenv(config.EnvUseSQLite, "true")
	t.Setenv(config.EnvAutoMigrate, "true")
	t.Setenv("PAPSHOP_SQLITE_PATH", filepath.Join(t.TempDir(), "papshop.db"))
	t.Setenv(config.EnvJWTSecret, "secret")
	t.Setenv(config.EnvJWTIssuer, "papshop")
}

func TestOpenMigratesDevSQLite(t *testing.T) {
	devSQLiteEnv(t)

	p, err := Open(context.Background(), "cron-worker")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if p.Config.Service.Kind != "cron-worker" {
		t.Fatalf("service kind = %q", p.Config.Service.Kind)
	}
	for _, table := range []string{"products", "stock_movements", "orders", "outbox_events"} {
		if !p.DB.DB().Migrator().HasTable(table) {
			t.Fatalf("dev schema missing %s", table)
		}
	}
}

func TestOpenCanLeaveSchemaAlone(t *testing.T) {
	devSQLiteEnv(t)
	p, err := Open(context.Background(), "migrate", WithoutDevMigrations())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if p.DB.DB().Migrator().HasTable("products") {
		t.Fatal("schema should not be applied")
	}
}

func TestCloseRunsNewestFirstAndKeepsGoing(t *testing.T) {
	devSQLiteEnv(t)
	p, err := Open(context.Background(), "api")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var order []string
	p.OnClose("pubsub", func() error {
		order = append(order, "pubsub")
		return errors.New("already closed")
	})
	p.OnClose("redis", func() error {
		order = append(order, "redis")
		return nil
	})
	p.Close()
	p.Close()

	if len(order) != 2 || order[0] != "redis" || order[1] != "pubsub" {
		t.Fatalf("close order = %v", order)
	}
	if err := p.DB.Ping(context.Background()); err == nil {
		t.Fatal("database should be closed")
	}
}

func TestOpenFailsWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(config.EnvAppEnv, "dev")
	if err := os.Unsetenv(config.EnvAppEnv); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if _, err := Open(context.Background(), "api"); err == nil {
		t.Fatal("expected config error")
	}
}
