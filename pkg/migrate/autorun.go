package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/db"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to date when auto-migrate is on.
// Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if cfg.DB.IsSQLite() {
		if err := ApplySQLiteSchema(ctx, client.DB()); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
		logg.Info(ctx, "dev sqlite schema applied")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := NewMigrator(sqlDB, nil)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "dev migrations applied")
	return nil
}
