package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// SyncModels creates or alters the SQLite schema from the gorm models. The SQL
// files target Postgres and are never applied to SQLite.
func SyncModels(ctx context.Context, client *db.Client) error {
	if client.Driver() != config.DBDriverSQLite {
		return fmt.Errorf("model sync is only used for sqlite, got %s", client.Driver())
	}
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("sqlite automigrate: %w", err)
	}
	return nil
}

// Up applies every pending migration to client, picking model sync for
// SQLite and the goose source for Postgres.
func Up(ctx context.Context, client *db.Client, src Source) error {
	if client.Driver() == config.DBDriverSQLite {
		return SyncModels(ctx, client)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	return Run(ctx, sqlDB, src, "up")
}

// MaybeRunDev brings the schema up on startup in dev when AUTO_MIGRATE is on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithField(ctx, "db_driver", client.Driver())
	logg.Info(ctx, "auto-migrating schema")
	if err := Up(ctx, client, Embedded()); err != nil {
		return err
	}
	logg.Info(ctx, "schema up to date")
	return nil
}
