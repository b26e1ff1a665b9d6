package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/clinicops-backend/pkg/config"
	"github.com/angelmondragon/clinicops-backend/pkg/db"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
)

// MaybeRunDev brings the ledger and mirror tables up to date at boot. SQLite
// databases are always migrated since nothing else owns their schema;
// postgres only in dev with AutoMigrate set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !shouldAutoMigrate(cfg, client.Dialect()) {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"dir": DefaultDir, "dialect": client.Dialect()})
	if err := ValidateFS(Embedded()); err != nil {
		return fmt.Errorf("validate migrations: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "applying ledger migrations")
	if err := Run(ctx, sqlDB, client.Dialect(), DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "ledger migrations applied")
	return nil
}

func shouldAutoMigrate(cfg *config.Config, dialect string) bool {
	if dialect == db.DialectSQLite {
		return true
	}
	return cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}
