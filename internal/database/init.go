package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stocktester/internal/config"
)

// Initialize creates the connection pool and brings the schema up to date when
// auto_migrate is enabled. Otherwise it only warns about pending migrations.
func Initialize(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if _, err := db.Migrate(ctx, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return db, nil
	}

	pending, err := db.PendingMigrations(ctx)
	if err != nil {
		// schema_migrations may not exist on a fresh database
		logger.WithError(err).Warn("Unable to check migration state")
		return db, nil
	}
	if len(pending) > 0 {
		logger.WithField("pending", pending).Warn("Database migrations have not been applied; run stockctl migrate")
	}

	return db, nil
}
