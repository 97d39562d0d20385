package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pablobfonseca/go-photo-organizer/config"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// Connect opens the configured database and migrates the category
// collections and person signatures.
func Connect(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.PostgresDSN())
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DBDriver == config.DriverPostgres {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector;").Error; err != nil {
			return nil, fmt.Errorf("failed to enable pgvector: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Database connected", "driver", cfg.DBDriver)
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.CategoryDocument{}, &models.CategoryImage{}, &models.PersonSignature{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
