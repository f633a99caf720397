// Package database opens the relational store and prepares its schema.
package database

import (
	"context"
	"fmt"
	"time"

	"catalog/internal/config"
	"catalog/internal/models"
	"catalog/internal/repositories"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var logLevels = map[string]logger.LogLevel{
	"silent": logger.Silent,
	"error":  logger.Error,
	"warn":   logger.Warn,
	"info":   logger.Info,
}

// Open connects to the configured database, applies pool settings and
// migrates the schema. The memory driver has no database and is rejected.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level, ok := logLevels[cfg.LogLevel]
	if !ok {
		level = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Migrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the products and users tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Product{}, &models.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedProducts inserts the demo catalog when the product table is empty.
// It returns the number of products inserted.
func SeedProducts(ctx context.Context, repo repositories.ProductRepository, now time.Time, log *zap.Logger) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		log.Debug("skipping product seed", zap.Int64("existing", count))
		return 0, nil
	}

	seed := []models.Product{
		{Name: "Laptop Dell", Description: "Laptop Dell Inspiron 15", Price: 15000000, Stock: 10},
		{Name: "iPhone 14", Description: "Apple iPhone 14 Pro Max", Price: 25000000, Stock: 5},
		{Name: "Samsung Galaxy S23", Description: "Samsung Galaxy S23 Ultra", Price: 22000000, Stock: 8},
	}
	for i := range seed {
		seed[i].Version = 1
		seed[i].CreatedAt = now
		seed[i].UpdatedAt = now
		if err := repo.Create(ctx, &seed[i]); err != nil {
			return i, fmt.Errorf("failed to seed product %q: %w", seed[i].Name, err)
		}
	}
	log.Info("seeded products", zap.Int("count", len(seed)))
	return len(seed), nil
}
