package database

import (
	"MediSlot/config"
	"MediSlot/models"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the Postgres connection, configures the pool and verifies connectivity.
func InitDB(ctx context.Context, cfg *config.AppConfig) (*gorm.DB, error) {
	// Configure logging level based on environment
	logMode := logger.Silent
	if cfg.IsDev() {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: false,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	if err := configureConnectionPool(db, cfg); err != nil {
		return nil, err
	}

	if err := Ping(ctx, db); err != nil {
		return nil, err
	}

	log.Info().Msg("Database initialized successfully.")
	return db, nil
}

// configureConnectionPool sets up the connection pool settings for the database.
func configureConnectionPool(db *gorm.DB, cfg *config.AppConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB from GORM")
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return nil
}

// Ping verifies that the database connection is functional.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB from GORM")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(err, "failed to ping database")
	}
	return nil
}

// ServerTime returns the database clock, used by the health check.
func ServerTime(ctx context.Context, db *gorm.DB) (time.Time, error) {
	var now time.Time
	if err := db.WithContext(ctx).Raw("SELECT NOW() AS server_time").Scan(&now).Error; err != nil {
		return time.Time{}, errors.Wrap(err, "failed to query server time")
	}
	return now, nil
}

// Migrate performs schema migrations and seeds the role table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.Doctor{},
		&models.Patient{},
		&models.Slot{},
		&models.Appointment{},
	); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	if err := models.SeedRoles(db); err != nil {
		return errors.Wrap(err, "failed to seed roles")
	}
	return nil
}

// HealthCheck adapts Ping and ServerTime for the health endpoint.
type HealthCheck struct {
	DB *gorm.DB
}

func (p HealthCheck) Ping(ctx context.Context) error {
	return Ping(ctx, p.DB)
}

func (p HealthCheck) ServerTime(ctx context.Context) (time.Time, error) {
	return ServerTime(ctx, p.DB)
}
