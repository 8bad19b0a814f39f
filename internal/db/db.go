package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/soulmate-hub/internal/config"
)

// NewDB opens the primary store described by cfg and brings the schema up to
// date. Postgres additionally gets the NOTIFY triggers used by the relay.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	database, err := Open(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.LogSQL)
	if err != nil {
		return nil, err
	}

	// AutoMigrate ensures schema is in sync with models.
	if err := database.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if database.Dialector.Name() == "postgres" {
		if err := RunMigrations(context.Background(), database); err != nil {
			return nil, fmt.Errorf("failed to apply notify triggers: %w", err)
		}
	}

	return database, nil
}

// NewAuthDB opens the auth-only store holding login accounts. When no
// separate DSN is configured the primary connection is reused.
func NewAuthDB(cfg *config.Config, primary *gorm.DB) (*gorm.DB, error) {
	database := primary
	if cfg.AuthDB.DSN != "" {
		var err error
		database, err = Open(cfg.AuthDB.Driver, cfg.AuthDB.DSN, cfg.DB.LogSQL)
		if err != nil {
			return nil, fmt.Errorf("auth store: %w", err)
		}
	}
	if err := database.AutoMigrate(&AuthAccount{}); err != nil {
		return nil, fmt.Errorf("failed to migrate auth schema: %w", err)
	}
	return database, nil
}

// Open connects to dsn using the named driver (postgres, mysql or sqlite).
func Open(driver, dsn string, logSQL bool) (*gorm.DB, error) {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if logSQL {
		level = logger.Info
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return database, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres", "postgresql", "":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Now is the clock used for row timestamps: UTC, truncated to the microsecond
// precision every supported dialect can store.
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
