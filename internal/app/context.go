package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/soulmate-hub/internal/cache"
	"github.com/oggyb/soulmate-hub/internal/config"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	AuthDB     *gorm.DB // login accounts; may be the same handle as DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
}

// New creates a new AppContext
func New(cfg *config.Config, db, authDB *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	if authDB == nil {
		authDB = db
	}
	return &AppContext{
		Config:     cfg,
		DB:         db,
		AuthDB:     authDB,
		RedisCache: rdb,
		Logger:     logger,
	}
}
