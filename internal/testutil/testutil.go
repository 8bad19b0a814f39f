// Package testutil wires in-memory stores for package tests: SQLite through
// gorm and a miniredis-backed cache.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/cache"
	"github.com/oggyb/soulmate-hub/internal/config"
	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/logger"
)

// NewDB opens an isolated in-memory SQLite database named after the test
// and migrates every model. One connection keeps concurrent writers
// serialized the way a row lock would.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                db.Now,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	models := append(db.AllModels(), &db.AuthAccount{})
	require.NoError(t, database.AutoMigrate(models...))
	return database
}

// NewCache starts a miniredis server and returns a cache bound to it.
func NewCache(t testing.TB) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

// Config returns defaults suitable for tests, independent of the host env.
func Config() *config.Config {
	cfg := &config.Config{}
	cfg.App.ENV = "test"
	cfg.Auth.JWTSecret = "test-secret-at-least-32-chars-long-for-hs256"
	cfg.Auth.Issuer = "soulmate-hub-test"
	cfg.Relay.Source = config.RelaySourceDirect
	cfg.Relay.SendBuffer = 16
	cfg.Relay.RedisChannel = "relay:events"
	cfg.RateLimit.RegisteredRPS = 1000
	cfg.RateLimit.PremiumRPS = 1000
	cfg.RateLimit.StaffRPS = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Audit.Capacity = 1000
	cfg.Audit.Durable = true
	cfg.Audit.RetentionDays = 90
	cfg.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	return cfg
}

// NewAppContext bundles a fresh database, cache and a silent logger.
func NewAppContext(t testing.TB) *app.AppContext {
	t.Helper()
	database := NewDB(t)
	rc, _ := NewCache(t)
	return app.New(Config(), database, database, rc, logger.Discard())
}

// CreateProfile inserts a profile with the given name and role.
func CreateProfile(t testing.TB, database *gorm.DB, name string, role db.Role) db.Profile {
	t.Helper()
	p := db.Profile{
		Name:  name,
		Email: strings.ToLower(name) + "@example.com",
		Role:  role,
	}
	require.NoError(t, database.Create(&p).Error)
	return p
}
