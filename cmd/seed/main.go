package main

import (
	"os"

	"github.com/oggyb/soulmate-hub/internal/config"
	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	authDB, err := db.NewAuthDB(cfg, database)
	if err != nil {
		log.Error("failed to init auth db", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, authDB); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
