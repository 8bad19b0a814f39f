package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oggyb/soulmate-hub/internal/api"
	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/auth"
	"github.com/oggyb/soulmate-hub/internal/cache"
	"github.com/oggyb/soulmate-hub/internal/config"
	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/logger"
	"github.com/oggyb/soulmate-hub/internal/relay"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/server"
	"github.com/oggyb/soulmate-hub/internal/service/access"
	"github.com/oggyb/soulmate-hub/internal/service/admin"
	"github.com/oggyb/soulmate-hub/internal/service/chat"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
	"github.com/oggyb/soulmate-hub/internal/service/profile"
	"github.com/oggyb/soulmate-hub/internal/service/security"
	"github.com/oggyb/soulmate-hub/internal/service/swipe"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	if cfg.Auth.JWTSecret == "" {
		log.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
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

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	appCtx := app.New(cfg, database, authDB, redisCache, log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, authDB); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	// Relay: in direct mode services dispatch in-process and the Redis bus
	// fans out to the other instances. In listen mode every instance reads
	// NOTIFY itself, so the bus stays off.
	hub := relay.NewHub(cfg.Relay.SendBuffer, log.With("component", "relay"))
	rel := relay.New(hub, log.With("component", "relay"))
	var publisher relay.Publisher = rel

	switch cfg.Relay.Source {
	case config.RelaySourceListen:
		if database.Dialector.Name() != "postgres" {
			log.Error("relay listen mode needs the postgres driver", "driver", database.Dialector.Name())
			os.Exit(1)
		}
		dsn := cfg.Relay.ListenDSN
		if dsn == "" {
			dsn = cfg.DB.DSN
		}
		listener := relay.NewListener(dsn, cfg.Relay.ReconnectDelay, rel, log.With("component", "relay_listener"))
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay listener stopped", "err", err)
			}
		}()
		publisher = relay.NewPGNotifyPublisher(database)
	default:
		bus := relay.NewRedisBus(redisCache, cfg.Relay.RedisChannel, log.With("component", "relay_bus"))
		rel.WithBus(bus)
		go func() {
			if err := bus.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay bus stopped", "err", err)
			}
		}()
	}

	// Access gate audit trail
	var sink access.Sink
	if cfg.Audit.Durable {
		sink = repository.NewSecurityEventRepository(database)
	}
	monitor := access.NewMonitor(cfg.Audit.Capacity, sink, log.With("component", "access"))
	if err := monitor.Warm(ctx); err != nil {
		log.Warn("failed to load recent security events", "err", err)
	}

	// Services
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	notifier := notify.NewService(appCtx)
	chatSvc := chat.NewService(appCtx, notifier, publisher)

	swipeSvc := swipe.NewService(appCtx, notifier, publisher)
	go swipeSvc.RunReconciler(ctx, cfg.Jobs.ReconcileInterval, cfg.Jobs.ReconcileBatch)

	apiServer := api.NewServer(cfg, api.Deps{
		Tokens:   tokens,
		Accounts: auth.NewAccounts(appCtx, tokens),
		Profiles: profile.NewService(appCtx, notifier, publisher),
		Swipes:   swipeSvc,
		Chat:     chatSvc,
		Notify:   notifier,
		Admin:    admin.NewService(appCtx, monitor, notifier),
		Socket:   relay.NewSocketServer(rel, tokens, chatSvc, cfg.HTTP.AllowedOrigins, log.With("component", "socket")),
	}, log)

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := server.StartGRPCServer(ctx, cfg, log, security.NewRegistrar(monitor)); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server failed", "err", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	log.Info("server stopped")
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.HTTP.ShutdownTimeout > 0 {
		return cfg.HTTP.ShutdownTimeout
	}
	return 10 * time.Second
}
