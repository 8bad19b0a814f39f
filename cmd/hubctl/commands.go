package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/auth"
	"github.com/oggyb/soulmate-hub/internal/cache"
	"github.com/oggyb/soulmate-hub/internal/config"
	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/logger"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/service/access"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
	"github.com/oggyb/soulmate-hub/internal/service/security"
	"github.com/oggyb/soulmate-hub/internal/service/swipe"
)

// openApp loads config from the environment and connects both stores and
// Redis. The returned func releases them.
func openApp(ctx context.Context) (*app.AppContext, func(), error) {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init db: %w", err)
	}
	authDB, err := db.NewAuthDB(cfg, database)
	if err != nil {
		return nil, nil, fmt.Errorf("init auth db: %w", err)
	}
	rc := cache.NewRedisCache(cfg)
	if err := rc.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return app.New(cfg, database, authDB, rc, log), func() { _ = rc.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Bring both stores' schema up to date",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.New()
			logger.InitFromConfig(cfg)
			database, err := db.NewDB(cfg)
			if err != nil {
				return err
			}
			if _, err := db.NewAuthDB(cfg, database); err != nil {
				return err
			}
			logger.Info("schema up to date", "driver", database.Dialector.Name())
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Wipe the stores and load demo data",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "confirm that existing data may be deleted"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if !c.Bool("yes") {
				return fmt.Errorf("seeding deletes all data; pass --yes to continue")
			}
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()
			return db.SeedTestData(appCtx.DB, appCtx.AuthDB)
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an access token for an existing profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "profile id"},
			&cli.StringFlag{Name: "email", Usage: "profile email (used when --id is empty)"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			var p db.Profile
			q := appCtx.DB.WithContext(ctx)
			switch {
			case c.String("id") != "":
				id, err := uuid.Parse(c.String("id"))
				if err != nil {
					return fmt.Errorf("--id: %w", err)
				}
				err = q.First(&p, "id = ?", id).Error
				if err != nil {
					return err
				}
			case c.String("email") != "":
				if err := q.First(&p, "email = ?", strings.ToLower(c.String("email"))).Error; err != nil {
					return err
				}
			default:
				return fmt.Errorf("one of --id or --email is required")
			}

			cfg := appCtx.Config
			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, c.Duration("ttl")).
				GenerateAccessToken(p.ID, string(p.Role))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Create matches missing for mutual right swipes",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "batch", Value: 500},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			svc := swipe.NewService(appCtx, notify.NewService(appCtx), nil)
			n, err := svc.Reconcile(ctx, c.Int("batch"))
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"created": n})
		},
	}
}

func resetQuotasCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset-quotas",
		Usage: "Zero yesterday's daily like, super like and boost counters",
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			n, err := swipe.NewService(appCtx, notify.NewService(appCtx), nil).ResetQuotas(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"reset": n})
		},
	}
}

func cleanupNotificationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup-notifications",
		Usage: "Delete read notifications older than the given age",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "older-than", Value: 30 * 24 * time.Hour},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			n, err := notify.NewService(appCtx).Cleanup(ctx, c.Duration("older-than"))
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"deleted": n})
		},
	}
}

func notifyExpiringCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify-expiring",
		Usage: "Warn users whose subscription ends soon",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "window", Value: 3 * 24 * time.Hour},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			n, err := notify.NewService(appCtx).NotifyExpiring(ctx, c.Duration("window"))
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"notified": n})
		},
	}
}

func pruneAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune-audit",
		Usage: "Delete stored security events past the retention period",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "retention-days", Usage: "defaults to AUDIT_RETENTION_DAYS"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			appCtx, done, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer done()

			days := c.Int("retention-days")
			if days <= 0 {
				days = appCtx.Config.Audit.RetentionDays
			}
			monitor := access.NewMonitor(1, repository.NewSecurityEventRepository(appCtx.DB), appCtx.Logger)
			n, err := monitor.Prune(ctx, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"deleted": n})
		},
	}
}

func securityCommand() *cli.Command {
	addrFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "addr", Value: "127.0.0.1:50051", Usage: "operator gRPC address"}
	}
	return &cli.Command{
		Name:  "security",
		Usage: "Query the access audit trail of a running server",
		Commands: []*cli.Command{
			{
				Name:  "report",
				Usage: "Print the in-memory security summary",
				Flags: []cli.Flag{addrFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					return invokeSecurity(ctx, c.String("addr"), "GetReport", map[string]any{})
				},
			},
			{
				Name:  "events",
				Usage: "List stored security events",
				Flags: []cli.Flag{
					addrFlag(),
					&cli.IntFlag{Name: "limit", Value: 50},
					&cli.StringFlag{Name: "severity", Usage: "low, medium, high or critical"},
					&cli.StringFlag{Name: "user", Usage: "actor id"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return invokeSecurity(ctx, c.String("addr"), "ListEvents", map[string]any{
						"limit":    c.Int("limit"),
						"severity": c.String("severity"),
						"user_id":  c.String("user"),
					})
				},
			},
		},
	}
}

func invokeSecurity(ctx context.Context, addr, method string, in map[string]any) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	req, err := structpb.NewStruct(in)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+security.ServiceName+"/"+method, req, out); err != nil {
		return err
	}
	return printJSON(out.AsMap())
}
