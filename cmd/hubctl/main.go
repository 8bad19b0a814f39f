// Command hubctl runs maintenance jobs against the hub's stores and queries
// the operator gRPC surface.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/oggyb/soulmate-hub/internal/logger"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "hubctl",
		Usage: "Soulmate hub operator tool",
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			tokenCommand(),
			reconcileCommand(),
			resetQuotasCommand(),
			cleanupNotificationsCommand(),
			notifyExpiringCommand(),
			pruneAuditCommand(),
			securityCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		logger.Error("hubctl failed", "err", err)
		os.Exit(1)
	}
}
