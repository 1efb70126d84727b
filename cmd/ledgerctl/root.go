package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"designledger/internal/cli"
	"designledger/internal/config"
	applog "designledger/internal/log"
	"designledger/internal/services"
	"designledger/internal/storage"
)

const commandTimeout = 30 * time.Second

type rootOptions struct {
	dbPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Maintenance commands for the designledger SQLite store",
		Long: `ledgerctl works directly on the SQLite database used by the
designledger server.

Examples:
  ledgerctl migrate up
  ledgerctl split 3f2c9e1a-...
  ledgerctl export 3f2c9e1a-... -o west-elm.xlsx`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.SetupLogger(&config.Config{LogLevel: "warn"}, applog.ComponentCLI)
		},
	}

	cli.LoadEnvFile()
	root.PersistentFlags().StringVar(&opts.dbPath, "db", config.Load().SQLiteDBPath, "SQLite database path (SQLITE_DB_PATH)")

	root.AddCommand(
		newMigrateCmd(opts),
		newSplitCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// openService opens the store behind an inventory service without AMQP.
// Closing the service closes the database.
func (o *rootOptions) openService() (*services.InventoryService, error) {
	repo, err := storage.NewSQLiteRepository(o.dbPath)
	if err != nil {
		return nil, err
	}
	return services.NewInventoryService(repo, nil, services.Options{}), nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}
