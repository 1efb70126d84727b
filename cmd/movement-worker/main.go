package main

import (
	"context"
	"errors"
	"os"

	"designledger/internal/amqp"
	"designledger/internal/cli"
	"designledger/internal/config"
	"designledger/internal/ledger"
	ledgergoogle "designledger/internal/ledger/google"
	ledgermem "designledger/internal/ledger/memory"
	applog "designledger/internal/log"
	"designledger/internal/storage"
	"designledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig((*config.Config).ValidateWorker)
	logger = logger.WithComponent(applog.ComponentWorker)
	logger.Info("Starting movement-worker")

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	w, err := openLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger", "error", err)
		os.Exit(1)
	}

	// The memory backend lives inside the server process, so only sqlite
	// can resolve transaction sources here.
	var lookup worker.TransactionLookup
	if cfg.DataBackend == "sqlite" {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		lookup = repo
	} else {
		logger.Info("No shared store configured, ledger rows will carry ids only", "backend", cfg.DataBackend)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	mw := worker.NewMovementWorker(lookup, w)
	if err := client.ConsumeItemMoved(ctx, mw.HandleItemMoved); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func openLedger(ctx context.Context, cfg *config.Config, logger *applog.Logger) (ledger.Writer, error) {
	if !cfg.LedgerEnabled() {
		logger.Info("Google Sheets ledger disabled, keeping movements in memory")
		return ledgermem.New(), nil
	}
	c, err := ledgergoogle.New(ctx, ledgergoogle.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleLedgerSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
