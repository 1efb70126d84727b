package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"designledger/internal/backend"
	"designledger/internal/cache"
	"designledger/internal/cli"
	"designledger/internal/config"
	apphttp "designledger/internal/http"
	"designledger/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadConfig((*config.Config).Validate)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res, err := backend.NewFactory(logger.Logger, m).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, res.Service, apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		Ready:              res.Ready,
		Caches:             []cache.Cleaner{res.Service.ItemCache()},
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting designledger server", "port", cfg.Port, "backend", backendCfg.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Server stopped gracefully")
}
