// Package cli holds the startup steps shared by the designledger binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"designledger/internal/config"
	applog "designledger/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger for component at the configured
// level and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	level := "info"
	if cfg != nil {
		level = cfg.LogLevel
	}
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadConfig reads the environment and runs validate over it. Every
// problem is logged in one record before exiting.
func LoadConfig(validate func(*config.Config) error) (*config.Config, *applog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, applog.ComponentApp)
	if validate != nil {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed", "error", err)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// ShutdownContext is cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
