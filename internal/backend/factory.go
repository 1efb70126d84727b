package backend

import (
	"context"
	"fmt"
	"log/slog"

	"designledger/internal/amqp"
	"designledger/internal/inventory/memory"
	"designledger/internal/metrics"
	"designledger/internal/services"
	"designledger/internal/storage"
)

// Result is a ready inventory service plus the hooks the server needs
// around it.
type Result struct {
	Service *services.InventoryService
	// Ready reports whether the store can serve requests.
	Ready   func(ctx context.Context) error
	Cleanup func() error
}

// dialer opens the movement publisher. Replaced in tests.
type dialer func(url, exchange, queue string) (services.MovementPublisher, error)

func dialAMQP(url, exchange, queue string) (services.MovementPublisher, error) {
	c, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Factory struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    dialer
}

// NewFactory builds backends that report to m, which may be nil.
func NewFactory(logger *slog.Logger, m *metrics.Metrics) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger, metrics: m, dial: dialAMQP}
}

func (f *Factory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store services.Store
		ready = func(context.Context) error { return nil }
	)
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store, ready = repo, repo.Ping
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	default:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	}

	publisher := f.publisher(ctx, cfg)
	svc := services.NewInventoryService(store, publisher, services.Options{
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
		Observer:  f.metrics,
		Recorder:  f.metrics,
	})
	return &Result{Service: svc, Ready: ready, Cleanup: svc.Close}, nil
}

// publisher returns nil when AMQP is off or unreachable. Movements still
// succeed without it.
func (f *Factory) publisher(ctx context.Context, cfg Config) services.MovementPublisher {
	if cfg.AMQPURL == "" {
		return nil
	}
	p, err := f.dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without movement events", "error", err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return p
}
