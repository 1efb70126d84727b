package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"designledger/internal/cache"
	"designledger/internal/core"
	applog "designledger/internal/log"
	"designledger/internal/metrics"
	"designledger/internal/middleware/ratelimit"
	"designledger/internal/middleware/security"
	"designledger/internal/middleware/trace"
	"designledger/internal/services"
	appweb "designledger/web"
)

const (
	defaultCacheCleanupInterval = 10 * time.Minute
	staticMaxAge                = 3600
	requestTimeout              = 7 * time.Second
)

// Inventory is the slice of the inventory service the handlers use.
type Inventory interface {
	Dashboard(ctx context.Context) (services.Dashboard, error)
	CreateProject(ctx context.Context, p core.Project) (core.Project, error)
	Project(ctx context.Context, id string) (services.ProjectView, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	AddItem(ctx context.Context, transactionID string, it core.Item) (core.Item, error)
	TransactionView(ctx context.Context, transactionID string) (services.TransactionView, error)
	MoveTargets(ctx context.Context, tx core.Transaction) ([]core.Transaction, error)
	MoveItem(ctx context.Context, itemID, toTransactionID string) (core.Movement, error)
	ReturnItemToInventory(ctx context.Context, itemID string) (core.Movement, error)
}

type Options struct {
	Logger  *applog.Logger
	Metrics *metrics.Metrics
	// Ready checks the backing store for /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// Caches are cleaned of expired entries every CacheCleanupInterval.
	Caches               []cache.Cleaner
	CacheCleanupInterval time.Duration
	RateLimitPerMinute   int
}

type Server struct {
	http.Server
	templates *template.Template
	inventory Inventory
	logger    *applog.Logger
	metrics   *metrics.Metrics
	ready     func(ctx context.Context) error

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	caches      *cache.Manager

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, inv Inventory, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		inventory: inv,
		logger:    logger,
		metrics:   opts.Metrics,
		ready:     opts.Ready,
		detector:  security.NewDetector(),
		caches:    cache.NewManager(),
		started:   time.Now(),
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		OnLimit:           opts.Metrics.RateLimited,
	})
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	for _, c := range opts.Caches {
		s.caches.Register(c)
	}
	interval := opts.CacheCleanupInterval
	if interval <= 0 {
		interval = defaultCacheCleanupInterval
	}
	s.caches.StartCleanup(interval)

	t, err := parseTemplates()
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError("Too many requests, try again shortly").Write(w)
	})
	post := func(h http.HandlerFunc) http.Handler { return limit(h) }

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /projects/{id}", s.handleProject)
	mux.Handle("POST /projects", post(s.handleCreateProject))
	mux.Handle("POST /transactions", post(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions/{id}", s.handleTransaction)
	mux.Handle("POST /transactions/{id}", post(s.handleUpdateTransaction))
	mux.Handle("POST /transactions/{id}/items", post(s.handleAddItem))
	mux.HandleFunc("GET /transactions/{id}/export.xlsx", s.handleExportTransaction)
	mux.HandleFunc("GET /ui/transactions/{id}/items", s.handleTransactionItems)
	mux.Handle("POST /items/{id}/move", post(s.handleMoveItem))
	mux.Handle("POST /items/{id}/return", post(s.handleReturnItem))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = s.metrics.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func parseTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"money": func(m core.Money) string { return m.String() },
		"date":  func(d core.Date) string { return d.String() },
		"deref": core.Deref,
	}
	t, err := template.New("designledger").Funcs(funcs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
