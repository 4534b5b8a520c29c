package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fiscalflow/internal/cache"
	"fiscalflow/internal/core"
	"fiscalflow/internal/entity"
	"fiscalflow/internal/log"
	"fiscalflow/internal/middleware/ratelimit"
	"fiscalflow/internal/middleware/security"
	"fiscalflow/internal/middleware/trace"
)

// ExpenseAPI is the service surface the server exposes.
type ExpenseAPI interface {
	GetSettings(ctx context.Context) (core.UserSettings, error)
	UpdateSettings(ctx context.Context, partial map[string]any) (core.UserSettings, error)
	ListExpenses(ctx context.Context, cursor string, limit int) (entity.Page[core.Expense], error)
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, id string, partial map[string]any) (core.Expense, error)
	DeleteExpense(ctx context.Context, id string) (bool, error)
	DeleteAllExpenses(ctx context.Context) (int, error)
}

// Options configures a Server.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// Ready reports whether the store answers; nil means always ready.
	Ready func(ctx context.Context) error
	// CacheStats exposes the read cache counters on /metrics. Optional.
	CacheStats func() cache.Stats
	// TrustedProxies are CIDRs whose forwarding headers are honoured, in
	// addition to loopback and private ranges.
	TrustedProxies []string
}

// Server is the JSON API server.
type Server struct {
	http.Server
	api     ExpenseAPI
	logger  *log.Logger
	ready   func(ctx context.Context) error
	started time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheStats       func() cache.Stats

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, api ExpenseAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		api:              api,
		logger:           logger,
		ready:            opts.Ready,
		started:          time.Now(),
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		cacheStats:       opts.CacheStats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses/all", s.handleDeleteAllExpenses)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("/api/settings", methodNotAllowed("GET, POST"))
	mux.HandleFunc("/api/expenses", methodNotAllowed("GET, POST"))
	mux.HandleFunc("/api/expenses/{id}", methodNotAllowed("PUT, DELETE"))
	mux.HandleFunc("/api/", s.handleNotFound)

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, ratelimit.MutatingOnly,
		func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
		})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(allowed).Write(w)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("route not found").Write(w)
}
