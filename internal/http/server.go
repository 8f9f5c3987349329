package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"tiffin/internal/cache"
	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/middleware/ratelimit"
	"tiffin/internal/middleware/security"
	"tiffin/internal/middleware/trace"
	"tiffin/internal/repository"
	"tiffin/internal/services"
)

// Deps are the collaborators the API is served from.
type Deps struct {
	Store repository.Store
	// Events is optional; without it writes are not announced to the worker.
	Events services.SyncPublisher
	// Ready reports whether the backing store is reachable.
	Ready func(context.Context) error
}

type Options struct {
	RateLimitPerMinute int
	PricingCacheTTL    time.Duration
	SessionCacheTTL    time.Duration
	SessionCacheSize   int
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
	Logger         *applog.Logger
}

type Server struct {
	http.Server
	logger *applog.Logger
	deps   Deps

	accounts *services.AccountService
	pricing  *services.PricingService
	validate *validator.Validate

	// Per-user log services; each keeps the logs its user has seen.
	sessions     *cache.LRUCache[*services.LogService]
	pricingCache *cache.LRUCache[core.PriceTable]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime      time.Time
	logsSaved   int64
	leaveDays   int64
	exports     int64
	sessionHits int64
	sessionMiss int64
}

// NewServer wires the routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.PricingCacheTTL <= 0 {
		opts.PricingCacheTTL = 5 * time.Minute
	}
	if opts.SessionCacheTTL <= 0 {
		opts.SessionCacheTTL = 30 * time.Minute
	}
	if opts.SessionCacheSize <= 0 {
		opts.SessionCacheSize = 500
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	pricingCache := cache.NewLRUCache[core.PriceTable](opts.SessionCacheSize, opts.PricingCacheTTL)
	sessions := cache.NewLRUCache[*services.LogService](opts.SessionCacheSize, opts.SessionCacheTTL)
	manager := cache.NewManager()
	manager.Register(pricingCache)
	manager.Register(sessions)
	manager.StartCleanup(10 * time.Minute)

	limiterConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limiterConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}
	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.WarnContext(context.Background(), "Ignoring trusted proxy",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldError, err)
		}
	}

	s := &Server{
		logger:           logger,
		deps:             deps,
		accounts:         services.NewAccountService(deps.Store, deps.Store),
		pricing:          services.NewPricingService(deps.Store, pricingCache),
		validate:         validator.New(),
		sessions:         sessions,
		pricingCache:     pricingCache,
		cacheManager:     manager,
		rateLimiter:      ratelimit.NewLimiter(limiterConfig),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		appMetrics:       appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 10 * time.Second
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 120 * time.Second
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/accounts", s.handleRegister)
	mux.Handle("GET /api/me", s.withSession(s.handleMe))
	mux.Handle("PUT /api/me/settings", s.withSession(s.handleUpdateSettings))

	mux.Handle("GET /api/pricing", s.approved(s.handleGetPricing))
	mux.Handle("PATCH /api/pricing", s.approved(s.handleUpdatePricing))
	mux.Handle("POST /api/pricing/reset", s.approved(s.handleResetPricing))

	mux.Handle("GET /api/logs", s.approved(s.handleListLogs))
	mux.Handle("GET /api/logs/{date}", s.approved(s.handleGetLog))
	mux.Handle("PUT /api/logs/{date}", s.approved(s.handleSaveLog))
	mux.Handle("DELETE /api/logs/{date}", s.approved(s.handleDeleteLog))
	mux.Handle("POST /api/logs/{date}/skip", s.approved(s.handleSkipDay))
	mux.Handle("POST /api/leave", s.approved(s.handleBulkLeave))

	mux.Handle("GET /api/summary/month", s.approved(s.handleMonthlySummary))
	mux.Handle("GET /api/summary/week", s.approved(s.handleWeeklySummary))
	mux.Handle("GET /api/export", s.approved(s.handleExport))

	mux.Handle("GET /api/admin/users", s.admin(s.handleListUsers))
	mux.Handle("PUT /api/admin/users/{uid}/approval", s.admin(s.handleSetApproval))
	mux.Handle("PUT /api/admin/users/{uid}/role", s.admin(s.handleSetRole))
	mux.Handle("POST /api/admin/users/{uid}/pricing/reset", s.admin(s.handleAdminResetPricing))
	mux.Handle("GET /api/admin/alerts", s.admin(s.handleListAlerts))
	mux.Handle("POST /api/admin/alerts/{id}/read", s.admin(s.handleMarkAlertRead))
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r))
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops the background sweepers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) countSession(hit bool) {
	if hit {
		atomic.AddInt64(&s.appMetrics.sessionHits, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.sessionMiss, 1)
	}
}
