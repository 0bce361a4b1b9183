package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/andobill/pkg/aggregates"
	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/auth"
	"github.com/platinummonkey/andobill/pkg/config"
	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/i18n"
	"github.com/platinummonkey/andobill/pkg/middleware"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/policy"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/session"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
	"github.com/platinummonkey/andobill/pkg/tenant"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

// Deps are the process-wide resources the server is built from
type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	Dialect  postgres.Dialect
	Redis    *redis.Client // nil selects the in-process limiter and session store
	Logger   *observability.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Audit    audit.Logger
	// AuditStore serves the audit log endpoint; nil disables it
	AuditStore *audit.DBLogger
	Version    string
	// BcryptCost overrides the password hashing cost (0 for the default)
	BcryptCost int
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger

	Sessions      *session.Manager
	Limiter       throttle.Limiter
	Attempts      *throttle.AttemptStore
	Users         *auth.UserStore
	Companies     *tenant.PostgresService
	Settings      *tenant.SettingsRepository
	Roles         *rbac.Store
	Gate          *policy.Gate
	Cache         *aggregates.Cache
	resolver      *tenant.Resolver
	authenticator *auth.Authenticator
	dashboard     *aggregates.Dashboard
}

// NewServer wires every component and registers the routes
func NewServer(deps Deps) (*Server, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	trusted, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NewLogLogger(logger)
	}

	s := &Server{router: mux.NewRouter(), logger: logger}

	var store session.Store
	if deps.Redis != nil {
		s.Limiter = throttle.NewRedisLimiter(deps.Redis, "andobill:throttle")
		store = session.NewRedisStore(deps.Redis, "andobill:session", cfg.Session.Lifetime)
	} else {
		s.Limiter = throttle.NewMemoryLimiter()
		store = session.NewMemoryStore(cfg.Session.MemoryLimit, cfg.Session.Lifetime)
	}
	s.Sessions = session.NewManager(store, session.Options{
		CookieName: cfg.Session.CookieName,
		Lifetime:   cfg.Session.Lifetime,
		Secure:     cfg.Session.SecureCookie,
	}, logger)
	freshness := session.NewFreshness(cfg.Session.IdleTimeout, s.Sessions, cfg.Server.LoginPath, logger, deps.Metrics)
	freshness.Exempt(auth.LoginPath)

	s.Roles = rbac.NewStore(deps.DB)
	checker := rbac.NewChecker(s.Roles)

	s.Companies = tenant.NewService(deps.DB, deps.Dialect, logger)
	s.Settings = tenant.NewSettingsRepository(deps.DB)
	s.resolver = tenant.NewResolver(s.Companies)
	switcher := tenant.NewSwitcher(s.Companies, deps.Metrics)
	s.Gate = policy.DefaultGate(deps.Metrics)

	s.Attempts = throttle.NewAttemptStore(deps.DB)
	guard := throttle.NewGuard(s.Attempts, s.Limiter, throttle.Config{
		MaxAttempts:      cfg.Throttle.MaxAttempts,
		Decay:            cfg.Throttle.Decay,
		Window:           cfg.Throttle.Window,
		AddressThreshold: cfg.Throttle.AddressThreshold,
		AddressLockout:   cfg.Throttle.AddressLockout,
	}, logger, deps.Metrics)
	s.Users = auth.NewUserStore(deps.DB, deps.BcryptCost)
	authenticator, err := auth.NewAuthenticator(s.Users, s.Companies, guard, deps.BcryptCost, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	s.authenticator = authenticator

	s.Cache = aggregates.NewCache(cfg.Cache.Size, cfg.Cache.TTL, deps.Metrics)
	s.dashboard = aggregates.NewDashboard(aggregates.NewDashboardReader(deps.DB), s.Cache)

	// Operational endpoints skip sessions entirely
	s.router.Use(
		httputil.RealIPMiddleware(trusted),
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		observability.HTTPMetricsMiddleware(deps.Metrics),
	)
	observability.RegisterHealthRoutes(s.router, observability.NewHealthChecker(deps.DB, deps.Redis, deps.Version))
	if cfg.Observability.MetricsEnabled && deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Registry)).Methods(http.MethodGet)
	}

	app := s.router.PathPrefix("/").Subrouter()
	app.Use(
		audit.NewMiddleware(auditLogger).Handler,
		i18n.Middleware,
		s.Sessions.Middleware,
		freshness.Middleware,
	)
	s.RegisterRoutes(app, auth.NewHandlers(authenticator, s.Sessions))

	authn := middleware.NewAuthMiddleware(checker, s.Sessions, cfg.Server.LoginPath, false)
	apiRouter := app.PathPrefix("/api").Subrouter()
	apiRouter.Use(authn.Handler, middleware.TenantContext(s.resolver))
	if cfg.Server.RateLimit > 0 {
		limit := middleware.NewRateLimitMiddleware(s.Limiter, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimit,
			WindowDuration:    time.Minute,
		}, logger)
		apiRouter.Use(limit.Handler)
	}

	apiRouter.HandleFunc("/shared", s.shared).Methods(http.MethodGet)
	apiRouter.Handle("/dashboard", middleware.RequireTenant(http.HandlerFunc(s.dashboardStats))).Methods(http.MethodGet)
	// cached shared state embeds permissions and company details
	s.RegisterRoutes(apiRouter,
		rbac.NewHandlers(s.Roles).OnChange(s.Cache.InvalidateAll),
		tenant.NewHandlers(s.Companies, s.Settings, switcher, s.Gate).OnChange(func(companyID int64) {
			s.Cache.InvalidateTenant(&companyID)
		}),
	)
	if deps.AuditStore != nil {
		s.RegisterRoutes(apiRouter, audit.NewHandlers(deps.AuditStore))
	}

	s.handler = otelhttp.NewHandler(s.router, "andobill",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeTemplate(r)
		}),
	)
	return s, nil
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from each registrar on router
func (s *Server) RegisterRoutes(router *mux.Router, registrars ...RouteRegistrar) {
	for _, r := range registrars {
		r.RegisterRoutes(router)
	}
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
