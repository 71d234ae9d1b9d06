package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cityos/internal/config"
	"cityos/internal/domain"
	"cityos/internal/infra/auth/oidc"
	"cityos/internal/infra/auth/rbac"
	"cityos/internal/infra/db"
	"cityos/internal/infra/metrics"
	"cityos/internal/infra/pdp"
	"cityos/internal/infra/ratelimit"
	"cityos/internal/infra/signedctx"
	"cityos/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg    config.Config
	store  *db.Store
	r      *gin.Engine
	logger logrus.FieldLogger
	db     Pinger

	access  *usecase.AccessService
	tenants usecase.TenantRepository
	stores  usecase.StoreRepository

	authenticator domain.Authenticator
	authInitErr   error

	metrics  metrics.Recorder
	gatherer prometheus.Gatherer

	rateLimiter domain.RateLimiter
	rateLimit   ratelimit.Settings
}

// NewServer wires the production graph from cfg: verifier, tenant store,
// PDP client, authorizer and metrics.
func NewServer(cfg config.Config, store *db.Store, logger logrus.FieldLogger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, logger: logger}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Access        *usecase.AccessService
	Tenants       usecase.TenantRepository
	Stores        usecase.StoreRepository
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
	Metrics       metrics.Recorder
	Gatherer      prometheus.Gatherer
	Logger        logrus.FieldLogger
	DB            Pinger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        deps.Logger,
		db:            deps.DB,
		access:        deps.Access,
		tenants:       deps.Tenants,
		stores:        deps.Stores,
		authenticator: deps.Authenticator,
		metrics:       deps.Metrics,
		gatherer:      deps.Gatherer,
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initDeps() {
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusWithRegistry(registry)
	s.metrics = rec
	s.gatherer = registry

	var lookup domain.TenantLookup
	if s.store.Enabled() {
		s.db = s.store
		tenantRepo := db.NewTenantRepository(s.store.DB)
		lookup = tenantRepo
		s.tenants = tenantRepo
		s.stores = db.NewStoreRepository(s.store.DB)
	}

	verifier := signedctx.NewVerifier([]byte(s.cfg.ContextSecret), signedctx.WithLogger(s.logger))
	if !verifier.Enabled() {
		s.logger.Warn("CITYOS_CONTEXT_SECRET not set; signed context headers will be ignored")
	}
	resolver := usecase.NewContextResolver(verifier, lookup, s.cfg.SuperAdminRole,
		usecase.WithLookupTimeout(s.cfg.TenantLookupTimeout()),
		usecase.WithResolverLogger(s.logger),
		usecase.WithResolutionRecorder(rec),
	)
	client := pdp.NewClient(pdp.ConfigFrom(s.cfg), pdp.WithLogger(s.logger), pdp.WithMetrics(rec))
	s.access = usecase.NewAccessService(resolver, client, rbac.NewAuthorizer(s.cfg.SuperAdminRole), pdp.BuildPrincipal)

	s.initRateLimit(nil)
	s.initAuth()
}

func (s *Server) initAuth() {
	if s.cfg.AuthMode == "" {
		s.authInitErr = errors.New("AUTH_MODE is required")
		return
	}
	switch s.cfg.AuthMode {
	case "none", "header":
		return
	case "oidc":
		if s.authenticator != nil {
			return
		}
		authenticator, err := oidc.NewAuthenticator(s.cfg)
		if err != nil {
			s.authInitErr = err
			return
		}
		s.authenticator = authenticator
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	s.rateLimit = ratelimit.SettingsFrom(s.cfg)
	if override != nil {
		s.rateLimiter = override
		return
	}
	if !s.rateLimit.Enabled() {
		return
	}
	limiter, err := ratelimit.New(s.cfg)
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("redis rate limiter unavailable; using in-memory limiter")
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{MaxKeys: s.cfg.RateLimitMaxKeys})
	}
	s.rateLimiter = limiter
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.r.Group("/v1")
	v1.Use(s.requestID(), s.identity(), s.resolveContext(), s.enforceRateLimit())
	{
		v1.GET("/context", s.handleContext)
		v1.POST("/authz/check", s.handleAuthzCheck)

		v1.GET("/stores", s.handleListStores)
		v1.GET("/stores/:store_id", s.handleGetStore)
		v1.POST("/stores", s.handleCreateStore)

		v1.POST("/tenants", s.handleCreateTenant)
		v1.GET("/tenants/:tenant_id", s.handleGetTenant)
		v1.PATCH("/tenants/:tenant_id/status", s.handleUpdateTenantStatus)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

// handleHealth reports 503 when the database is configured but unreachable.
func (s *Server) handleHealth(c *gin.Context) {
	if s.db == nil {
		mode := "no-db"
		if s.stores != nil {
			mode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": mode})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.WithField("error", err.Error()).Warn("database health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mode": "db", "db": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": "db", "db": "ok"})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

// AuthInitErr reports an identity-layer misconfiguration detected at
// construction.
func (s *Server) AuthInitErr() error {
	return s.authInitErr
}
