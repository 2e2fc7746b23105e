package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kabhishek18/apiguard/internal/audit"
	"github.com/kabhishek18/apiguard/internal/auth"
	"github.com/kabhishek18/apiguard/internal/authz"
	"github.com/kabhishek18/apiguard/internal/config"
	"github.com/kabhishek18/apiguard/internal/health"
	"github.com/kabhishek18/apiguard/internal/observability"
	"github.com/kabhishek18/apiguard/internal/ratelimit"
	"github.com/kabhishek18/apiguard/internal/store"
)

// Server is the apiguard HTTP server.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger observability.Logger
}

// Deps are the wired components the server routes requests through.
type Deps struct {
	Store         store.Store
	Authenticator *auth.Authenticator
	Limiter       *ratelimit.ClientLimiter
	Recorder      *audit.Recorder
	Checker       *health.Checker
	Metrics       *Metrics
	Logger        observability.Logger
}

// New assembles the router and middleware chain.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(RequestID())
	engine.Use(Recovery(logger))
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Middleware())
	}
	if cfg.Server.EnforceHTTPS {
		engine.Use(EnforceHTTPS())
	}

	s := &Server{
		engine: engine,
		logger: logger,
		http: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.registerOperational(deps.Checker)
	s.registerContent(cfg, deps)
	s.registerAdmin(cfg, deps)

	return s
}

func (s *Server) registerOperational(checker *health.Checker) {
	if checker != nil {
		s.engine.GET("/healthz", checker.HealthHandler())
		s.engine.GET("/readyz", checker.ReadinessHandler())
	}
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) registerContent(cfg *config.Config, deps Deps) {
	content := &contentHandlers{content: deps.Store}

	api := s.engine.Group("/api/v1")
	if deps.Recorder != nil {
		api.Use(RecordUsage(deps.Recorder))
	}
	api.Use(Authenticate(deps.Authenticator, cfg.Auth.EnforceIPAllowlist, s.logger))

	limited := RateLimit(deps.Limiter, s.logger)

	api.GET("/posts", RequireCapability(authz.CapReadPosts), limited, content.listPosts)
	api.GET("/posts/:id", RequireCapability(authz.CapReadPosts), limited, content.getPost)
	api.POST("/posts", RequireCapability(authz.CapWritePosts), limited, content.createPost)
	api.PUT("/posts/:id", RequireCapability(authz.CapWritePosts), limited, content.updatePost)
	api.DELETE("/posts/:id", RequireCapability(authz.CapDeletePosts), limited, content.deletePost)

	api.GET("/categories", RequireCapability(authz.CapManageCategories), limited, content.listCategories)
	api.POST("/categories", RequireCapability(authz.CapManageCategories), limited, content.createCategory)
	api.DELETE("/categories/:id", RequireCapability(authz.CapManageCategories), limited, content.deleteCategory)
}

func (s *Server) registerAdmin(cfg *config.Config, deps Deps) {
	h := &adminHandlers{
		store:      deps.Store,
		hasher:     deps.Authenticator.Hasher(),
		limiter:    deps.Limiter,
		defaultTTL: cfg.Auth.DefaultKeyTTL,
		logger:     s.logger,
	}

	admin := s.engine.Group("/admin/v1", AdminAuth(cfg.Admin.Token))

	admin.POST("/clients", h.createClient)
	admin.GET("/clients", h.listClients)
	admin.GET("/clients/:id", h.getClient)
	admin.POST("/clients/:id/activate", h.setClientActive(true))
	admin.POST("/clients/:id/deactivate", h.setClientActive(false))

	admin.POST("/clients/:id/credentials", h.issueCredential)
	admin.GET("/clients/:id/credentials", h.listCredentials)
	admin.POST("/clients/:id/credentials/rotate", h.rotateCredentials)
	admin.POST("/credentials/:id/revoke", h.revokeCredential)

	admin.POST("/clients/:id/usage/reset", h.resetUsage)
	admin.GET("/clients/:id/usage", h.recentUsage)
}

// Handler exposes the router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		observability.String("address", s.http.Addr),
	)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
