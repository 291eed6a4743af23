package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatmimic/retrieval/pkg/observability"
)

// Server wires the HTTP surface: middleware, the owner-scoped route
// group, and the administrative route group.
type Server struct {
	router *gin.Engine
	srv    *http.Server
	config Config
	logger observability.Logger
}

// NewServer creates the HTTP server
func NewServer(cfg Config, service RetrievalService, reindexer Reindexer, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(logger.WithPrefix("api")))
	router.Use(RateLimiter(cfg.RateLimit))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}

	base := router.Group(basePath)
	base.Use(AuthRequired(cfg))

	embeddingAPI := NewEmbeddingAPI(service, logger.WithPrefix("embedding_api"))
	embeddingAPI.RegisterRoutes(base)

	admin := base.Group("/admin")
	admin.Use(AdminRequired())

	adminAPI := NewAdminAPI(service, reindexer, logger.WithPrefix("admin_api"))
	adminAPI.RegisterRoutes(admin)

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
		srv: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Router exposes the underlying gin engine, for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server until it fails or is shut down
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{
		"address": s.config.ListenAddress,
	})
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
