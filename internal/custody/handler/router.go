package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimitRPS int   // 0 disables rate limiting
	MaxBodyBytes int64 // default 1 MB
}

// Handlers groups the route handlers mounted under /api/v1.
type Handlers struct {
	Custody *CustodyHandler
	Ledger  *LedgerHandler
	Access  *AccessHandler
	// Auth resolves the calling actor on write routes.
	Auth gin.HandlerFunc
}

// NewRouter builds the gin engine with the middleware chain and all routes.
// ctx bounds background work started by middleware.
func NewRouter(ctx context.Context, cfg RouterConfig, h Handlers, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Actor", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(SecurityHeaders())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	router.Use(MaxBody(maxBody))

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}

	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	h.Custody.Register(v1, h.Auth)
	h.Ledger.Register(v1)
	h.Access.Register(v1, h.Auth)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
