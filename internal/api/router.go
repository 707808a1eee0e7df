package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type RouterConfig struct {
	JWTSecret string
	// Gatherer backs GET /metrics. Nil leaves the route out.
	Gatherer prometheus.Gatherer
	// Health is nil when running on in-memory stores.
	Health HealthChecker
}

type Handlers struct {
	Broker    *BrokerHandler
	Exchanges *ExchangeHandler
	Messages  *MessageHandler
	Stream    *StreamHandler
}

// NewRouter wires every route. /v1/health and /metrics are public; /v1 needs
// a member token and /admin/broker a broker token.
func NewRouter(cfg RouterConfig, h Handlers, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(logger), Recovery(logger))

	r.GET("/v1/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health.Health(c.Request.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	authn := middleware.AuthMiddleware(cfg.JWTSecret, logger)

	v1 := r.Group("/v1", authn)
	v1.POST("/messages", h.Messages.Send)
	v1.POST("/exchanges", h.Exchanges.Create)
	v1.GET("/exchanges/:id", h.Exchanges.Get)
	v1.POST("/exchanges/:id/ready", h.Exchanges.Ready)
	v1.POST("/exchanges/:id/confirm", h.Exchanges.Confirm)
	v1.POST("/exchanges/:id/dispute", h.Exchanges.Dispute)
	v1.POST("/exchanges/:id/cancel", h.Exchanges.Cancel)

	admin := r.Group("/admin/broker", authn, middleware.RequireAdmin())
	admin.GET("/dashboard", h.Broker.Dashboard)
	admin.GET("/config", h.Broker.GetConfig)
	admin.PUT("/config", h.Broker.PutConfig)

	admin.POST("/evaluate", h.Messages.Evaluate)
	admin.GET("/messages", h.Broker.ListMessages)
	admin.GET("/messages/:id", h.Broker.GetMessage)
	admin.POST("/messages/:id/review", h.Broker.ReviewMessage)
	admin.POST("/messages/:id/flag", h.Broker.FlagMessage)

	admin.GET("/risk-tags", h.Broker.ListRiskTags)
	admin.PUT("/risk-tags/:listing_id", h.Broker.PutRiskTag)
	admin.DELETE("/risk-tags/:listing_id", h.Broker.DeleteRiskTag)

	admin.GET("/monitoring", h.Broker.ListMonitoring)
	admin.GET("/monitoring/:user_id", h.Broker.GetMonitoring)
	admin.PUT("/monitoring/:user_id", h.Broker.PutMonitoring)

	admin.GET("/exchanges", h.Exchanges.List)
	admin.GET("/exchanges/:id", h.Exchanges.AdminGet)
	admin.POST("/exchanges/:id/approve", h.Exchanges.Approve)
	admin.POST("/exchanges/:id/reject", h.Exchanges.Reject)
	admin.POST("/exchanges/:id/resolve", h.Exchanges.Resolve)

	if h.Stream != nil {
		admin.GET("/ws", h.Stream.Stream)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "route not found"})
	})
	return r
}
