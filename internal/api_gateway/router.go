package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/settlement-closer/internal/api_gateway/handler"
	"github.com/settlement-closer/internal/api_gateway/middleware"
	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/platform/metrics"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	cfg *config.Config,
	r *gin.Engine,
	settlementHandler *handler.SettlementHandler,
	registry *prometheus.Registry,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	if cfg.Metrics.Enabled && registry != nil {
		r.Use(middleware.Metrics(metrics.NewHTTPMetrics(registry)))
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(registry)))
	}

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(middleware.NewTokenVerifier(cfg.Auth), logger))
	{
		settlements := v1.Group("/settlements/:id")
		{
			settlements.POST("/close", settlementHandler.Close)
			settlements.POST("/close-requests", settlementHandler.RequestClose)
			settlements.GET("/snapshot", settlementHandler.GetSnapshot)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
