package api

import (
	"github.com/featureops/fsmon-backend-go/internal/api/handlers"
	"github.com/featureops/fsmon-backend-go/internal/api/middleware"
	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/aggregator"
	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/ingest"
	"github.com/featureops/fsmon-backend-go/internal/core/metrics"
	"github.com/featureops/fsmon-backend-go/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, logger *logrus.Logger, wsHub *websocket.Hub, gateway *ingest.Gateway, metricSvc *metrics.Service, alertSvc *alerts.Service, aggSvc *aggregator.Service) *gin.Engine {
	// Set gin mode based on config
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	if cfg.Security.EnableCORS {
		router.Use(middleware.CORSMiddleware(cfg.Security.AllowedOrigins))
	}

	// Rate limiting
	if cfg.Security.RateLimiting.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.Security.RateLimiting.RequestsPerSecond,
			cfg.Security.RateLimiting.BurstSize,
		)
		router.Use(rateLimiter.RateLimitMiddleware())
	}

	// Initialize handlers
	h := handlers.NewHandlers(cfg, logger, wsHub, gateway, metricSvc, alertSvc, aggSvc)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	router.GET("/ws", h.WebSocketHandler(wsHub))

	// API v1 routes
	api := router.Group("/api/v1")
	{
		// Metric observations
		observations := api.Group("/observations")
		{
			observations.POST("", h.SubmitObservation)
			observations.GET("", h.ListObservations)
		}

		// Read-side views
		api.GET("/dashboard", h.Dashboard)
		api.GET("/timeseries/:metric_name", h.TimeSeries)

		// Alerts
		alertRoutes := api.Group("/alerts")
		{
			alertRoutes.GET("", h.ListAlerts)
			alertRoutes.POST("", h.CreateAlert)
			alertRoutes.GET("/:id", h.GetAlert)
			alertRoutes.PUT("/:id/status", h.UpdateAlertStatus)
		}

		// Alert rules
		ruleRoutes := api.Group("/alert-rules")
		{
			ruleRoutes.GET("", h.ListAlertRules)
			ruleRoutes.POST("", h.CreateAlertRule)
			ruleRoutes.GET("/:id", h.GetAlertRule)
			ruleRoutes.PUT("/:id", h.UpdateAlertRule)
		}

		// WebSocket management
		ws := api.Group("/websocket")
		{
			ws.GET("/stats", h.GetWebSocketStats(wsHub))
		}
	}

	return router
}
