package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/api"
	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/aggregator"
	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/evaluator"
	"github.com/featureops/fsmon-backend-go/internal/core/ingest"
	"github.com/featureops/fsmon-backend-go/internal/core/metrics"
	"github.com/featureops/fsmon-backend-go/internal/core/system"
	"github.com/featureops/fsmon-backend-go/internal/database"
	"github.com/featureops/fsmon-backend-go/internal/websocket"
	"github.com/featureops/fsmon-backend-go/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger.SetLevel(log, cfg.Logging.Level)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create repositories
	repos := database.NewRepositories(db, log)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Initialize core services
	metricService := metrics.NewService(repos.Metric, cfg.Monitoring, log)
	alertService := alerts.NewService(repos.Alert, repos.Rule, log)
	alertService.SetEvents(wsHub)
	aggregatorService := aggregator.NewService(repos.Metric, repos.Alert, repos.Rule, cfg.Monitoring, log)
	gateway := ingest.NewGateway(metricService, alertService, cfg.System.Tenant, log)

	// Start the rule evaluator and wire it to the ingest path
	eval := evaluator.New(repos.Metric, repos.Rule, alertService, cfg.Monitoring, log)
	if err := eval.Start(); err != nil {
		log.Fatal("Failed to start rule evaluator:", err)
	}
	metricService.SetNotifier(eval)

	// Self-observation reporter (opt-in)
	reporter := system.NewReporter(gateway, cfg.System, log)
	reporter.Start()

	// Initialize router
	router := api.NewRouter(cfg, log, wsHub, gateway, metricService, alertService, aggregatorService)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting fsmon backend on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reporter.Stop()
	eval.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Info("Server exited")
}
