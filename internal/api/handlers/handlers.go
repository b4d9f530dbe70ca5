package handlers

import (
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/aggregator"
	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/ingest"
	"github.com/featureops/fsmon-backend-go/internal/core/metrics"
	"github.com/featureops/fsmon-backend-go/internal/websocket"
	"github.com/sirupsen/logrus"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg        *config.Config
	log        *logrus.Logger
	wsHub      *websocket.Hub
	gateway    *ingest.Gateway
	metrics    *metrics.Service
	alerts     *alerts.Service
	aggregator *aggregator.Service
	startedAt  time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, log *logrus.Logger, wsHub *websocket.Hub, gateway *ingest.Gateway, metricSvc *metrics.Service, alertSvc *alerts.Service, aggSvc *aggregator.Service) *Handlers {
	return &Handlers{
		cfg:        cfg,
		log:        log,
		wsHub:      wsHub,
		gateway:    gateway,
		metrics:    metricSvc,
		alerts:     alertSvc,
		aggregator: aggSvc,
		startedAt:  time.Now(),
	}
}
