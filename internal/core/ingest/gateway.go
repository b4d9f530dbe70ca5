package ingest

import (
	"context"
	"errors"

	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/metrics"
	"github.com/featureops/fsmon-backend-go/internal/core/telemetry"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Gateway fronts the write path for producers. It enforces tenant
// ownership before anything touches a store; field-level shape checks
// live with the stores themselves so the rules exist in one place.
type Gateway struct {
	metrics *metrics.Service
	alerts  *alerts.Service
	tenant  string
	log     *logrus.Logger
}

// NewGateway creates an ingestion gateway. An empty tenant accepts
// observations from any tenant.
func NewGateway(metricSvc *metrics.Service, alertSvc *alerts.Service, tenant string, log *logrus.Logger) *Gateway {
	return &Gateway{metrics: metricSvc, alerts: alertSvc, tenant: tenant, log: log}
}

// SubmitObservation validates tenant ownership and records the
// observation. Rejections are synchronous; an accepted submission is
// durably stored.
func (g *Gateway) SubmitObservation(ctx context.Context, obs *models.MetricObservation) error {
	if err := g.checkTenant(obs.Tenant); err != nil {
		telemetry.ObservationsRejected.WithLabelValues("tenant").Inc()
		return err
	}
	if obs.Tenant == "" && g.tenant != "" {
		obs.Tenant = g.tenant
	}

	if err := g.metrics.Record(ctx, obs); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Kind == apperrors.KindValidation {
			telemetry.ObservationsRejected.WithLabelValues(appErr.Field).Inc()
		}
		return err
	}

	telemetry.ObservationsIngested.WithLabelValues(string(obs.SubjectKind)).Inc()
	return nil
}

// SubmitRule validates tenant ownership and the condition grammar, then
// persists the rule.
func (g *Gateway) SubmitRule(ctx context.Context, rule *models.AlertRule) error {
	if err := g.checkTenant(rule.Tenant); err != nil {
		return err
	}
	if rule.Tenant == "" && g.tenant != "" {
		rule.Tenant = g.tenant
	}
	return g.alerts.CreateRule(ctx, rule)
}

func (g *Gateway) checkTenant(tenant string) error {
	if g.tenant == "" || tenant == "" || tenant == g.tenant {
		return nil
	}
	return apperrors.NewValidation("tenant", "tenant "+tenant+" is not served by this deployment")
}
