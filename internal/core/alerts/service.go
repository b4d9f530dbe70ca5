package alerts

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/core/rules"
	"github.com/featureops/fsmon-backend-go/internal/core/telemetry"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Events receives lifecycle notifications for live subscribers. The
// websocket hub implements this; a nil Events drops notifications.
type Events interface {
	AlertCreated(alert *models.Alert)
	AlertStatusChanged(alert *models.Alert, previous models.AlertStatus)
}

// Transitions an API caller may request. Reopening an acknowledged alert
// is reserved for the evaluator, so it is absent here.
var allowedTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.StatusActive:       {models.StatusAcknowledged, models.StatusResolved},
	models.StatusAcknowledged: {models.StatusResolved},
	models.StatusResolved:     {},
}

// Service manages the alert lifecycle and rule definitions.
type Service struct {
	alerts repositories.AlertRepository
	rules  repositories.RuleRepository
	log    *logrus.Logger
	events Events
}

// NewService creates an alert lifecycle service.
func NewService(alerts repositories.AlertRepository, ruleRepo repositories.RuleRepository, log *logrus.Logger) *Service {
	return &Service{alerts: alerts, rules: ruleRepo, log: log}
}

// SetEvents wires the live notification sink. Called once during startup.
func (s *Service) SetEvents(e Events) {
	s.events = e
}

// CreateAlert raises a manual alert. Manual alerts carry no rule_id and
// start active like any other alert.
func (s *Service) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if strings.TrimSpace(alert.Title) == "" {
		return apperrors.NewValidation("title", "title cannot be empty")
	}
	if !alert.Severity.Valid() {
		return apperrors.NewValidation("severity", "severity must be one of low, medium, high, critical")
	}

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Source == "" {
		alert.Source = "manual"
	}
	if alert.Tenant == "" {
		alert.Tenant = "default"
	}
	alert.Status = models.StatusActive

	if err := s.alerts.Create(ctx, alert); err != nil {
		return err
	}

	telemetry.AlertsCreated.WithLabelValues(string(alert.Severity), "manual").Inc()
	s.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"severity": alert.Severity,
		"source":   alert.Source,
	}).Info("Alert created")

	s.notifyCreated(alert)
	return nil
}

// CreateFromRule raises an alert on behalf of the evaluator. The caller
// is responsible for deduplication before calling.
func (s *Service) CreateFromRule(ctx context.Context, rule *models.AlertRule, title, description string, metadata json.RawMessage) (*models.Alert, error) {
	alert := &models.Alert{
		ID:          uuid.New().String(),
		RuleID:      models.NewNullString(rule.ID),
		Title:       title,
		Description: description,
		Severity:    rule.Severity,
		Source:      rule.Name,
		Status:      models.StatusActive,
		Metadata:    metadata,
		Tenant:      rule.Tenant,
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, err
	}

	telemetry.AlertsCreated.WithLabelValues(string(alert.Severity), "rule").Inc()
	s.log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"rule_id":  rule.ID,
		"severity": alert.Severity,
	}).Info("Alert raised by rule")

	s.notifyCreated(alert)
	return alert, nil
}

// GetAlert returns an alert by id.
func (s *Service) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, apperrors.NewNotFound("alert", id)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter plus the unpaged total.
func (s *Service) ListAlerts(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, int, error) {
	alerts, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.alerts.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// OpenAlertForRule returns the active or acknowledged alert under a rule,
// or nil when none is open.
func (s *Service) OpenAlertForRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	return s.alerts.GetOpenByRule(ctx, ruleID)
}

// UpdateStatus transitions an alert. The transition is compare-and-swap
// on the status the caller observed, so concurrent callers cannot both
// win: the loser gets a conflict, never a silent overwrite.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.AlertStatus, actor, notes string) (*models.Alert, error) {
	if !to.Valid() {
		return nil, apperrors.NewValidation("status", "status must be one of active, acknowledged, resolved")
	}

	alert, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	from := alert.Status
	if from == to {
		return nil, apperrors.NewConflict("alert is already " + string(to))
	}
	if !transitionAllowed(from, to) {
		return nil, apperrors.NewInvalidTransition(string(from), string(to))
	}

	ok, err := s.alerts.UpdateStatusCAS(ctx, id, from, to, actor, notes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyLostRace(ctx, id, to)
	}

	updated, err := s.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"alert_id": id,
		"from":     from,
		"to":       to,
		"actor":    actor,
	}).Info("Alert status changed")

	s.notifyStatusChanged(updated, from)
	return updated, nil
}

// Reopen flips an acknowledged alert back to active when its rule
// breaches again. Only the evaluator calls this; the transition is not
// reachable through the API.
func (s *Service) Reopen(ctx context.Context, alert *models.Alert) (bool, error) {
	ok, err := s.alerts.UpdateStatusCAS(ctx, alert.ID, models.StatusAcknowledged, models.StatusActive, "", "")
	if err != nil {
		return false, err
	}
	if !ok {
		// Someone resolved or already reopened it. Either way the
		// evaluator has nothing left to do this cycle.
		return false, nil
	}

	updated, err := s.alerts.GetByID(ctx, alert.ID)
	if err != nil {
		return true, err
	}
	if updated != nil {
		s.log.WithField("alert_id", alert.ID).Info("Alert reopened by renewed breach")
		s.notifyStatusChanged(updated, models.StatusAcknowledged)
	}
	return true, nil
}

// classifyLostRace inspects the row after a failed CAS to report the
// precise reason the transition lost.
func (s *Service) classifyLostRace(ctx context.Context, id string, to models.AlertStatus) error {
	current, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return apperrors.NewNotFound("alert", id)
	}
	if current.Status == models.StatusResolved && to != models.StatusResolved {
		return apperrors.NewInvalidTransition(string(current.Status), string(to))
	}
	return apperrors.NewConflict("alert status changed concurrently, now " + string(current.Status))
}

func transitionAllowed(from, to models.AlertStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Service) notifyCreated(alert *models.Alert) {
	if s.events != nil {
		s.events.AlertCreated(alert)
	}
}

func (s *Service) notifyStatusChanged(alert *models.Alert, previous models.AlertStatus) {
	if s.events != nil {
		s.events.AlertStatusChanged(alert, previous)
	}
}

// CreateRule validates and persists a new alert rule.
func (s *Service) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Tenant == "" {
		rule.Tenant = "default"
	}

	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"rule_id":  rule.ID,
		"name":     rule.Name,
		"severity": rule.Severity,
	}).Info("Alert rule created")
	return nil
}

// UpdateRule rewrites an existing rule. Open alerts raised under the old
// definition are untouched; only future evaluations see the change.
func (s *Service) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	if err := s.validateRule(rule); err != nil {
		return err
	}

	existing, err := s.rules.GetByID(ctx, rule.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.NewNotFound("alert rule", rule.ID)
	}
	rule.Tenant = existing.Tenant

	return s.rules.Update(ctx, rule)
}

// GetRule returns a rule by id.
func (s *Service) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperrors.NewNotFound("alert rule", id)
	}
	return rule, nil
}

// ListRules returns all rules for a tenant, newest first.
func (s *Service) ListRules(ctx context.Context, tenant string) ([]*models.AlertRule, error) {
	return s.rules.List(ctx, tenant)
}

func (s *Service) validateRule(rule *models.AlertRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return apperrors.NewValidation("name", "name cannot be empty")
	}
	if !rule.Severity.Valid() {
		return apperrors.NewValidation("severity", "severity must be one of low, medium, high, critical")
	}
	if _, err := rules.ParseCondition(rule.Condition); err != nil {
		return err
	}
	return nil
}

// ActiveCount refreshes the active-alert gauge and returns the count.
func (s *Service) ActiveCount(ctx context.Context) (int, error) {
	count, err := s.alerts.CountByStatus(ctx, models.StatusActive)
	if err != nil {
		return 0, err
	}
	telemetry.ActiveAlerts.Set(float64(count))
	return count, nil
}

// CriticalCountSince counts critical alerts created after the cutoff.
func (s *Service) CriticalCountSince(ctx context.Context, since time.Time) (int, error) {
	return s.alerts.CountBySeveritySince(ctx, models.SeverityCritical, since)
}
