package metrics

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Notifier receives a trigger after every successful record. The evaluator
// implements this; a nil notifier disables event-driven evaluation.
type Notifier interface {
	Notify(subject, metricName string)
}

// Service is the metric store: append-only, time-indexed observation
// storage shared by quality and performance metrics.
type Service struct {
	repo     repositories.MetricRepository
	cfg      config.MonitoringConfig
	log      *logrus.Logger
	notifier Notifier
}

// NewService creates a metric store service.
func NewService(repo repositories.MetricRepository, cfg config.MonitoringConfig, log *logrus.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, log: log}
}

// SetNotifier wires the evaluation trigger. Called once during startup.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Record validates and appends an observation. A failed record is never
// acknowledged; the caller sees the error synchronously.
func (s *Service) Record(ctx context.Context, obs *models.MetricObservation) error {
	if err := s.validate(obs); err != nil {
		return err
	}

	if obs.ID == "" {
		obs.ID = uuid.New().String()
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now().UTC()
	}
	if obs.Tenant == "" {
		obs.Tenant = "default"
	}

	if err := s.repo.Insert(ctx, obs); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"subject": obs.Subject,
		"metric":  obs.MetricName,
		"value":   obs.Value,
	}).Debug("Observation recorded")

	if s.notifier != nil {
		s.notifier.Notify(obs.Subject, obs.MetricName)
	}

	return nil
}

// Query returns observations ascending by timestamp. A missing time range
// is bounded to the default window so unconstrained queries stay cheap.
func (s *Service) Query(ctx context.Context, filter repositories.MetricFilter) ([]*models.MetricObservation, error) {
	filter = s.boundFilter(filter)

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	observations, err := s.repo.Query(ctx, filter)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeout("metric query")
		}
		return nil, err
	}

	return observations, nil
}

// Count returns the number of observations matching the filter under the
// same default window bounds as Query.
func (s *Service) Count(ctx context.Context, filter repositories.MetricFilter) (int, error) {
	filter = s.boundFilter(filter)
	return s.repo.Count(ctx, filter)
}

func (s *Service) boundFilter(filter repositories.MetricFilter) repositories.MetricFilter {
	if filter.Start.IsZero() && filter.End.IsZero() {
		filter.End = time.Now().UTC()
		filter.Start = filter.End.Add(-s.defaultWindow())
	}
	return filter
}

func (s *Service) validate(obs *models.MetricObservation) error {
	if strings.TrimSpace(obs.Subject) == "" {
		return apperrors.NewValidation("subject", "subject cannot be empty")
	}
	if strings.TrimSpace(obs.MetricName) == "" {
		return apperrors.NewValidation("metric_name", "metric_name cannot be empty")
	}
	if obs.SubjectKind != models.SubjectFeature && obs.SubjectKind != models.SubjectService {
		return apperrors.NewValidation("subject_kind", "subject_kind must be feature or service")
	}
	if math.IsNaN(obs.Value) || math.IsInf(obs.Value, 0) {
		return apperrors.NewValidation("value", "value must be a finite number")
	}
	if !obs.Timestamp.IsZero() {
		skew := s.cfg.ClockSkewTolerance
		if skew <= 0 {
			skew = 5 * time.Minute
		}
		if obs.Timestamp.After(time.Now().Add(skew)) {
			return apperrors.NewValidation("timestamp", "timestamp is too far in the future")
		}
	}
	return nil
}

func (s *Service) defaultWindow() time.Duration {
	if s.cfg.DefaultQueryWindow > 0 {
		return s.cfg.DefaultQueryWindow
	}
	return 24 * time.Hour
}

func (s *Service) queryTimeout() time.Duration {
	if s.cfg.QueryTimeout > 0 {
		return s.cfg.QueryTimeout
	}
	return 5 * time.Second
}
