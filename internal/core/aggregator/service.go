package aggregator

import (
	"context"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/rules"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/sirupsen/logrus"
)

const recentPanelSize = 10

// Service computes dashboard summaries and time-series rollups on read.
// It owns no state; everything is recomputed from the metric and alert
// stores, so values are a best-effort snapshot.
type Service struct {
	metrics repositories.MetricRepository
	alerts  repositories.AlertRepository
	rules   repositories.RuleRepository
	cfg     config.MonitoringConfig
	log     *logrus.Logger
}

// NewService creates an aggregator.
func NewService(metricRepo repositories.MetricRepository, alertRepo repositories.AlertRepository, ruleRepo repositories.RuleRepository, cfg config.MonitoringConfig, log *logrus.Logger) *Service {
	return &Service{metrics: metricRepo, alerts: alertRepo, rules: ruleRepo, cfg: cfg, log: log}
}

// Dashboard assembles the summary view. A read that exceeds the query
// timeout degrades to a partial result with the Partial flag set instead
// of failing the whole dashboard.
func (s *Service) Dashboard(ctx context.Context, tenant string) (*models.DashboardSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	summary := &models.DashboardSummary{SystemHealth: "healthy", DataQualityScore: 100}
	now := time.Now().UTC()

	activeCount, err := s.alerts.Count(ctx, repositories.AlertFilter{
		Status: models.StatusActive,
		Tenant: tenant,
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.ActiveAlertCount = activeCount

	criticalActive, err := s.alerts.Count(ctx, repositories.AlertFilter{
		Status:   models.StatusActive,
		Severity: models.SeverityCritical,
		Tenant:   tenant,
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	switch {
	case criticalActive > 0:
		summary.SystemHealth = "critical"
	case activeCount > 0:
		summary.SystemHealth = "warning"
	}

	critical7d, err := s.alerts.Count(ctx, repositories.AlertFilter{
		Severity: models.SeverityCritical,
		Tenant:   tenant,
		Start:    now.Add(-7 * 24 * time.Hour),
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.CriticalAlerts7d = critical7d

	activeAlerts, err := s.alerts.List(ctx, repositories.AlertFilter{
		Status: models.StatusActive,
		Tenant: tenant,
		Limit:  recentPanelSize,
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.ActiveAlerts = activeAlerts

	quality, err := s.metrics.Query(ctx, repositories.MetricFilter{
		SubjectKind: models.SubjectFeature,
		Tenant:      tenant,
		Start:       now.Add(-24 * time.Hour),
		End:         now,
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.RecentQuality = tail(quality, recentPanelSize)

	performance, err := s.metrics.Query(ctx, repositories.MetricFilter{
		SubjectKind: models.SubjectService,
		Tenant:      tenant,
		Start:       now.Add(-24 * time.Hour),
		End:         now,
	})
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.RecentPerformance = tail(performance, recentPanelSize)

	score, err := s.qualityScore(ctx, quality)
	if s.degrade(summary, err) {
		return summary, nil
	}
	summary.DataQualityScore = score

	return summary, nil
}

// qualityScore is the percentage of quality observations in the window
// whose value satisfied the governing rule's threshold. Observations no
// rule governs do not count either way; with no governed observations
// the score is a clean 100.
func (s *Service) qualityScore(ctx context.Context, quality []*models.MetricObservation) (float64, error) {
	active, err := s.rules.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	var governors []*models.RuleCondition
	for _, rule := range active {
		cond, err := rule.ParsedCondition()
		if err != nil {
			continue
		}
		governors = append(governors, cond)
	}
	if len(governors) == 0 {
		return 100, nil
	}

	governed, healthy := 0, 0
	for _, obs := range quality {
		for _, cond := range governors {
			if cond.MetricName != obs.MetricName || !rules.MatchSelector(cond.SubjectSelector, obs.Subject) {
				continue
			}
			governed++
			if !rules.Compare(cond.Comparator, obs.Value, cond.Threshold) {
				healthy++
			}
			break
		}
	}
	if governed == 0 {
		return 100, nil
	}
	return 100 * float64(healthy) / float64(governed), nil
}

// TimeSeriesRequest scopes a rollup query.
type TimeSeriesRequest struct {
	MetricName  string
	Subject     string
	SubjectKind models.SubjectKind
	Tenant      string
	Start       time.Time
	End         time.Time
	Interval    time.Duration
}

// TimeSeries partitions [start, end) into fixed-width buckets and
// averages the observations falling in each half-open interval. Empty
// buckets are omitted; gap-fill belongs to the consumer. The bool result
// reports a partial read caused by the query timeout.
func (s *Service) TimeSeries(ctx context.Context, req TimeSeriesRequest) ([]*models.TimeSeriesBucket, bool, error) {
	if strings.TrimSpace(req.MetricName) == "" {
		return nil, false, apperrors.NewValidation("metric_name", "metric_name cannot be empty")
	}
	if req.Interval <= 0 {
		return nil, false, apperrors.NewValidation("interval", "interval must be a positive duration")
	}
	if !req.End.After(req.Start) {
		return nil, false, apperrors.NewValidation("end", "end must be after start")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout())
	defer cancel()

	observations, err := s.metrics.Query(ctx, repositories.MetricFilter{
		MetricName:  req.MetricName,
		Subject:     req.Subject,
		SubjectKind: req.SubjectKind,
		Tenant:      req.Tenant,
		Start:       req.Start,
		End:         req.End,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			s.log.WithField("metric", req.MetricName).Warn("Time-series query timed out, returning partial result")
			return nil, true, nil
		}
		return nil, false, err
	}

	bucketCount := int(req.End.Sub(req.Start) / req.Interval)
	if req.End.Sub(req.Start)%req.Interval != 0 {
		bucketCount++
	}

	sums := make([]float64, bucketCount)
	counts := make([]int, bucketCount)
	for _, obs := range observations {
		idx := int(obs.Timestamp.Sub(req.Start) / req.Interval)
		if idx < 0 || idx >= bucketCount {
			continue
		}
		sums[idx] += obs.Value
		counts[idx]++
	}

	var buckets []*models.TimeSeriesBucket
	for i := 0; i < bucketCount; i++ {
		if counts[i] == 0 {
			continue
		}
		buckets = append(buckets, &models.TimeSeriesBucket{
			Timestamp: req.Start.Add(time.Duration(i) * req.Interval),
			Value:     sums[i] / float64(counts[i]),
			Count:     counts[i],
		})
	}
	return buckets, false, nil
}

// degrade flags the summary partial when a read failed. Timeouts and
// store errors both degrade rather than fail; the dashboard always
// answers.
func (s *Service) degrade(summary *models.DashboardSummary, err error) bool {
	if err == nil {
		return false
	}
	summary.Partial = true
	s.log.WithError(err).Warn("Dashboard read degraded to partial result")
	return true
}

func (s *Service) queryTimeout() time.Duration {
	if s.cfg.QueryTimeout > 0 {
		return s.cfg.QueryTimeout
	}
	return 5 * time.Second
}

func tail(observations []*models.MetricObservation, n int) []*models.MetricObservation {
	if len(observations) <= n {
		return observations
	}
	return observations[len(observations)-n:]
}
