package aggregator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetricRepo struct {
	observations []*models.MetricObservation
	err          error
}

func (s *stubMetricRepo) Insert(ctx context.Context, obs *models.MetricObservation) error {
	s.observations = append(s.observations, obs)
	return nil
}

func (s *stubMetricRepo) Query(ctx context.Context, filter repositories.MetricFilter) ([]*models.MetricObservation, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.MetricObservation
	for _, obs := range s.observations {
		if filter.MetricName != "" && obs.MetricName != filter.MetricName {
			continue
		}
		if filter.Subject != "" && obs.Subject != filter.Subject {
			continue
		}
		if filter.SubjectKind != "" && obs.SubjectKind != filter.SubjectKind {
			continue
		}
		if !filter.Start.IsZero() && obs.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && !obs.Timestamp.Before(filter.End) {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (s *stubMetricRepo) Count(ctx context.Context, filter repositories.MetricFilter) (int, error) {
	list, err := s.Query(ctx, filter)
	return len(list), err
}

type stubAlertRepo struct {
	alerts []*models.Alert
	err    error
}

func (s *stubAlertRepo) Create(ctx context.Context, alert *models.Alert) error { return nil }

func (s *stubAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	return nil, nil
}

func (s *stubAlertRepo) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Alert
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if !filter.Start.IsZero() && a.CreatedAt.Before(filter.Start) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAlertRepo) Count(ctx context.Context, filter repositories.AlertFilter) (int, error) {
	list, err := s.List(ctx, filter)
	return len(list), err
}

func (s *stubAlertRepo) GetOpenByRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	return nil, nil
}

func (s *stubAlertRepo) UpdateStatusCAS(ctx context.Context, id string, from, to models.AlertStatus, resolvedBy, notes string) (bool, error) {
	return false, nil
}

func (s *stubAlertRepo) CountByStatus(ctx context.Context, status models.AlertStatus) (int, error) {
	return s.Count(ctx, repositories.AlertFilter{Status: status})
}

func (s *stubAlertRepo) CountBySeveritySince(ctx context.Context, severity models.AlertSeverity, since time.Time) (int, error) {
	return s.Count(ctx, repositories.AlertFilter{Severity: severity, Start: since})
}

type stubRuleRepo struct {
	rules []*models.AlertRule
}

func (s *stubRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error { return nil }
func (s *stubRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error { return nil }

func (s *stubRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	return nil, nil
}

func (s *stubRuleRepo) List(ctx context.Context, tenant string) ([]*models.AlertRule, error) {
	return s.rules, nil
}

func (s *stubRuleRepo) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	var out []*models.AlertRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestAggregator(metrics *stubMetricRepo, alerts *stubAlertRepo, rules *stubRuleRepo) *Service {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	cfg := config.MonitoringConfig{QueryTimeout: 5 * time.Second}
	return NewService(metrics, alerts, rules, cfg, log)
}

func observation(subject string, kind models.SubjectKind, metric string, value float64, ts time.Time) *models.MetricObservation {
	return &models.MetricObservation{
		ID:          uuid.New().String(),
		Subject:     subject,
		SubjectKind: kind,
		MetricName:  metric,
		Value:       value,
		Tenant:      "default",
		Timestamp:   ts,
	}
}

func TestTimeSeriesBucketing(t *testing.T) {
	t0 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	metrics := &stubMetricRepo{observations: []*models.MetricObservation{
		observation("inference-api", models.SubjectService, "latency_ms", 50, t0.Add(10*time.Minute)),
		observation("inference-api", models.SubjectService, "latency_ms", 150, t0.Add(70*time.Minute)),
	}}
	svc := newTestAggregator(metrics, &stubAlertRepo{}, &stubRuleRepo{})

	buckets, partial, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{
		MetricName: "latency_ms",
		Start:      t0,
		End:        t0.Add(4 * time.Hour),
		Interval:   time.Hour,
	})
	require.NoError(t, err)
	assert.False(t, partial)

	// Four hour-wide buckets span the range; the two empty ones are omitted.
	require.Len(t, buckets, 2)
	assert.Equal(t, t0, buckets[0].Timestamp)
	assert.Equal(t, 50.0, buckets[0].Value)
	assert.Equal(t, t0.Add(time.Hour), buckets[1].Timestamp)
	assert.Equal(t, 150.0, buckets[1].Value)
}

func TestTimeSeriesHalfOpenBoundary(t *testing.T) {
	t0 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	metrics := &stubMetricRepo{observations: []*models.MetricObservation{
		observation("inference-api", models.SubjectService, "latency_ms", 10, t0),
		observation("inference-api", models.SubjectService, "latency_ms", 99, t0.Add(time.Hour)),
	}}
	svc := newTestAggregator(metrics, &stubAlertRepo{}, &stubRuleRepo{})

	buckets, _, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{
		MetricName: "latency_ms",
		Start:      t0,
		End:        t0.Add(time.Hour),
		Interval:   time.Hour,
	})
	require.NoError(t, err)

	// An observation exactly at end falls outside [start, end).
	require.Len(t, buckets, 1)
	assert.Equal(t, 10.0, buckets[0].Value)
}

func TestTimeSeriesAveragesWithinBucket(t *testing.T) {
	t0 := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	metrics := &stubMetricRepo{observations: []*models.MetricObservation{
		observation("inference-api", models.SubjectService, "latency_ms", 100, t0.Add(5*time.Minute)),
		observation("inference-api", models.SubjectService, "latency_ms", 200, t0.Add(25*time.Minute)),
	}}
	svc := newTestAggregator(metrics, &stubAlertRepo{}, &stubRuleRepo{})

	buckets, _, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{
		MetricName: "latency_ms",
		Start:      t0,
		End:        t0.Add(time.Hour),
		Interval:   time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 150.0, buckets[0].Value)
	assert.Equal(t, 2, buckets[0].Count)
}

func TestTimeSeriesValidation(t *testing.T) {
	svc := newTestAggregator(&stubMetricRepo{}, &stubAlertRepo{}, &stubRuleRepo{})
	t0 := time.Now()

	tests := []struct {
		name string
		req  TimeSeriesRequest
	}{
		{"empty metric", TimeSeriesRequest{Start: t0, End: t0.Add(time.Hour), Interval: time.Hour}},
		{"zero interval", TimeSeriesRequest{MetricName: "latency_ms", Start: t0, End: t0.Add(time.Hour)}},
		{"inverted range", TimeSeriesRequest{MetricName: "latency_ms", Start: t0, End: t0.Add(-time.Hour), Interval: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.TimeSeries(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		})
	}
}

func TestDashboardAlertCounts(t *testing.T) {
	now := time.Now().UTC()
	alertRepo := &stubAlertRepo{alerts: []*models.Alert{
		{ID: "1", Status: models.StatusActive, Severity: models.SeverityHigh, CreatedAt: now},
		{ID: "2", Status: models.StatusActive, Severity: models.SeverityLow, CreatedAt: now},
		{ID: "3", Status: models.StatusResolved, Severity: models.SeverityCritical, CreatedAt: now.Add(-2 * 24 * time.Hour)},
		{ID: "4", Status: models.StatusResolved, Severity: models.SeverityCritical, CreatedAt: now.Add(-10 * 24 * time.Hour)},
	}}
	svc := newTestAggregator(&stubMetricRepo{}, alertRepo, &stubRuleRepo{})

	summary, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ActiveAlertCount)
	assert.Equal(t, "warning", summary.SystemHealth)
	// The resolved critical from two days ago still counts toward the
	// trailing week; the ten-day-old one does not.
	assert.Equal(t, 1, summary.CriticalAlerts7d)
	assert.False(t, summary.Partial)

	// active_alert_count must agree with a status=active listing.
	listed, err := alertRepo.Count(context.Background(), repositories.AlertFilter{Status: models.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, listed, summary.ActiveAlertCount)
}

func TestDashboardSystemHealth(t *testing.T) {
	now := time.Now().UTC()

	t.Run("healthy with no active alerts", func(t *testing.T) {
		svc := newTestAggregator(&stubMetricRepo{}, &stubAlertRepo{}, &stubRuleRepo{})
		summary, err := svc.Dashboard(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "healthy", summary.SystemHealth)
		assert.Equal(t, 100.0, summary.DataQualityScore)
	})

	t.Run("critical when an active critical exists", func(t *testing.T) {
		alertRepo := &stubAlertRepo{alerts: []*models.Alert{
			{ID: "1", Status: models.StatusActive, Severity: models.SeverityCritical, CreatedAt: now},
		}}
		svc := newTestAggregator(&stubMetricRepo{}, alertRepo, &stubRuleRepo{})
		summary, err := svc.Dashboard(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, "critical", summary.SystemHealth)
	})
}

func TestDashboardQualityScore(t *testing.T) {
	now := time.Now().UTC()
	metrics := &stubMetricRepo{observations: []*models.MetricObservation{
		observation("user_age", models.SubjectFeature, "null_rate", 0.05, now.Add(-time.Hour)),
		observation("user_age", models.SubjectFeature, "null_rate", 0.05, now.Add(-2*time.Hour)),
		observation("user_age", models.SubjectFeature, "null_rate", 0.50, now.Add(-3*time.Hour)),
		observation("user_age", models.SubjectFeature, "null_rate", 0.50, now.Add(-4*time.Hour)),
		// Ungoverned metric; excluded from the score either way.
		observation("user_age", models.SubjectFeature, "freshness_min", 999, now.Add(-time.Hour)),
	}}
	rules := &stubRuleRepo{rules: []*models.AlertRule{{
		ID:       "r1",
		Name:     "high null rate",
		Severity: models.SeverityHigh,
		IsActive: true,
		Condition: json.RawMessage(
			`{"metric_name":"null_rate","subject_selector":"*","comparator":">","threshold":0.1,"window":"15m","aggregation":"avg"}`),
	}}}
	svc := newTestAggregator(metrics, &stubAlertRepo{}, rules)

	summary, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, summary.DataQualityScore, 1e-9)
}

func TestDashboardDegradesToPartial(t *testing.T) {
	alertRepo := &stubAlertRepo{err: context.DeadlineExceeded}
	svc := newTestAggregator(&stubMetricRepo{}, alertRepo, &stubRuleRepo{})

	summary, err := svc.Dashboard(context.Background(), "")
	require.NoError(t, err, "a degraded dashboard must not surface a hard failure")
	assert.True(t, summary.Partial)
}
