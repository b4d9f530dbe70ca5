package alerts

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*models.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*models.Alert)}
}

func (f *fakeAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now
	clone := *alert
	f.alerts[alert.ID] = &clone
	return nil
}

func (f *fakeAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[id]
	if !ok {
		return nil, nil
	}
	clone := *alert
	return &clone, nil
}

func (f *fakeAlertRepo) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Alert
	for _, a := range f.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeAlertRepo) Count(ctx context.Context, filter repositories.AlertFilter) (int, error) {
	list, _ := f.List(ctx, filter)
	return len(list), nil
}

func (f *fakeAlertRepo) GetOpenByRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alerts {
		if a.RuleID.Valid && a.RuleID.String == ruleID &&
			(a.Status == models.StatusActive || a.Status == models.StatusAcknowledged) {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeAlertRepo) UpdateStatusCAS(ctx context.Context, id string, from, to models.AlertStatus, resolvedBy, notes string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[id]
	if !ok || alert.Status != from {
		return false, nil
	}
	alert.Status = to
	alert.UpdatedAt = time.Now().UTC()
	if to == models.StatusResolved {
		alert.ResolvedAt = models.NewNullTime(time.Now().UTC())
		if resolvedBy != "" {
			alert.ResolvedBy.String = resolvedBy
			alert.ResolvedBy.Valid = true
		}
		if notes != "" {
			alert.ResolutionNotes.String = notes
			alert.ResolutionNotes.Valid = true
		}
	}
	return true, nil
}

func (f *fakeAlertRepo) CountByStatus(ctx context.Context, status models.AlertStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.alerts {
		if a.Status == status {
			count++
		}
	}
	return count, nil
}

func (f *fakeAlertRepo) CountBySeveritySince(ctx context.Context, severity models.AlertSeverity, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, a := range f.alerts {
		if a.Severity == severity && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[string]*models.AlertRule
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[string]*models.AlertRule)}
}

func (f *fakeRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *rule
	f.rules[rule.ID] = &clone
	return nil
}

func (f *fakeRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *rule
	f.rules[rule.ID] = &clone
	return nil
}

func (f *fakeRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return nil, nil
	}
	clone := *rule
	return &clone, nil
}

func (f *fakeRuleRepo) List(ctx context.Context, tenant string) ([]*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range f.rules {
		clone := *r
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRuleRepo) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlertRule
	for _, r := range f.rules {
		if r.IsActive {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

type eventRecorder struct {
	mu      sync.Mutex
	created []string
	changed []string
}

func (e *eventRecorder) AlertCreated(alert *models.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, alert.ID)
}

func (e *eventRecorder) AlertStatusChanged(alert *models.Alert, previous models.AlertStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = append(e.changed, alert.ID+":"+string(previous)+"->"+string(alert.Status))
}

func newTestService(t *testing.T) (*Service, *fakeAlertRepo, *fakeRuleRepo, *eventRecorder) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	alertRepo := newFakeAlertRepo()
	ruleRepo := newFakeRuleRepo()
	svc := NewService(alertRepo, ruleRepo, log)
	events := &eventRecorder{}
	svc.SetEvents(events)
	return svc, alertRepo, ruleRepo, events
}

func validCondition() json.RawMessage {
	return json.RawMessage(`{"metric_name":"null_rate","subject_selector":"*","comparator":">","threshold":0.1,"window":"15m","aggregation":"avg"}`)
}

func TestCreateAlertValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.CreateAlert(context.Background(), &models.Alert{Severity: models.SeverityHigh})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	err = svc.CreateAlert(context.Background(), &models.Alert{Title: "disk full", Severity: "urgent"})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestCreateAlertDefaults(t *testing.T) {
	svc, _, _, events := newTestService(t)

	alert := &models.Alert{Title: "disk full", Severity: models.SeverityHigh}
	require.NoError(t, svc.CreateAlert(context.Background(), alert))

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.Equal(t, "manual", alert.Source)
	assert.False(t, alert.RuleID.Valid, "manual alerts carry no rule id")
	assert.Equal(t, []string{alert.ID}, events.created)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	alert := &models.Alert{Title: "latency spike", Severity: models.SeverityMedium}
	require.NoError(t, svc.CreateAlert(ctx, alert))

	updated, err := svc.UpdateStatus(ctx, alert.ID, models.StatusAcknowledged, "oncall", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAcknowledged, updated.Status)

	updated, err = svc.UpdateStatus(ctx, alert.ID, models.StatusResolved, "oncall", "deployed fix")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, updated.Status)
	assert.Equal(t, "oncall", updated.ResolvedBy.String)
	assert.Equal(t, "deployed fix", updated.ResolutionNotes.String)
}

func TestResolvedIsTerminal(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	alert := &models.Alert{Title: "latency spike", Severity: models.SeverityMedium}
	require.NoError(t, svc.CreateAlert(ctx, alert))
	_, err := svc.UpdateStatus(ctx, alert.ID, models.StatusResolved, "oncall", "")
	require.NoError(t, err)

	for _, to := range []models.AlertStatus{models.StatusActive, models.StatusAcknowledged} {
		_, err = svc.UpdateStatus(ctx, alert.ID, to, "oncall", "")
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition),
			"resolved -> %s must be an invalid transition", to)
	}
}

func TestUpdateStatusSameStatusConflicts(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	alert := &models.Alert{Title: "latency spike", Severity: models.SeverityMedium}
	require.NoError(t, svc.CreateAlert(ctx, alert))

	_, err := svc.UpdateStatus(ctx, alert.ID, models.StatusActive, "oncall", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestUpdateStatusNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.UpdateStatus(context.Background(), "missing", models.StatusResolved, "", "")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestConcurrentResolveOneWins(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	alert := &models.Alert{Title: "latency spike", Severity: models.SeverityMedium}
	require.NoError(t, svc.CreateAlert(ctx, alert))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(ctx, alert.ID, models.StatusResolved, "oncall", "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t,
				apperrors.IsKind(err, apperrors.KindConflict) || apperrors.IsKind(err, apperrors.KindInvalidTransition),
				"loser must see a conflict or invalid transition, got %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller may resolve the alert")
}

func TestReopenAcknowledgedAlert(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	alert := &models.Alert{Title: "latency spike", Severity: models.SeverityMedium}
	require.NoError(t, svc.CreateAlert(ctx, alert))
	_, err := svc.UpdateStatus(ctx, alert.ID, models.StatusAcknowledged, "oncall", "")
	require.NoError(t, err)

	current, err := svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)

	reopened, err := svc.Reopen(ctx, current)
	require.NoError(t, err)
	assert.True(t, reopened)

	current, err = svc.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, current.Status)
	assert.Contains(t, events.changed, alert.ID+":acknowledged->active")

	// A second reopen is a no-op: the alert is already active.
	reopened, err = svc.Reopen(ctx, current)
	require.NoError(t, err)
	assert.False(t, reopened)
}

func TestCreateRuleValidatesCondition(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	rule := &models.AlertRule{
		Name:      "high null rate",
		Severity:  models.SeverityHigh,
		IsActive:  true,
		Condition: json.RawMessage(`{"metric_name":"null_rate","subject_selector":"*","comparator":"~","threshold":0.1,"window":"15m","aggregation":"avg"}`),
	}
	err := svc.CreateRule(ctx, rule)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	rule.Condition = validCondition()
	require.NoError(t, svc.CreateRule(ctx, rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "default", rule.Tenant)
}

func TestUpdateRuleNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	rule := &models.AlertRule{
		ID:        "missing",
		Name:      "high null rate",
		Severity:  models.SeverityHigh,
		Condition: validCondition(),
	}
	err := svc.UpdateRule(context.Background(), rule)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
