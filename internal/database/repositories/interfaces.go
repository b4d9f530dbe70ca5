package repositories

import (
	"context"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
)

// MetricFilter narrows observation queries. Zero values mean "no filter";
// an empty time range is bounded by the store's default window.
type MetricFilter struct {
	Subject     string
	SubjectKind models.SubjectKind
	MetricName  string
	Tenant      string
	Start       time.Time
	End         time.Time
	Limit       int
	Offset      int
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Severity models.AlertSeverity
	Status   models.AlertStatus
	Source   string
	Tenant   string
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}

// MetricRepository defines observation data access. The store is
// append-only: there is no update or delete.
type MetricRepository interface {
	Insert(ctx context.Context, obs *models.MetricObservation) error
	Query(ctx context.Context, filter MetricFilter) ([]*models.MetricObservation, error)
	Count(ctx context.Context, filter MetricFilter) (int, error)
}

// AlertRepository defines alert data access. Alerts are never deleted;
// status changes go through the compare-and-swap update.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	Count(ctx context.Context, filter AlertFilter) (int, error)
	// GetOpenByRule returns the active or acknowledged alert raised under
	// the rule, or nil when none is open. This is the dedup lookup.
	GetOpenByRule(ctx context.Context, ruleID string) (*models.Alert, error)
	// UpdateStatusCAS transitions id from one status to another atomically.
	// It reports false when the precondition status did not match.
	UpdateStatusCAS(ctx context.Context, id string, from, to models.AlertStatus, resolvedBy, notes string) (bool, error)
	CountByStatus(ctx context.Context, status models.AlertStatus) (int, error)
	CountBySeveritySince(ctx context.Context, severity models.AlertSeverity, since time.Time) (int, error)
}

// RuleRepository defines alert rule data access.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	Update(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	List(ctx context.Context, tenant string) ([]*models.AlertRule, error)
	ListActive(ctx context.Context) ([]*models.AlertRule, error)
}
