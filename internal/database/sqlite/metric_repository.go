package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// MetricRepository implements repositories.MetricRepository on SQLite.
type MetricRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewMetricRepository creates a new MetricRepository
func NewMetricRepository(db *sqlx.DB, log *logrus.Logger) repositories.MetricRepository {
	return &MetricRepository{db: db, log: log}
}

// Insert appends an observation. Observations are immutable once stored.
func (r *MetricRepository) Insert(ctx context.Context, obs *models.MetricObservation) error {
	query := `INSERT INTO metric_observations
		(id, subject, subject_kind, metric_name, value, unit, labels, tenant, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		obs.ID,
		obs.Subject,
		obs.SubjectKind,
		obs.MetricName,
		obs.Value,
		obs.Unit,
		nullableJSON(obs.Labels),
		obs.Tenant,
		obs.Timestamp.UTC(),
		now,
	)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"subject": obs.Subject,
			"metric":  obs.MetricName,
		}).Error("Failed to insert observation")
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	obs.CreatedAt = now
	return nil
}

// Query returns observations matching the filter, ascending by timestamp.
func (r *MetricRepository) Query(ctx context.Context, filter repositories.MetricFilter) ([]*models.MetricObservation, error) {
	query, args := buildMetricQuery(
		`SELECT id, subject, subject_kind, metric_name, value, unit, labels, tenant, timestamp, created_at
		 FROM metric_observations`, filter)

	query += " ORDER BY timestamp ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	var observations []*models.MetricObservation
	if err := r.db.SelectContext(ctx, &observations, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to query observations")
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}

	return observations, nil
}

// Count returns the number of observations matching the filter.
func (r *MetricRepository) Count(ctx context.Context, filter repositories.MetricFilter) (int, error) {
	query, args := buildMetricQuery(`SELECT COUNT(*) FROM metric_observations`, filter)

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}

	return count, nil
}

func buildMetricQuery(base string, filter repositories.MetricFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Subject != "" {
		conditions = append(conditions, "subject = ?")
		args = append(args, filter.Subject)
	}
	if filter.SubjectKind != "" {
		conditions = append(conditions, "subject_kind = ?")
		args = append(args, filter.SubjectKind)
	}
	if filter.MetricName != "" {
		conditions = append(conditions, "metric_name = ?")
		args = append(args, filter.MetricName)
	}
	if filter.Tenant != "" {
		conditions = append(conditions, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.End.UTC())
	}

	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	return base, args
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
