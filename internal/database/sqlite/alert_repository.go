package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const alertColumns = `id, rule_id, title, description, severity, source, status, metadata,
	tenant, resolved_at, resolved_by, resolution_notes, created_at, updated_at`

// AlertRepository implements repositories.AlertRepository on SQLite.
type AlertRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sqlx.DB, log *logrus.Logger) repositories.AlertRepository {
	return &AlertRepository{db: db, log: log}
}

// Create persists a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `INSERT INTO alerts
		(id, rule_id, title, description, severity, source, status, metadata, tenant, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.Title,
		alert.Description,
		alert.Severity,
		alert.Source,
		alert.Status,
		nullableJSON(alert.Metadata),
		alert.Tenant,
		now,
		now,
	)
	if err != nil {
		r.log.WithError(err).WithField("alert_id", alert.ID).Error("Failed to create alert")
		return fmt.Errorf("failed to create alert: %w", err)
	}

	alert.CreatedAt = now
	alert.UpdatedAt = now
	return nil
}

// GetByID retrieves an alert by id, or nil when it does not exist.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	var alert models.Alert
	err := r.db.GetContext(ctx, &alert, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return &alert, nil
}

// List returns alerts matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter repositories.AlertFilter) ([]*models.Alert, error) {
	query, args := buildAlertQuery(`SELECT `+alertColumns+` FROM alerts`, filter)

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, filter.Offset)
	}

	var alerts []*models.Alert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alerts")
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	return alerts, nil
}

// Count returns the number of alerts matching the filter.
func (r *AlertRepository) Count(ctx context.Context, filter repositories.AlertFilter) (int, error) {
	query, args := buildAlertQuery(`SELECT COUNT(*) FROM alerts`, filter)

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	return count, nil
}

// GetOpenByRule returns the active or acknowledged alert raised under the
// rule, or nil when none is open.
func (r *AlertRepository) GetOpenByRule(ctx context.Context, ruleID string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE rule_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`

	var alert models.Alert
	err := r.db.GetContext(ctx, &alert, query, ruleID, models.StatusActive, models.StatusAcknowledged)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert for rule: %w", err)
	}

	return &alert, nil
}

// UpdateStatusCAS transitions an alert's status only if the current status
// matches the expected one. The WHERE clause on status makes concurrent
// transitions lose rather than overwrite each other.
func (r *AlertRepository) UpdateStatusCAS(ctx context.Context, id string, from, to models.AlertStatus, resolvedBy, notes string) (bool, error) {
	now := time.Now().UTC()

	var result sql.Result
	var err error
	if to == models.StatusResolved {
		query := `UPDATE alerts
			SET status = ?, updated_at = ?, resolved_at = ?, resolved_by = ?, resolution_notes = ?
			WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, query, to, now, now,
			nullableString(resolvedBy), nullableString(notes), id, from)
	} else {
		query := `UPDATE alerts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
		result, err = r.db.ExecContext(ctx, query, to, now, id, from)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update alert status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// CountByStatus returns the number of alerts in the given status.
func (r *AlertRepository) CountByStatus(ctx context.Context, status models.AlertStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts by status: %w", err)
	}
	return count, nil
}

// CountBySeveritySince counts alerts of a severity created after the cutoff,
// regardless of their current status.
func (r *AlertRepository) CountBySeveritySince(ctx context.Context, severity models.AlertSeverity, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM alerts WHERE severity = ? AND created_at >= ?`, severity, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts by severity: %w", err)
	}
	return count, nil
}

func buildAlertQuery(base string, filter repositories.AlertFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Tenant != "" {
		conditions = append(conditions, "tenant = ?")
		args = append(args, filter.Tenant)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.End.UTC())
	}

	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	return base, args
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
