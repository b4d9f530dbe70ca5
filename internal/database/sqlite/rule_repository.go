package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const ruleColumns = `id, name, description, condition, severity, is_active, owner, tenant, created_at, updated_at`

// RuleRepository implements repositories.RuleRepository on SQLite.
type RuleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewRuleRepository creates a new RuleRepository
func NewRuleRepository(db *sqlx.DB, log *logrus.Logger) repositories.RuleRepository {
	return &RuleRepository{db: db, log: log}
}

// Create persists a new alert rule.
func (r *RuleRepository) Create(ctx context.Context, rule *models.AlertRule) error {
	query := `INSERT INTO alert_rules
		(id, name, description, condition, severity, is_active, owner, tenant, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		string(rule.Condition),
		rule.Severity,
		rule.IsActive,
		rule.Owner,
		rule.Tenant,
		now,
		now,
	)
	if err != nil {
		r.log.WithError(err).WithField("rule_id", rule.ID).Error("Failed to create alert rule")
		return fmt.Errorf("failed to create alert rule: %w", err)
	}

	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// Update rewrites a rule in place. The id never changes; alerts raised
// under earlier versions keep their rule_id.
func (r *RuleRepository) Update(ctx context.Context, rule *models.AlertRule) error {
	query := `UPDATE alert_rules
		SET name = ?, description = ?, condition = ?, severity = ?, is_active = ?, owner = ?, updated_at = ?
		WHERE id = ?`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		rule.Description,
		string(rule.Condition),
		rule.Severity,
		rule.IsActive,
		rule.Owner,
		now,
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert rule not found with ID: %s", rule.ID)
	}

	rule.UpdatedAt = now
	return nil
}

// GetByID retrieves a rule by id, or nil when it does not exist.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`

	var rule models.AlertRule
	err := r.db.GetContext(ctx, &rule, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}

	return &rule, nil
}

// List returns all rules for a tenant, newest first. An empty tenant
// returns every rule.
func (r *RuleRepository) List(ctx context.Context, tenant string) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules`
	var args []interface{}
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}
	query += ` ORDER BY created_at DESC`

	var rules []*models.AlertRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alert rules")
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	return rules, nil
}

// ListActive returns the rules eligible for evaluation.
func (r *RuleRepository) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE is_active = 1 ORDER BY created_at`

	var rules []*models.AlertRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list active alert rules: %w", err)
	}

	return rules, nil
}
