package database

import (
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	"github.com/featureops/fsmon-backend-go/internal/database/sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Repositories holds all repository implementations
type Repositories struct {
	Metric repositories.MetricRepository
	Alert  repositories.AlertRepository
	Rule   repositories.RuleRepository
}

// NewRepositories creates all repositories backed by the given database.
func NewRepositories(db *sqlx.DB, log *logrus.Logger) *Repositories {
	return &Repositories{
		Metric: sqlite.NewMetricRepository(db, log),
		Alert:  sqlite.NewAlertRepository(db, log),
		Rule:   sqlite.NewRuleRepository(db, log),
	}
}
