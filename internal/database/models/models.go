package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// AlertSeverity represents the severity level of an alert or rule.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Valid reports whether the severity is one of the known levels.
func (s AlertSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertStatus represents the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive       AlertStatus = "active"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
)

// Valid reports whether the status is one of the known states.
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// NullString is a nullable string column that serializes as a bare value
// or JSON null instead of the database/sql envelope.
type NullString struct {
	sql.NullString
}

// NewNullString returns a NullString that is NULL for the empty string.
func NewNullString(s string) NullString {
	return NullString{sql.NullString{String: s, Valid: s != ""}}
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.String, n.Valid = "", false
		return nil
	}
	if err := json.Unmarshal(data, &n.String); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// NullTime is a nullable timestamp column with the same wire shape as
// NullString.
type NullTime struct {
	sql.NullTime
}

// NewNullTime returns a NullTime that is NULL for the zero time.
func NewNullTime(t time.Time) NullTime {
	return NullTime{sql.NullTime{Time: t, Valid: !t.IsZero()}}
}

func (n NullTime) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time)
}

func (n *NullTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	if err := json.Unmarshal(data, &n.Time); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// SubjectKind distinguishes feature-scoped quality observations from
// service-scoped performance observations. Both share one storage.
type SubjectKind string

const (
	SubjectFeature SubjectKind = "feature"
	SubjectService SubjectKind = "service"
)

// MetricObservation is an immutable point-in-time measurement about a
// subject. Corrections are new observations, never overwrites.
type MetricObservation struct {
	ID          string          `json:"id" db:"id"`
	Subject     string          `json:"subject" db:"subject"`
	SubjectKind SubjectKind     `json:"subject_kind" db:"subject_kind"`
	MetricName  string          `json:"metric_name" db:"metric_name"`
	Value       float64         `json:"value" db:"value"`
	Unit        NullString      `json:"unit" db:"unit"`
	Labels      json.RawMessage `json:"labels,omitempty" db:"labels"`
	Tenant      string          `json:"tenant" db:"tenant"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// LabelMap decodes the raw labels payload, returning nil when absent.
func (o *MetricObservation) LabelMap() map[string]string {
	if len(o.Labels) == 0 {
		return nil
	}
	var labels map[string]string
	if err := json.Unmarshal(o.Labels, &labels); err != nil {
		return nil
	}
	return labels
}

// RuleCondition is the bounded predicate grammar an alert rule evaluates.
type RuleCondition struct {
	MetricName      string  `json:"metric_name"`
	SubjectSelector string  `json:"subject_selector"`
	Comparator      string  `json:"comparator"`
	Threshold       float64 `json:"threshold"`
	Window          string  `json:"window"`
	Aggregation     string  `json:"aggregation"`
}

// AlertRule is a user-defined predicate evaluated against the metric store.
// The id is immutable; updates bump updated_at and leave historical alerts
// pointing at the rule they were raised under.
type AlertRule struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Condition   json.RawMessage `json:"condition" db:"condition"`
	Severity    AlertSeverity   `json:"severity" db:"severity"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	Owner       NullString      `json:"owner" db:"owner"`
	Tenant      string          `json:"tenant" db:"tenant"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ParsedCondition decodes the stored condition payload.
func (r *AlertRule) ParsedCondition() (*RuleCondition, error) {
	var cond RuleCondition
	if err := json.Unmarshal(r.Condition, &cond); err != nil {
		return nil, err
	}
	return &cond, nil
}

// Alert is a raised incident. Rule-driven alerts carry the rule id they
// were raised under; manual alerts have a NULL rule id. Alerts are never
// deleted; resolved is terminal.
type Alert struct {
	ID              string          `json:"id" db:"id"`
	RuleID          NullString      `json:"rule_id" db:"rule_id"`
	Title           string          `json:"title" db:"title"`
	Description     string          `json:"description" db:"description"`
	Severity        AlertSeverity   `json:"severity" db:"severity"`
	Source          string          `json:"source" db:"source"`
	Status          AlertStatus     `json:"status" db:"status"`
	Metadata        json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	Tenant          string          `json:"tenant" db:"tenant"`
	ResolvedAt      NullTime        `json:"resolved_at" db:"resolved_at"`
	ResolvedBy      NullString      `json:"resolved_by" db:"resolved_by"`
	ResolutionNotes NullString      `json:"resolution_notes" db:"resolution_notes"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// DashboardSummary is a derived, non-persistent aggregate recomputed on
// read from the metric and alert stores.
type DashboardSummary struct {
	DataQualityScore   float64              `json:"data_quality_score"`
	SystemHealth       string               `json:"system_health"`
	ActiveAlertCount   int                  `json:"active_alert_count"`
	CriticalAlerts7d   int                  `json:"critical_alerts_7d"`
	RecentQuality      []*MetricObservation `json:"recent_quality_metrics"`
	RecentPerformance  []*MetricObservation `json:"recent_performance_metrics"`
	ActiveAlerts       []*Alert             `json:"active_alerts"`
	Partial            bool                 `json:"partial"`
}

// TimeSeriesBucket is one fixed-width interval of a bucketed series. Empty
// buckets are omitted from results; gap-fill is the consumer's concern.
type TimeSeriesBucket struct {
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Count     int               `json:"count"`
	Labels    map[string]string `json:"labels,omitempty"`
}
