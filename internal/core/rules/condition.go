package rules

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
)

// Comparator operators supported by the condition grammar.
const (
	ComparatorGT  = ">"
	ComparatorGTE = ">="
	ComparatorLT  = "<"
	ComparatorLTE = "<="
	ComparatorEQ  = "=="
	ComparatorNEQ = "!="
)

// Aggregation reducers supported by the condition grammar.
const (
	AggregationLast        = "last"
	AggregationAvg         = "avg"
	AggregationMax         = "max"
	AggregationMin         = "min"
	AggregationCountBreach = "count_breach"
)

var validComparators = map[string]bool{
	ComparatorGT: true, ComparatorGTE: true,
	ComparatorLT: true, ComparatorLTE: true,
	ComparatorEQ: true, ComparatorNEQ: true,
}

var validAggregations = map[string]bool{
	AggregationLast: true, AggregationAvg: true,
	AggregationMax: true, AggregationMin: true,
	AggregationCountBreach: true,
}

// ParseCondition decodes and validates a raw condition payload. Validation
// failures name the offending field.
func ParseCondition(raw json.RawMessage) (*models.RuleCondition, error) {
	if len(raw) == 0 {
		return nil, apperrors.NewValidation("condition", "condition is required")
	}

	var cond models.RuleCondition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return nil, apperrors.NewValidation("condition", "condition is not valid JSON")
	}

	if err := Validate(&cond); err != nil {
		return nil, err
	}

	return &cond, nil
}

// Validate checks a decoded condition against the bounded grammar.
func Validate(cond *models.RuleCondition) error {
	if strings.TrimSpace(cond.MetricName) == "" {
		return apperrors.NewValidation("condition.metric_name", "metric_name cannot be empty")
	}
	if strings.TrimSpace(cond.SubjectSelector) == "" {
		return apperrors.NewValidation("condition.subject_selector", "subject_selector cannot be empty")
	}
	if !validComparators[cond.Comparator] {
		return apperrors.NewValidation("condition.comparator", "unknown comparator: "+cond.Comparator)
	}
	if !validAggregations[cond.Aggregation] {
		return apperrors.NewValidation("condition.aggregation", "unknown aggregation: "+cond.Aggregation)
	}
	if _, err := time.ParseDuration(cond.Window); err != nil {
		return apperrors.NewValidation("condition.window", "window is not a valid duration: "+cond.Window)
	}
	return nil
}

// WindowDuration returns the parsed evaluation window. Validate must have
// accepted the condition first.
func WindowDuration(cond *models.RuleCondition) time.Duration {
	d, err := time.ParseDuration(cond.Window)
	if err != nil {
		return 0
	}
	return d
}

// Compare applies a comparator to a value and threshold.
func Compare(comparator string, value, threshold float64) bool {
	switch comparator {
	case ComparatorGT:
		return value > threshold
	case ComparatorGTE:
		return value >= threshold
	case ComparatorLT:
		return value < threshold
	case ComparatorLTE:
		return value <= threshold
	case ComparatorEQ:
		return value == threshold
	case ComparatorNEQ:
		return value != threshold
	default:
		return false
	}
}

// MatchSelector reports whether a subject matches a selector. "*" matches
// every subject; a trailing "*" matches by prefix; anything else is exact.
func MatchSelector(selector, subject string) bool {
	if selector == "*" {
		return true
	}
	if strings.HasSuffix(selector, "*") {
		return strings.HasPrefix(subject, strings.TrimSuffix(selector, "*"))
	}
	return selector == subject
}

// Outcome is the result of reducing in-window values under a condition.
type Outcome struct {
	Reduced float64
	Breach  bool
	// Samples is the number of in-window observations considered.
	Samples int
}

// Evaluate reduces the in-window values and decides breach. Zero samples
// never breach. For count_breach the reduced value is the number of points
// individually violating comparator+threshold and the rule breaches when
// any point violates; windows with fewer than minSamples points fail
// closed to avoid false positives from sparse data.
func Evaluate(cond *models.RuleCondition, values []float64, minSamples int) Outcome {
	out := Outcome{Samples: len(values)}
	if len(values) == 0 {
		return out
	}

	switch cond.Aggregation {
	case AggregationLast:
		out.Reduced = values[len(values)-1]
	case AggregationAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		out.Reduced = sum / float64(len(values))
	case AggregationMax:
		out.Reduced = values[0]
		for _, v := range values[1:] {
			if v > out.Reduced {
				out.Reduced = v
			}
		}
	case AggregationMin:
		out.Reduced = values[0]
		for _, v := range values[1:] {
			if v < out.Reduced {
				out.Reduced = v
			}
		}
	case AggregationCountBreach:
		if minSamples > 0 && len(values) < minSamples {
			return out
		}
		var breaching int
		for _, v := range values {
			if Compare(cond.Comparator, v, cond.Threshold) {
				breaching++
			}
		}
		out.Reduced = float64(breaching)
		out.Breach = breaching > 0
		return out
	default:
		return out
	}

	out.Breach = Compare(cond.Comparator, out.Reduced, cond.Threshold)
	return out
}
