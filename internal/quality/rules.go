//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package quality computes per-column data quality metrics, evaluates them
// against thresholds, persists the results, and watches recent history for
// score drops.
package quality

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MetricType classifies quality metrics.
type MetricType string

const (
	TypeCompleteness MetricType = "completeness"
	TypeAccuracy     MetricType = "accuracy"
	TypeConsistency  MetricType = "consistency"
	TypeValidity     MetricType = "validity"
	TypeUniqueness   MetricType = "uniqueness"
	TypeTimeliness   MetricType = "timeliness"
	TypeIntegrity    MetricType = "integrity"
)

// Row is one sampled record, keyed by column name. A missing key and an
// explicit nil both count as null.
type Row = map[string]any

// Result is the outcome of one rule evaluation. ThresholdMet is nil when no
// threshold applies to the metric.
type Result struct {
	MetricName   string
	Type         MetricType
	Value        float64
	Threshold    *float64
	ThresholdMet *bool
	TableName    string
	ColumnName   string
	MeasuredAt   time.Time
	Details      map[string]any
}

// Passed reports whether the result had a threshold and met it.
func (r Result) Passed() bool {
	return r.ThresholdMet != nil && *r.ThresholdMet
}

// Failed reports whether the result had a threshold and missed it.
func (r Result) Failed() bool {
	return r.ThresholdMet != nil && !*r.ThresholdMet
}

// Rule is a named quality metric bound to one column: a function plus the
// metadata needed to record its result.
type Rule struct {
	Name   string
	Type   MetricType
	Column string

	eval func(rows []Row, column string) (float64, map[string]any)
}

// Evaluate runs the rule against sampled rows. An empty sample scores 0.
func (r Rule) Evaluate(rows []Row, table string) Result {
	res := Result{
		MetricName: r.Name,
		Type:       r.Type,
		TableName:  table,
		ColumnName: r.Column,
		MeasuredAt: time.Now().UTC(),
	}
	if len(rows) == 0 || r.Column == "" {
		return res
	}
	res.Value, res.Details = r.eval(rows, r.Column)
	return res
}

// CompletenessRule measures the fraction of non-null, non-blank values.
func CompletenessRule(name, column string) Rule {
	return Rule{
		Name:   name,
		Type:   TypeCompleteness,
		Column: column,
		eval: func(rows []Row, col string) (float64, map[string]any) {
			nonNull := 0
			for _, row := range rows {
				if v, ok := row[col]; ok && !isBlank(v) {
					nonNull++
				}
			}
			return pct(nonNull, len(rows)), map[string]any{
				"total_records":    len(rows),
				"non_null_records": nonNull,
				"null_records":     len(rows) - nonNull,
			}
		},
	}
}

// UniquenessRule measures distinct over total for non-null values. With no
// non-null values the column is vacuously unique and scores 100.
func UniquenessRule(name, column string) Rule {
	return Rule{
		Name:   name,
		Type:   TypeUniqueness,
		Column: column,
		eval: func(rows []Row, col string) (float64, map[string]any) {
			seen := make(map[string]struct{})
			total := 0
			for _, row := range rows {
				v, ok := row[col]
				if !ok || v == nil {
					continue
				}
				total++
				seen[stringify(v)] = struct{}{}
			}
			details := map[string]any{
				"total_values":     total,
				"unique_values":    len(seen),
				"duplicate_values": total - len(seen),
			}
			if total == 0 {
				return 100.0, details
			}
			return pct(len(seen), total), details
		},
	}
}

// ValidityRule measures the fraction of values satisfying a predicate. The
// predicate receives raw values including nil.
func ValidityRule(name, column string, valid func(v any) bool) Rule {
	return Rule{
		Name:   name,
		Type:   TypeValidity,
		Column: column,
		eval: func(rows []Row, col string) (float64, map[string]any) {
			passed := 0
			for _, row := range rows {
				if valid(row[col]) {
					passed++
				}
			}
			return pct(passed, len(rows)), map[string]any{
				"total_records":   len(rows),
				"valid_records":   passed,
				"invalid_records": len(rows) - passed,
			}
		},
	}
}

// NumericRangeRule measures the fraction of numeric values inside [min, max].
// Nil bounds are open. Scores 0 when the sample has no numeric values.
func NumericRangeRule(name, column string, min, max *float64) Rule {
	return Rule{
		Name:   name,
		Type:   TypeValidity,
		Column: column,
		eval: func(rows []Row, col string) (float64, map[string]any) {
			var values []float64
			for _, row := range rows {
				if v, ok := row[col]; ok && v != nil {
					if f, ok := toFloat(v); ok {
						values = append(values, f)
					}
				}
			}
			if len(values) == 0 {
				return 0, map[string]any{"error": "no numeric values found"}
			}
			inRange := 0
			for _, f := range values {
				if (min == nil || f >= *min) && (max == nil || f <= *max) {
					inRange++
				}
			}
			details := map[string]any{
				"total_values":        len(values),
				"values_in_range":     inRange,
				"values_out_of_range": len(values) - inRange,
			}
			if min != nil {
				details["min_value"] = *min
			}
			if max != nil {
				details["max_value"] = *max
			}
			return pct(inRange, len(values)), details
		},
	}
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	return strings.TrimSpace(stringify(v)) == ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case decimal.Decimal:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// toFloat coerces the value types that reach quality checks: native Go
// numerics from in-memory samples, pgtype.Numeric and decimals from database
// samples, and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case decimal.Decimal:
		return t.InexactFloat64(), true
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
