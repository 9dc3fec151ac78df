//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package quality

import (
	"strings"
	"time"
)

// Threshold is a pass criterion for one metric.
type Threshold struct {
	MetricName string
	Type       MetricType
	Value      float64
	Operator   string // ">=", "<=", "==", "!="
	Severity   string // ERROR, WARNING, INFO
	Enabled    bool
}

// Met evaluates the metric value against the threshold. Equality operators
// compare within 0.01 to absorb float noise.
func (t Threshold) Met(value float64) bool {
	switch t.Operator {
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return abs(value-t.Value) < 0.01
	case "!=":
		return abs(value-t.Value) >= 0.01
	default:
		return true
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func gte(name string, typ MetricType, value float64) Threshold {
	return Threshold{
		MetricName: name,
		Type:       typ,
		Value:      value,
		Operator:   ">=",
		Severity:   "ERROR",
		Enabled:    true,
	}
}

// DefaultThresholds returns the pass criteria for the built-in rule set.
func DefaultThresholds() []Threshold {
	return []Threshold{
		gte("invoice_completeness", TypeCompleteness, 95.0),
		gte("product_completeness", TypeCompleteness, 95.0),
		gte("customer_completeness", TypeCompleteness, 90.0),
		gte("transaction_uniqueness", TypeUniqueness, 99.0),
		gte("quantity_range", TypeValidity, 95.0),
		gte("price_range", TypeValidity, 98.0),
		gte("date_validity", TypeValidity, 100.0),
		gte("customer_id_completeness", TypeCompleteness, 90.0),
		gte("country_completeness", TypeCompleteness, 95.0),
		gte("customer_id_uniqueness", TypeUniqueness, 100.0),
		gte("stock_code_completeness", TypeCompleteness, 100.0),
		gte("stock_code_uniqueness", TypeUniqueness, 100.0),
		gte("description_validity", TypeValidity, 90.0),
	}
}

// DefaultRegistry returns the fixed per-table rule sets for the warehouse
// core tables.
func DefaultRegistry() map[string][]Rule {
	return map[string][]Rule{
		"fact_sales": {
			CompletenessRule("invoice_completeness", "invoice_no"),
			CompletenessRule("product_completeness", "product_key"),
			CompletenessRule("customer_completeness", "customer_key"),
			UniquenessRule("transaction_uniqueness", "fact_sales_key"),
			NumericRangeRule("quantity_range", "quantity", f(-1000), f(10000)),
			NumericRangeRule("price_range", "unit_price", f(0), f(1000)),
			ValidityRule("date_validity", "transaction_datetime", ValidDate),
		},
		"dim_customer": {
			CompletenessRule("customer_id_completeness", "customer_id"),
			CompletenessRule("country_completeness", "country"),
			UniquenessRule("customer_id_uniqueness", "customer_id"),
		},
		"dim_product": {
			CompletenessRule("stock_code_completeness", "stock_code"),
			UniquenessRule("stock_code_uniqueness", "stock_code"),
			ValidityRule("description_validity", "description", ValidDescription),
		},
	}
}

func f(v float64) *float64 { return &v }

// ValidDate accepts time values and strings in the warehouse timestamp
// format.
func ValidDate(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return !t.IsZero()
	case *time.Time:
		return t != nil && !t.IsZero()
	case string:
		_, err := time.Parse("2006-01-02 15:04:05", t)
		return err == nil
	default:
		return false
	}
}

// ValidDescription accepts descriptions with at least 3 meaningful
// characters.
func ValidDescription(v any) bool {
	if v == nil {
		return false
	}
	return len(strings.TrimSpace(stringify(v))) >= 3
}
