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
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// Monitor runs rule sets against sampled rows and accumulates the results
// for one batch. It is not safe for concurrent use.
type Monitor struct {
	db         db.Querier
	batchID    string
	registry   map[string][]Rule
	thresholds map[string]Threshold
	results    []Result
	log        zerolog.Logger
}

// NewMonitor creates a monitor with the default rule registry and
// thresholds. The querier may be nil for purely in-memory checks; Persist
// and the history queries then fail.
func NewMonitor(q db.Querier, batchID string) *Monitor {
	if batchID == "" {
		batchID = "manual"
	}
	thresholds := make(map[string]Threshold)
	for _, t := range DefaultThresholds() {
		if t.Enabled {
			thresholds[t.MetricName] = t
		}
	}
	return &Monitor{
		db:         q,
		batchID:    batchID,
		registry:   DefaultRegistry(),
		thresholds: thresholds,
		log:        logging.Component("quality"),
	}
}

// BatchID returns the batch this monitor records metrics under.
func (m *Monitor) BatchID() string { return m.batchID }

// CheckTable evaluates every registered rule for the table against the
// sampled rows and accumulates the results. Tables without rules yield nil.
func (m *Monitor) CheckTable(rows []Row, table string) []Result {
	rules, ok := m.registry[table]
	if !ok {
		m.log.Warn().Str("table", table).Msg("No quality rules defined for table")
		return nil
	}

	m.log.Info().
		Str("table", table).
		Int("record_count", len(rows)).
		Msg("Running data quality checks")

	results := make([]Result, 0, len(rules))
	for _, rule := range rules {
		res := rule.Evaluate(rows, table)
		if t, ok := m.thresholds[rule.Name]; ok {
			met := t.Met(res.Value)
			res.Threshold = &t.Value
			res.ThresholdMet = &met
		}
		results = append(results, res)
		m.results = append(m.results, res)

		evt := m.log.Debug().
			Str("table", table).
			Str("metric", res.MetricName).
			Float64("value", res.Value)
		if res.ThresholdMet != nil {
			evt = evt.Bool("threshold_met", *res.ThresholdMet)
		}
		evt.Msg("Quality metric computed")
	}
	return results
}

// Results returns every result accumulated so far.
func (m *Monitor) Results() []Result {
	return m.results
}

// Persist writes one data_quality_metrics row per accumulated result.
func (m *Monitor) Persist(ctx context.Context) error {
	if len(m.results) == 0 {
		return nil
	}
	if m.db == nil {
		return fmt.Errorf("quality monitor has no database connection")
	}

	for _, res := range m.results {
		var details []byte
		if res.Details != nil {
			var err error
			if details, err = json.Marshal(res.Details); err != nil {
				return fmt.Errorf("failed to encode quality details: %w", err)
			}
		}
		_, err := m.db.Exec(ctx, `
            INSERT INTO data_quality_metrics (metric_id, table_name, column_name,
                metric_name, metric_value, threshold_value, is_threshold_met,
                batch_id, measured_at, details)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), res.TableName, res.ColumnName, res.MetricName,
			res.Value, res.Threshold, res.ThresholdMet, m.batchID,
			res.MeasuredAt, details)
		if err != nil {
			return fmt.Errorf("failed to persist quality metric %s: %w", res.MetricName, err)
		}
	}

	m.log.Info().Int("metrics", len(m.results)).Msg("Persisted quality metrics")
	return nil
}

// TypeScore aggregates metric values of one type.
type TypeScore struct {
	Average float64
	Min     float64
	Max     float64
	Count   int
}

// Summary aggregates the accumulated results of one monitor.
type Summary struct {
	TotalChecks  int
	PassedChecks int
	FailedChecks int
	SuccessRate  float64
	OverallScore float64
	ScoresByType map[MetricType]TypeScore
	BatchID      string
	MeasuredAt   time.Time
}

// Summary computes the aggregate view of all accumulated results. With no
// results it returns the zero summary.
func (m *Monitor) Summary() Summary {
	s := Summary{
		BatchID:      m.batchID,
		MeasuredAt:   time.Now().UTC(),
		ScoresByType: make(map[MetricType]TypeScore),
	}
	if len(m.results) == 0 {
		return s
	}

	var sum float64
	for _, res := range m.results {
		s.TotalChecks++
		sum += res.Value
		if res.Passed() {
			s.PassedChecks++
		} else if res.Failed() {
			s.FailedChecks++
		}

		ts, ok := s.ScoresByType[res.Type]
		if !ok {
			ts = TypeScore{Min: res.Value, Max: res.Value}
		}
		if res.Value < ts.Min {
			ts.Min = res.Value
		}
		if res.Value > ts.Max {
			ts.Max = res.Value
		}
		ts.Average += res.Value // running sum until the division below
		ts.Count++
		s.ScoresByType[res.Type] = ts
	}
	for typ, ts := range s.ScoresByType {
		ts.Average /= float64(ts.Count)
		s.ScoresByType[typ] = ts
	}

	s.SuccessRate = pct(s.PassedChecks, s.TotalChecks)
	s.OverallScore = sum / float64(s.TotalChecks)
	return s
}

// Report renders the accumulated results as a plain-text report grouped by
// table.
func (m *Monitor) Report() string {
	if len(m.results) == 0 {
		return "No quality metrics available"
	}

	s := m.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "DATA QUALITY REPORT\n")
	fmt.Fprintf(&b, "==================\n")
	fmt.Fprintf(&b, "Batch ID: %s\n", m.batchID)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "SUMMARY\n")
	fmt.Fprintf(&b, "-------\n")
	fmt.Fprintf(&b, "Total Checks: %d\n", s.TotalChecks)
	fmt.Fprintf(&b, "Passed: %d\n", s.PassedChecks)
	fmt.Fprintf(&b, "Failed: %d\n", s.FailedChecks)
	fmt.Fprintf(&b, "Success Rate: %.2f%%\n", s.SuccessRate)
	fmt.Fprintf(&b, "Overall Score: %.2f%%\n\n", s.OverallScore)
	fmt.Fprintf(&b, "DETAILED RESULTS\n")
	fmt.Fprintf(&b, "---------------\n")

	byTable := make(map[string][]Result)
	var tables []string
	for _, res := range m.results {
		if _, ok := byTable[res.TableName]; !ok {
			tables = append(tables, res.TableName)
		}
		byTable[res.TableName] = append(byTable[res.TableName], res)
	}

	for _, table := range tables {
		fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(table))
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", len(table)))
		for _, res := range byTable[table] {
			status := "INFO"
			if res.Passed() {
				status = "PASS"
			} else if res.Failed() {
				status = "FAIL"
			}
			line := fmt.Sprintf("%s %s: %.2f%%", status, res.MetricName, res.Value)
			if res.Threshold != nil {
				line += fmt.Sprintf(" (Threshold: %g%%)", *res.Threshold)
			}
			fmt.Fprintf(&b, "%s\n", line)

			keys := make([]string, 0, len(res.Details))
			for k := range res.Details {
				if k != "error" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "    %s: %v\n", k, res.Details[k])
			}
		}
	}
	return b.String()
}
