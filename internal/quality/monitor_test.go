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
	"testing"
	"time"
)

// recordingSink captures alerts for assertions.
type recordingSink struct {
	alerts []Alert
}

func (s *recordingSink) Send(a Alert) {
	s.alerts = append(s.alerts, a)
}

func factRow(invoiceNo int, customerKey any) Row {
	return Row{
		"invoice_no":           invoiceNo,
		"product_key":          int64(1),
		"customer_key":         customerKey,
		"quantity":             2,
		"unit_price":           3.50,
		"transaction_datetime": time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC),
	}
}

func TestCheckTableHealthyBatch(t *testing.T) {
	m := NewMonitor(nil, "batch_1")

	rows := make([]Row, 0, 50)
	for i := 0; i < 50; i++ {
		rows = append(rows, factRow(536365+i, int64(100+i)))
	}
	results := m.CheckTable(rows, "fact_sales")

	if len(results) != 7 {
		t.Fatalf("Expected 7 results for fact_sales, got %d", len(results))
	}
	for _, res := range results {
		if res.Failed() {
			t.Errorf("Expected %s to pass on a healthy batch, got %.2f (threshold %v)",
				res.MetricName, res.Value, *res.Threshold)
		}
	}

	s := m.Summary()
	if s.TotalChecks != 7 || s.PassedChecks != 7 || s.FailedChecks != 0 {
		t.Errorf("Expected 7/7/0 checks, got %d/%d/%d",
			s.TotalChecks, s.PassedChecks, s.FailedChecks)
	}
	if s.SuccessRate != 100 {
		t.Errorf("Expected success rate 100, got %.2f", s.SuccessRate)
	}
	if s.OverallScore < 99.99 {
		t.Errorf("Expected overall score near 100, got %.2f", s.OverallScore)
	}
}

func TestCheckTableBlankCustomers(t *testing.T) {
	m := NewMonitor(nil, "batch_blank")

	// 6 of 50 records (12%) resolved to the guest customer, sampled with a
	// null customer_key.
	rows := make([]Row, 0, 50)
	for i := 0; i < 50; i++ {
		var key any = int64(100 + i)
		if i < 6 {
			key = nil
		}
		rows = append(rows, factRow(536365+i, key))
	}
	m.CheckTable(rows, "fact_sales")

	var completeness *Result
	results := m.Results()
	for i := range results {
		if results[i].MetricName == "customer_completeness" {
			completeness = &results[i]
		}
	}
	if completeness == nil {
		t.Fatal("Expected a customer_completeness result")
	}
	if !almostEqual(completeness.Value, 88) {
		t.Errorf("Expected customer_completeness 88.00, got %.2f", completeness.Value)
	}
	if !completeness.Failed() {
		t.Errorf("Expected customer_completeness below the 90 threshold to fail")
	}

	sink := &recordingSink{}
	am := NewAlertManager(sink)
	am.CheckAndAlert(m.Summary(), "fact_sales")

	if len(sink.alerts) != 1 {
		t.Fatalf("Expected 1 alert for the failed check, got %d", len(sink.alerts))
	}
	if sink.alerts[0].Level != AlertWarning {
		t.Errorf("Expected WARNING alert, got %s", sink.alerts[0].Level)
	}
	if sink.alerts[0].Details["failed_checks"] != 1 {
		t.Errorf("Expected 1 failed check in alert details, got %v",
			sink.alerts[0].Details["failed_checks"])
	}
}

func TestCheckTableUnknownTable(t *testing.T) {
	m := NewMonitor(nil, "batch_1")
	results := m.CheckTable([]Row{{"a": 1}}, "dim_warehouse")
	if results != nil {
		t.Errorf("Expected nil results for unknown table, got %v", results)
	}
}

func TestSummaryScoresByType(t *testing.T) {
	m := NewMonitor(nil, "batch_1")
	m.results = []Result{
		{MetricName: "a", Type: TypeCompleteness, Value: 90},
		{MetricName: "b", Type: TypeCompleteness, Value: 100},
		{MetricName: "c", Type: TypeUniqueness, Value: 80},
	}

	s := m.Summary()
	comp := s.ScoresByType[TypeCompleteness]
	if !almostEqual(comp.Average, 95) || comp.Min != 90 || comp.Max != 100 || comp.Count != 2 {
		t.Errorf("Expected completeness avg=95 min=90 max=100 count=2, got %+v", comp)
	}
	uniq := s.ScoresByType[TypeUniqueness]
	if uniq.Count != 1 || uniq.Min != 80 || uniq.Max != 80 {
		t.Errorf("Expected uniqueness min=max=80 count=1, got %+v", uniq)
	}
	if !almostEqual(s.OverallScore, 90) {
		t.Errorf("Expected overall score 90, got %.2f", s.OverallScore)
	}
}

func TestAlertLevels(t *testing.T) {
	tests := []struct {
		name          string
		score         float64
		failedChecks  int
		expectedLevel string
	}{
		{"critical below 70", 65, 3, AlertCritical},
		{"warning below 90", 85, 1, AlertWarning},
		{"warning on failed checks", 98, 1, AlertWarning},
		{"silent when healthy", 100, 0, ""},
	}

	for _, tt := range tests {
		sink := &recordingSink{}
		am := NewAlertManager(sink)
		am.CheckAndAlert(Summary{OverallScore: tt.score, FailedChecks: tt.failedChecks}, "fact_sales")

		if tt.expectedLevel == "" {
			if len(sink.alerts) != 0 {
				t.Errorf("%s: Expected no alert, got %v", tt.name, sink.alerts)
			}
			continue
		}
		if len(sink.alerts) != 1 {
			t.Fatalf("%s: Expected 1 alert, got %d", tt.name, len(sink.alerts))
		}
		if sink.alerts[0].Level != tt.expectedLevel {
			t.Errorf("%s: Expected %s, got %s", tt.name, tt.expectedLevel, sink.alerts[0].Level)
		}
	}
}

func TestCheckAnomaliesAlertsOnHighSeverity(t *testing.T) {
	sink := &recordingSink{}
	am := NewAlertManager(sink)

	am.CheckAnomalies([]Anomaly{
		{TableName: "fact_sales", ScoreDrop: 15, Severity: "MEDIUM"},
	})
	if len(sink.alerts) != 0 {
		t.Errorf("Expected no alert for MEDIUM anomalies, got %d", len(sink.alerts))
	}

	am.CheckAnomalies([]Anomaly{
		{TableName: "fact_sales", ScoreDrop: 25, Severity: "HIGH"},
		{TableName: "dim_product", ScoreDrop: 32, Severity: "HIGH"},
		{TableName: "fact_sales", ScoreDrop: 12, Severity: "MEDIUM"},
	})
	if len(sink.alerts) != 1 {
		t.Fatalf("Expected 1 alert for HIGH anomalies, got %d", len(sink.alerts))
	}
	a := sink.alerts[0]
	if a.Level != AlertError {
		t.Errorf("Expected ERROR alert, got %s", a.Level)
	}
	if a.Details["anomaly_count"] != 2 {
		t.Errorf("Expected anomaly_count 2, got %v", a.Details["anomaly_count"])
	}
	if a.Details["worst_drop"] != 32.0 {
		t.Errorf("Expected worst_drop 32, got %v", a.Details["worst_drop"])
	}
	affected, ok := a.Details["affected_tables"].([]string)
	if !ok || len(affected) != 2 || affected[0] != "dim_product" || affected[1] != "fact_sales" {
		t.Errorf("Expected sorted affected tables [dim_product fact_sales], got %v",
			a.Details["affected_tables"])
	}
}

func TestReportGrouping(t *testing.T) {
	m := NewMonitor(nil, "batch_report")

	m.CheckTable([]Row{
		{"customer_id": "17850", "country": "United Kingdom"},
		{"customer_id": nil, "country": "France"},
	}, "dim_customer")

	report := m.Report()
	for _, want := range []string{
		"DATA QUALITY REPORT",
		"Batch ID: batch_report",
		"DIM_CUSTOMER",
		"PASS country_completeness: 100.00%",
		"FAIL customer_id_completeness: 50.00%",
		"Total Checks: 3",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to contain %q\nreport:\n%s", want, report)
		}
	}
}

func TestReportEmpty(t *testing.T) {
	m := NewMonitor(nil, "")
	if got := m.Report(); got != "No quality metrics available" {
		t.Errorf("Expected empty-report message, got %q", got)
	}
}

func TestSummarizeTrend(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2011, 11, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name          string
		points        []TrendPoint
		expectedTrend string
		expectedPoor  int
		expectedAvg   float64
	}{
		{
			name: "improving",
			points: []TrendPoint{
				{Date: day(1), AvgScore: 90, ChecksCount: 7},
				{Date: day(2), AvgScore: 95, ChecksCount: 7, PoorQualityCount: 1},
			},
			expectedTrend: "IMPROVING",
			expectedPoor:  1,
			expectedAvg:   92.5,
		},
		{
			name: "declining",
			points: []TrendPoint{
				{Date: day(1), AvgScore: 95, ChecksCount: 7},
				{Date: day(2), AvgScore: 90, ChecksCount: 7},
			},
			expectedTrend: "DECLINING",
			expectedAvg:   92.5,
		},
		{
			name: "stable single day",
			points: []TrendPoint{
				{Date: day(1), AvgScore: 95, ChecksCount: 7},
			},
			expectedTrend: "STABLE",
			expectedAvg:   95,
		},
		{
			name: "zero days ignored for scores",
			points: []TrendPoint{
				{Date: day(1), AvgScore: 0, ChecksCount: 0},
				{Date: day(2), AvgScore: 88, ChecksCount: 7, PoorQualityCount: 3},
			},
			expectedTrend: "STABLE",
			expectedPoor:  1,
			expectedAvg:   88,
		},
	}

	for _, tt := range tests {
		s := summarizeTrend(tt.points)
		if s.Trend != tt.expectedTrend {
			t.Errorf("%s: Expected trend %s, got %s", tt.name, tt.expectedTrend, s.Trend)
		}
		if s.PoorQualityDays != tt.expectedPoor {
			t.Errorf("%s: Expected %d poor days, got %d", tt.name, tt.expectedPoor, s.PoorQualityDays)
		}
		if !almostEqual(s.AvgQualityScore, tt.expectedAvg) {
			t.Errorf("%s: Expected avg %.2f, got %.2f", tt.name, tt.expectedAvg, s.AvgQualityScore)
		}
	}
}

func TestSummarizeTrendEmpty(t *testing.T) {
	s := summarizeTrend(nil)
	if s.Trend != "" || s.TotalChecks != 0 {
		t.Errorf("Expected zero summary for no points, got %+v", s)
	}
}
