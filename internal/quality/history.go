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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultDropThreshold is the score drop that flags an anomaly.
const DefaultDropThreshold = 10.0

// Anomaly is a sudden drop of one metric relative to its previous
// measurement.
type Anomaly struct {
	MetricID      uuid.UUID
	TableName     string
	MetricName    string
	CurrentScore  float64
	PreviousScore float64
	ScoreDrop     float64
	MeasuredAt    time.Time
	Severity      string // HIGH when the drop exceeds 20, else MEDIUM
}

// DetectAnomalies compares each metric measurement in the window against its
// previous value for the same (table, metric) and reports drops larger than
// dropThreshold, worst first.
func (m *Monitor) DetectAnomalies(ctx context.Context, days int, dropThreshold float64) ([]Anomaly, error) {
	if m.db == nil {
		return nil, fmt.Errorf("quality monitor has no database connection")
	}
	if days < 1 {
		days = 7
	}
	if dropThreshold <= 0 {
		dropThreshold = DefaultDropThreshold
	}

	rows, err := m.db.Query(ctx, `
        WITH history AS (
            SELECT metric_id, table_name, metric_name,
                   metric_value::FLOAT AS score,
                   measured_at,
                   LAG(metric_value::FLOAT) OVER (
                       PARTITION BY table_name, metric_name
                       ORDER BY measured_at
                   ) AS prev_score
            FROM data_quality_metrics
            WHERE measured_at >= NOW() - make_interval(days => $1::int)
        )
        SELECT metric_id, table_name, metric_name, score, prev_score,
               prev_score - score, measured_at
        FROM history
        WHERE prev_score IS NOT NULL AND prev_score - score > $2
        ORDER BY prev_score - score DESC`, days, dropThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality history: %w", err)
	}
	defer rows.Close()

	var anomalies []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.MetricID, &a.TableName, &a.MetricName,
			&a.CurrentScore, &a.PreviousScore, &a.ScoreDrop, &a.MeasuredAt); err != nil {
			return nil, err
		}
		a.Severity = "MEDIUM"
		if a.ScoreDrop > 20 {
			a.Severity = "HIGH"
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

// TrendPoint is one day of averaged quality measurements.
type TrendPoint struct {
	Date             time.Time
	AvgScore         float64
	ChecksCount      int64
	PoorQualityCount int64
}

// TrendSummary aggregates a trend window.
type TrendSummary struct {
	AvgQualityScore float64
	MinQualityScore float64
	MaxQualityScore float64
	Trend           string // IMPROVING, DECLINING, STABLE
	TotalChecks     int64
	PoorQualityDays int
}

// Trends is daily quality history with its summary.
type Trends struct {
	PeriodDays int
	Points     []TrendPoint
	Summary    TrendSummary
}

// TrackTrends returns daily averaged metric values over the window with a
// poor-quality count (measurements below 90) per day.
func (m *Monitor) TrackTrends(ctx context.Context, days int) (Trends, error) {
	if m.db == nil {
		return Trends{}, fmt.Errorf("quality monitor has no database connection")
	}
	if days < 1 {
		days = 30
	}

	rows, err := m.db.Query(ctx, `
        SELECT DATE(measured_at),
               AVG(metric_value::FLOAT),
               COUNT(*),
               SUM(CASE WHEN metric_value::FLOAT < 90 THEN 1 ELSE 0 END)
        FROM data_quality_metrics
        WHERE measured_at >= NOW() - make_interval(days => $1::int)
        GROUP BY DATE(measured_at)
        ORDER BY DATE(measured_at)`, days)
	if err != nil {
		return Trends{}, fmt.Errorf("failed to query quality trends: %w", err)
	}
	defer rows.Close()

	trends := Trends{PeriodDays: days}
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.AvgScore, &p.ChecksCount, &p.PoorQualityCount); err != nil {
			return Trends{}, err
		}
		trends.Points = append(trends.Points, p)
	}
	if err := rows.Err(); err != nil {
		return Trends{}, err
	}

	trends.Summary = summarizeTrend(trends.Points)
	return trends, nil
}

// summarizeTrend folds daily points into the window summary. Days that
// averaged zero are ignored for the score statistics.
func summarizeTrend(points []TrendPoint) TrendSummary {
	var s TrendSummary
	var scores []float64
	for _, p := range points {
		s.TotalChecks += p.ChecksCount
		if p.PoorQualityCount > 0 {
			s.PoorQualityDays++
		}
		if p.AvgScore > 0 {
			scores = append(scores, p.AvgScore)
		}
	}
	if len(scores) == 0 {
		return s
	}

	s.MinQualityScore = scores[0]
	s.MaxQualityScore = scores[0]
	var sum float64
	for _, v := range scores {
		sum += v
		if v < s.MinQualityScore {
			s.MinQualityScore = v
		}
		if v > s.MaxQualityScore {
			s.MaxQualityScore = v
		}
	}
	s.AvgQualityScore = sum / float64(len(scores))

	s.Trend = "STABLE"
	if len(scores) > 1 {
		switch {
		case scores[len(scores)-1] > scores[0]:
			s.Trend = "IMPROVING"
		case scores[len(scores)-1] < scores[0]:
			s.Trend = "DECLINING"
		}
	}
	return s
}
