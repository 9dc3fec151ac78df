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
	"sort"

	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// Alert levels.
const (
	AlertCritical = "CRITICAL"
	AlertError    = "ERROR"
	AlertWarning  = "WARNING"
	AlertInfo     = "INFO"
)

// Alert is one quality notification.
type Alert struct {
	Level   string
	Message string
	Details map[string]any
}

// Sink receives alerts. Implementations may forward to email, chat, or
// paging systems; the default writes structured log lines.
type Sink interface {
	Send(alert Alert)
}

// LogSink emits alerts on the structured log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink that logs alerts under the quality component.
func NewLogSink() *LogSink {
	return &LogSink{log: logging.Component("quality-alerts")}
}

// Send writes the alert at a level matching its severity.
func (s *LogSink) Send(a Alert) {
	var evt *zerolog.Event
	switch a.Level {
	case AlertCritical, AlertError:
		evt = s.log.Error()
	case AlertWarning:
		evt = s.log.Warn()
	default:
		evt = s.log.Info()
	}
	evt.Str("alert_level", a.Level).Fields(a.Details).Msg("QUALITY ALERT: " + a.Message)
}

// AlertManager turns quality summaries and anomalies into alerts.
type AlertManager struct {
	sink Sink
}

// NewAlertManager creates a manager sending to the given sink, defaulting to
// the log sink.
func NewAlertManager(sink Sink) *AlertManager {
	if sink == nil {
		sink = NewLogSink()
	}
	return &AlertManager{sink: sink}
}

// CheckAndAlert raises an alert when a batch summary shows degraded quality:
// CRITICAL below an overall score of 70, WARNING below 90, and WARNING when
// individual checks failed despite a healthy overall score.
func (am *AlertManager) CheckAndAlert(s Summary, table string) {
	details := map[string]any{
		"score":         s.OverallScore,
		"failed_checks": s.FailedChecks,
		"table":         table,
	}
	switch {
	case s.OverallScore < 70:
		am.sink.Send(Alert{
			Level:   AlertCritical,
			Message: "Critical quality issue in " + table,
			Details: details,
		})
	case s.OverallScore < 90:
		am.sink.Send(Alert{
			Level:   AlertWarning,
			Message: "Quality degradation in " + table,
			Details: details,
		})
	case s.FailedChecks > 0:
		am.sink.Send(Alert{
			Level:   AlertWarning,
			Message: "Quality threshold failures in " + table,
			Details: details,
		})
	}
}

// CheckAnomalies raises one ERROR alert when any HIGH-severity anomalies are
// present.
func (am *AlertManager) CheckAnomalies(anomalies []Anomaly) {
	var high []Anomaly
	for _, a := range anomalies {
		if a.Severity == "HIGH" {
			high = append(high, a)
		}
	}
	if len(high) == 0 {
		return
	}

	worst := high[0].ScoreDrop
	tables := make(map[string]struct{})
	for _, a := range high {
		if a.ScoreDrop > worst {
			worst = a.ScoreDrop
		}
		tables[a.TableName] = struct{}{}
	}
	affected := make([]string, 0, len(tables))
	for t := range tables {
		affected = append(affected, t)
	}
	sort.Strings(affected)

	am.sink.Send(Alert{
		Level:   AlertError,
		Message: "Quality anomalies detected",
		Details: map[string]any{
			"anomaly_count":   len(high),
			"worst_drop":      worst,
			"affected_tables": affected,
		},
	})
}
