//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/quality"
)

var (
	qualityTable   string
	qualityBatchID string
	qualityDays    int
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Data quality checks, trends, and anomaly detection",
	Long: `Run the registered quality rules against warehouse tables, inspect
historical quality trends, and detect sudden score drops.

Example:
  retail-dw quality check
  retail-dw quality check --table dim_customer
  retail-dw quality report
  retail-dw quality trends --days 30
  retail-dw quality anomalies --days 7`,
}

var qualityCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run quality rules against one table and persist the metrics",
	RunE:  runQualityCheck,
}

var qualityReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run quality rules against all monitored tables without persisting",
	RunE:  runQualityReport,
}

var qualityTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show daily quality score history",
	RunE:  runQualityTrends,
}

var qualityAnomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Detect sudden quality score drops",
	RunE:  runQualityAnomalies,
}

func init() {
	qualityCheckCmd.Flags().StringVar(&qualityTable, "table", "fact_sales", "table to check")
	qualityCheckCmd.Flags().StringVar(&qualityBatchID, "batch-id", "", "restrict fact_sales to one ETL batch")
	qualityReportCmd.Flags().StringVar(&qualityTable, "table", "", "check only this table")
	qualityTrendsCmd.Flags().IntVar(&qualityDays, "days", 30, "history window in days")
	qualityAnomaliesCmd.Flags().IntVar(&qualityDays, "days", 7, "detection window in days")
	qualityCmd.AddCommand(qualityCheckCmd, qualityReportCmd, qualityTrendsCmd, qualityAnomaliesCmd)
}

func runQualityCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sample, err := quality.SampleRows(ctx, pool, qualityTable, qualityBatchID, cfg.ETL.SampleSize)
	if err != nil {
		return err
	}
	if len(sample) == 0 {
		cmd.Printf("Table %s has no rows to check.\n", qualityTable)
		return nil
	}

	m := quality.NewMonitor(pool, qualityBatchID)
	m.CheckTable(sample, qualityTable)
	if err := m.Persist(ctx); err != nil {
		return fmt.Errorf("failed to persist quality metrics: %w", err)
	}

	cmd.Print(m.Report())

	summary := m.Summary()
	if summary.FailedChecks > 0 {
		return fmt.Errorf("%d of %d quality checks failed", summary.FailedChecks, summary.TotalChecks)
	}
	return nil
}

func runQualityReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tables := make([]string, 0, 3)
	if qualityTable != "" {
		tables = append(tables, qualityTable)
	} else {
		for t := range quality.DefaultRegistry() {
			tables = append(tables, t)
		}
		sort.Strings(tables)
	}

	m := quality.NewMonitor(pool, "")
	for _, table := range tables {
		sample, err := quality.SampleRows(ctx, pool, table, "", cfg.ETL.SampleSize)
		if err != nil {
			return err
		}
		if len(sample) == 0 {
			cmd.Printf("Table %s has no rows to check.\n\n", table)
			continue
		}
		m.CheckTable(sample, table)
	}

	cmd.Print(m.Report())
	return nil
}

func runQualityTrends(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	trends, err := quality.NewMonitor(pool, "").TrackTrends(ctx, qualityDays)
	if err != nil {
		return err
	}
	if len(trends.Points) == 0 {
		cmd.Printf("No quality history in the last %d days.\n", trends.PeriodDays)
		return nil
	}

	cmd.Printf("Quality Trends (last %d days)\n", trends.PeriodDays)
	cmd.Printf("%-12s  %10s  %8s  %6s\n", "DATE", "AVG SCORE", "CHECKS", "POOR")
	for _, p := range trends.Points {
		cmd.Printf("%-12s  %10.2f  %8d  %6d\n",
			p.Date.Format("2006-01-02"), p.AvgScore, p.ChecksCount, p.PoorQualityCount)
	}
	s := trends.Summary
	cmd.Println()
	cmd.Printf("Average: %.2f  Min: %.2f  Max: %.2f  Trend: %s\n",
		s.AvgQualityScore, s.MinQualityScore, s.MaxQualityScore, s.Trend)
	cmd.Printf("Total Checks: %s  Poor Quality Days: %d\n",
		num.Sprintf("%d", s.TotalChecks), s.PoorQualityDays)
	return nil
}

func runQualityAnomalies(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	anomalies, err := quality.NewMonitor(pool, "").DetectAnomalies(ctx, qualityDays, 0)
	if err != nil {
		return err
	}
	if len(anomalies) == 0 {
		cmd.Printf("No quality anomalies in the last %d days.\n", qualityDays)
		return nil
	}

	cmd.Printf("Quality Anomalies (last %d days)\n", qualityDays)
	cmd.Printf("%-20s  %-26s  %8s  %8s  %8s  %-8s\n",
		"TABLE", "METRIC", "CURRENT", "PREV", "DROP", "SEVERITY")
	for _, a := range anomalies {
		cmd.Printf("%-20s  %-26s  %8.2f  %8.2f  %8.2f  %-8s\n",
			a.TableName, a.MetricName, a.CurrentScore, a.PreviousScore,
			a.ScoreDrop, a.Severity)
	}
	return nil
}
