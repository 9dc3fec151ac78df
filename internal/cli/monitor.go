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
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/warehouse"
)

var (
	monitorJobID string
	monitorLast  int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show recent ETL runs or the detail of one run",
	Long: `Show the lineage records of recent ETL runs, or the full detail of a
single run selected by its job ID.

Example:
  retail-dw monitor
  retail-dw monitor --last 25
  retail-dw monitor --job-id 6f1c2a8e-...`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorJobID, "job-id", "", "show the detail of this ETL run")
	monitorCmd.Flags().IntVar(&monitorLast, "last", 10, "number of recent runs to list")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	ls := warehouse.NewLineageStore(pool)
	if monitorJobID != "" {
		rec, err := ls.GetByBatch(ctx, monitorJobID)
		if err != nil {
			return fmt.Errorf("failed to look up job %s: %w", monitorJobID, err)
		}
		if rec == nil {
			return fmt.Errorf("no ETL run found with job ID %s", monitorJobID)
		}
		printLineageDetail(cmd, rec)
		return nil
	}

	recs, err := ls.Recent(ctx, monitorLast)
	if err != nil {
		return fmt.Errorf("failed to list recent runs: %w", err)
	}
	if len(recs) == 0 {
		cmd.Println("No ETL runs recorded yet.")
		return nil
	}

	cmd.Printf("%-36s  %-20s  %-10s  %12s  %12s  %-20s\n",
		"JOB ID", "JOB NAME", "STATUS", "PROCESSED", "INSERTED", "STARTED")
	for _, r := range recs {
		cmd.Printf("%-36s  %-20s  %-10s  %12s  %12s  %-20s\n",
			r.BatchID,
			clip(r.JobName, 20),
			r.Status,
			num.Sprintf("%d", r.RecordsProcessed),
			num.Sprintf("%d", r.RecordsInserted),
			r.StartTime.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printLineageDetail(cmd *cobra.Command, r *warehouse.LineageRecord) {
	cmd.Printf("Job ID:            %s\n", r.BatchID)
	cmd.Printf("Job Name:          %s\n", r.JobName)
	cmd.Printf("Status:            %s\n", r.Status)
	cmd.Printf("Source:            %s (%s)\n", r.SourceFile, r.SourceSystem)
	cmd.Printf("Target Table:      %s\n", r.TargetTable)
	cmd.Printf("Records Processed: %s\n", num.Sprintf("%d", r.RecordsProcessed))
	cmd.Printf("Records Inserted:  %s\n", num.Sprintf("%d", r.RecordsInserted))
	cmd.Printf("Records Updated:   %s\n", num.Sprintf("%d", r.RecordsUpdated))
	cmd.Printf("Records Rejected:  %s\n", num.Sprintf("%d", r.RecordsRejected))
	cmd.Printf("Started:           %s\n", r.StartTime.Format(time.RFC3339))
	if r.EndTime != nil {
		cmd.Printf("Finished:          %s\n", r.EndTime.Format(time.RFC3339))
	}
	if r.DurationSeconds != nil {
		cmd.Printf("Duration:          %ds\n", *r.DurationSeconds)
	}
	if r.ErrorMessage != "" {
		cmd.Printf("Error:             %s\n", r.ErrorMessage)
	}
	if len(r.Metadata) > 0 {
		cmd.Println("Metadata:")
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("  %s: %v\n", k, r.Metadata[k])
		}
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
