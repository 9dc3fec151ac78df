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
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/warehouse"
)

var versionsLimit int

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect data versions and fact partitions",
	Long: `Every ETL run creates a data version; loaded fact rows are tagged
with it. These commands inspect the version registry and the monthly
fact_sales partitions.

Example:
  retail-dw versions list
  retail-dw versions show v20260114_083000
  retail-dw versions current
  retail-dw versions compare
  retail-dw versions partitions`,
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent data versions",
	RunE:  runVersionsList,
}

var versionsShowCmd = &cobra.Command{
	Use:   "show <version_number>",
	Short: "Show one version with its fact-row statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionsShow,
}

var versionsCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the most recent active version",
	RunE:  runVersionsCurrent,
}

var versionsCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare consecutive versions by record count",
	RunE:  runVersionsCompare,
}

var versionsPartitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List fact_sales partitions with their sizes",
	RunE:  runVersionsPartitions,
}

func init() {
	versionsListCmd.Flags().IntVar(&versionsLimit, "limit", 10, "number of versions")
	versionsCompareCmd.Flags().IntVar(&versionsLimit, "limit", 10, "number of comparisons")
	versionsCmd.AddCommand(versionsListCmd, versionsShowCmd, versionsCurrentCmd,
		versionsCompareCmd, versionsPartitionsCmd)
}

func runVersionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	history, err := warehouse.NewVersionManager(pool).List(ctx, versionsLimit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		cmd.Println("No data versions recorded yet.")
		return nil
	}

	cmd.Printf("%-22s  %-12s  %-9s  %12s  %12s  %-20s\n",
		"VERSION", "TYPE", "STATUS", "RECORDS", "ARCHIVED", "CREATED")
	for _, v := range history {
		cmd.Printf("%-22s  %-12s  %-9s  %12s  %12s  %-20s\n",
			v.Number, v.Type, v.Status,
			num.Sprintf("%d", v.RecordsCount),
			num.Sprintf("%d", v.ArchivedRecords),
			v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runVersionsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	vm := warehouse.NewVersionManager(pool)
	v, err := vm.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("version %s not found", args[0])
	}
	printVersion(cmd, v)

	stats, err := vm.Stats(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("failed to load version statistics: %w", err)
	}
	cmd.Println()
	cmd.Printf("Fact Rows:         %s\n", num.Sprintf("%d", stats.FactCount))
	cmd.Printf("Unique Customers:  %s\n", num.Sprintf("%d", stats.UniqueCustomers))
	cmd.Printf("Unique Products:   %s\n", num.Sprintf("%d", stats.UniqueProducts))
	if stats.EarliestTxn != nil && stats.LatestTxn != nil {
		cmd.Printf("Transaction Range: %s to %s\n",
			stats.EarliestTxn.Format("2006-01-02"), stats.LatestTxn.Format("2006-01-02"))
	}
	return nil
}

func runVersionsCurrent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	v, err := warehouse.NewVersionManager(pool).Current(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		cmd.Println("No active data version yet.")
		return nil
	}
	printVersion(cmd, v)
	return nil
}

func runVersionsCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	comparisons, err := warehouse.NewVersionManager(pool).Compare(ctx, versionsLimit)
	if err != nil {
		return err
	}
	if len(comparisons) == 0 {
		cmd.Println("No data versions recorded yet.")
		return nil
	}

	cmd.Printf("%-22s  %12s  %-22s  %12s  %12s\n",
		"VERSION", "RECORDS", "PREVIOUS", "RECORDS", "CHANGE")
	for _, c := range comparisons {
		prev, prevRecords, change := "-", "-", "-"
		if c.PreviousVersion != nil {
			prev = *c.PreviousVersion
		}
		if c.PreviousRecords != nil {
			prevRecords = num.Sprintf("%d", *c.PreviousRecords)
		}
		if c.RecordChange != nil {
			change = num.Sprintf("%+d", *c.RecordChange)
		}
		cmd.Printf("%-22s  %12s  %-22s  %12s  %12s\n",
			c.CurrentVersion, num.Sprintf("%d", c.CurrentRecords),
			prev, prevRecords, change)
	}
	return nil
}

func runVersionsPartitions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	partitions, err := warehouse.NewPartitionManager(pool).List(ctx)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		cmd.Println("No fact_sales partitions yet.")
		return nil
	}

	cmd.Printf("%-28s  %10s\n", "PARTITION", "SIZE")
	for _, p := range partitions {
		cmd.Printf("%-28s  %10s\n", p.Name, p.Size)
	}
	return nil
}

func printVersion(cmd *cobra.Command, v *warehouse.Version) {
	cmd.Printf("Version:           %s\n", v.Number)
	cmd.Printf("Type:              %s\n", v.Type)
	cmd.Printf("Status:            %s\n", v.Status)
	cmd.Printf("Description:       %s\n", v.Description)
	cmd.Printf("Created:           %s by %s\n", v.CreatedAt.Format(time.RFC3339), v.CreatedBy)
	if v.SourceFile != "" {
		cmd.Printf("Source File:       %s\n", v.SourceFile)
	}
	if v.FileHash != "" {
		cmd.Printf("File Hash:         %s\n", v.FileHash)
	}
	if v.ETLJobID != "" {
		cmd.Printf("ETL Job ID:        %s\n", v.ETLJobID)
	}
	cmd.Printf("Records:           %s\n", num.Sprintf("%d", v.RecordsCount))
}
