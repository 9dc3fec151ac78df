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

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
	"github.com/pgEdge/retail-dw/internal/warehouse"
)

var (
	setupDropExisting  bool
	setupPopulateDates bool
)

// Date dimension pre-population window; the resolver materializes any
// date outside it on demand.
var (
	dateDimFrom = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)
	dateDimTo   = time.Date(2012, 12, 31, 0, 0, 0, 0, time.UTC)
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the warehouse schema, tables, views, and seed data",
	Long: `Create the retail_dw schema with the star-schema tables, the
monitoring views, and the GUEST customer sentinel, and pre-populate the
date dimension.

Example:
  retail-dw setup
  retail-dw setup --drop-existing`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupDropExisting, "drop-existing", false,
		"drop the existing schema before creating it")
	setupCmd.Flags().BoolVar(&setupPopulateDates, "populate-dates", true,
		"pre-populate dim_date for 2009-01-01 through 2012-12-31")
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	schema := cfg.Database.Schema

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if setupDropExisting {
		logging.Warn().Str("schema", schema).Msg("Dropping existing schema")
		if err := warehouse.DropSchema(ctx, pool, schema); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	logging.Info().Str("schema", schema).Msg("Creating warehouse schema")
	if err := warehouse.CreateSchema(ctx, pool, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if setupPopulateDates {
		days, err := warehouse.PopulateDateDimension(ctx, pool, dateDimFrom, dateDimTo)
		if err != nil {
			return fmt.Errorf("failed to populate date dimension: %w", err)
		}
		logging.Info().Int64("days", days).Msg("Date dimension populated")
	}

	if err := db.SaveMetadata(ctx, pool, warehouse.SchemaVersion); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	counts, err := warehouse.TableRowCounts(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to verify tables: %w", err)
	}

	cmd.Println("Warehouse setup complete.")
	cmd.Println()
	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		cmd.Printf("  %-22s %s rows\n", t, num.Sprintf("%d", counts[t]))
	}
	return nil
}
