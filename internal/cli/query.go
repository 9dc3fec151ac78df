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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/warehouse"
)

var (
	queryTable string
	queryLimit int
)

// queryViews are the monitoring views exposed alongside the core tables.
var queryViews = []string{"v_current_version", "v_version_history", "v_version_comparison"}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show row counts, or dump rows from a warehouse table or view",
	Long: `Without --table, list the row counts of all core tables. With
--table, print the first rows of that table or monitoring view.

Example:
  retail-dw query
  retail-dw query --table dim_product --limit 20
  retail-dw query --table v_version_history`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryTable, "table", "", "table or view to dump")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 10, "maximum rows to print")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if queryTable == "" {
		counts, err := warehouse.TableRowCounts(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to count rows: %w", err)
		}
		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		cmd.Printf("%-24s %15s\n", "TABLE", "ROWS")
		for _, t := range tables {
			cmd.Printf("%-24s %15s\n", t, num.Sprintf("%d", counts[t]))
		}
		return nil
	}

	if !queryableTable(queryTable) {
		return fmt.Errorf("unknown table %q, choose one of: %s",
			queryTable, strings.Join(queryableTables(), ", "))
	}
	if queryLimit <= 0 {
		queryLimit = 10
	}

	// Table names come from a fixed allowlist, never from user SQL.
	rows, err := pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT $1", queryTable), queryLimit)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", queryTable, err)
	}
	defer rows.Close()

	cols := make([]string, 0, 8)
	for _, fd := range rows.FieldDescriptions() {
		cols = append(cols, fd.Name)
	}
	cmd.Println(strings.Join(cols, " | "))

	n := 0
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = formatValue(v)
		}
		cmd.Println(strings.Join(parts, " | "))
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", queryTable, err)
	}
	cmd.Printf("\n%d row(s)\n", n)
	return nil
}

func queryableTable(name string) bool {
	for _, t := range queryableTables() {
		if t == name {
			return true
		}
	}
	return false
}

func queryableTables() []string {
	all := make([]string, 0, len(warehouse.CoreTables)+len(queryViews))
	all = append(all, warehouse.CoreTables...)
	all = append(all, queryViews...)
	return all
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case pgtype.Numeric:
		d, err := db.Decimal(t)
		if err != nil {
			return "?"
		}
		return d.String()
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
