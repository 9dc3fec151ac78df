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

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/db"
)

var (
	statsDays  int
	statsLimit int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Sales and table statistics",
	Long: `Reporting queries over the warehouse. Summary and top-products
results are cached in Redis when it is available.

Example:
  retail-dw stats summary
  retail-dw stats top-products --limit 20
  retail-dw stats tables`,
}

var statsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Overall sales summary",
	RunE:  runStatsSummary,
}

var statsTopProductsCmd = &cobra.Command{
	Use:   "top-products",
	Short: "Top products by revenue",
	RunE:  runStatsTopProducts,
}

var statsTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Physical table statistics from pg_stat_user_tables",
	RunE:  runStatsTables,
}

func init() {
	statsSummaryCmd.Flags().IntVar(&statsDays, "days", 0,
		"restrict to the last N days (0 = all data)")
	statsTopProductsCmd.Flags().IntVar(&statsDays, "days", 0,
		"restrict to the last N days (0 = all data)")
	statsTopProductsCmd.Flags().IntVar(&statsLimit, "limit", 10, "number of products")
	statsCmd.AddCommand(statsSummaryCmd, statsTopProductsCmd, statsTablesCmd)
}

type salesSummary struct {
	LineItems  int64           `json:"line_items"`
	Invoices   int64           `json:"invoices"`
	Customers  int64           `json:"customers"`
	Products   int64           `json:"products"`
	Units      int64           `json:"units"`
	NetRevenue decimal.Decimal `json:"net_revenue"`
	FirstSale  *time.Time      `json:"first_sale,omitempty"`
	LastSale   *time.Time      `json:"last_sale,omitempty"`
}

type productStat struct {
	StockCode   string          `json:"stock_code"`
	Description string          `json:"description"`
	Units       int64           `json:"units"`
	Revenue     decimal.Decimal `json:"revenue"`
}

func runStatsSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	qc := queryCache()
	defer qc.Close()

	key := cache.Key("stats_summary", cfg.Database.Schema, statsDays)
	var s salesSummary
	cached := qc.Get(ctx, key, &s)
	if !cached {
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		var revenue pgtype.Numeric
		err = pool.QueryRow(ctx, `
			SELECT COUNT(*),
			       COUNT(DISTINCT invoice_no),
			       COUNT(DISTINCT customer_key),
			       COUNT(DISTINCT product_key),
			       COALESCE(SUM(quantity), 0),
			       COALESCE(SUM(CASE WHEN transaction_type = 'RETURN'
			                         THEN -line_total ELSE line_total END), 0),
			       MIN(transaction_datetime),
			       MAX(transaction_datetime)
			FROM fact_sales
			WHERE ($1 = 0 OR transaction_datetime >= NOW() - make_interval(days => $1::int))`,
			statsDays,
		).Scan(&s.LineItems, &s.Invoices, &s.Customers, &s.Products,
			&s.Units, &revenue, &s.FirstSale, &s.LastSale)
		if err != nil {
			return fmt.Errorf("failed to query sales summary: %w", err)
		}
		if s.NetRevenue, err = db.Decimal(revenue); err != nil {
			return fmt.Errorf("failed to read revenue: %w", err)
		}
		qc.Set(ctx, key, s)
	}

	if statsDays > 0 {
		cmd.Printf("Sales Summary (last %d days)", statsDays)
	} else {
		cmd.Print("Sales Summary")
	}
	if cached {
		cmd.Print(" [cached]")
	}
	cmd.Println()
	cmd.Printf("  Line Items:   %s\n", num.Sprintf("%d", s.LineItems))
	cmd.Printf("  Invoices:     %s\n", num.Sprintf("%d", s.Invoices))
	cmd.Printf("  Customers:    %s\n", num.Sprintf("%d", s.Customers))
	cmd.Printf("  Products:     %s\n", num.Sprintf("%d", s.Products))
	cmd.Printf("  Units Sold:   %s\n", num.Sprintf("%d", s.Units))
	cmd.Printf("  Net Revenue:  %s\n", s.NetRevenue.StringFixed(2))
	if s.FirstSale != nil && s.LastSale != nil {
		cmd.Printf("  Date Range:   %s to %s\n",
			s.FirstSale.Format("2006-01-02"), s.LastSale.Format("2006-01-02"))
	}
	return nil
}

func runStatsTopProducts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if statsLimit <= 0 {
		statsLimit = 10
	}

	qc := queryCache()
	defer qc.Close()

	key := cache.Key("stats_top_products", cfg.Database.Schema, statsDays, statsLimit)
	var products []productStat
	cached := qc.Get(ctx, key, &products)
	if !cached {
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := pool.Query(ctx, `
			SELECT p.stock_code,
			       p.description,
			       SUM(f.quantity),
			       SUM(f.line_total)
			FROM fact_sales f
			JOIN dim_product p ON p.product_key = f.product_key
			WHERE f.transaction_type = 'SALE'
			  AND ($1 = 0 OR f.transaction_datetime >= NOW() - make_interval(days => $1::int))
			GROUP BY p.stock_code, p.description
			ORDER BY SUM(f.line_total) DESC
			LIMIT $2`,
			statsDays, statsLimit,
		)
		if err != nil {
			return fmt.Errorf("failed to query top products: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p productStat
			var revenue pgtype.Numeric
			if err := rows.Scan(&p.StockCode, &p.Description, &p.Units, &revenue); err != nil {
				return fmt.Errorf("failed to read product row: %w", err)
			}
			if p.Revenue, err = db.Decimal(revenue); err != nil {
				return fmt.Errorf("failed to read revenue: %w", err)
			}
			products = append(products, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read top products: %w", err)
		}
		qc.Set(ctx, key, products)
	}

	if len(products) == 0 {
		cmd.Println("No sales loaded yet.")
		return nil
	}

	cmd.Print("Top Products by Revenue")
	if cached {
		cmd.Print(" [cached]")
	}
	cmd.Println()
	cmd.Printf("%-12s  %-40s  %10s  %14s\n", "STOCK CODE", "DESCRIPTION", "UNITS", "REVENUE")
	for _, p := range products {
		cmd.Printf("%-12s  %-40s  %10s  %14s\n",
			p.StockCode,
			clip(p.Description, 40),
			num.Sprintf("%d", p.Units),
			p.Revenue.StringFixed(2))
	}
	return nil
}

func runStatsTables(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT relname,
		       n_live_tup,
		       n_dead_tup,
		       pg_size_pretty(pg_total_relation_size(relid))
		FROM pg_stat_user_tables
		WHERE schemaname = $1
		ORDER BY pg_total_relation_size(relid) DESC`,
		cfg.Database.Schema,
	)
	if err != nil {
		return fmt.Errorf("failed to query table statistics: %w", err)
	}
	defer rows.Close()

	cmd.Printf("%-32s  %12s  %12s  %10s\n", "TABLE", "LIVE ROWS", "DEAD ROWS", "SIZE")
	for rows.Next() {
		var name, size string
		var live, dead int64
		if err := rows.Scan(&name, &live, &dead, &size); err != nil {
			return fmt.Errorf("failed to read statistics row: %w", err)
		}
		cmd.Printf("%-32s  %12s  %12s  %10s\n",
			name, num.Sprintf("%d", live), num.Sprintf("%d", dead), size)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table statistics: %w", err)
	}
	return nil
}
