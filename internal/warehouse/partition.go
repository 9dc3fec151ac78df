//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// PartitionManager creates and inspects the monthly range partitions
// backing fact_sales.
type PartitionManager struct {
	db  db.Querier
	log zerolog.Logger
}

// NewPartitionManager creates a partition manager on the given connection.
func NewPartitionManager(q db.Querier) *PartitionManager {
	return &PartitionManager{
		db:  q,
		log: logging.Component("partition"),
	}
}

// MonthPartitionName returns the name of the partition holding rows for
// t's calendar month, e.g. fact_sales_y2010m12.
func MonthPartitionName(t time.Time) string {
	return fmt.Sprintf("fact_sales_y%dm%02d", t.Year(), int(t.Month()))
}

// EnsureRange guarantees a monthly partition exists for every month between
// from and to inclusive. Partition bounds are half-open, so the first
// instant of a month belongs to that month's partition. Idempotent.
func (pm *PartitionManager) EnsureRange(ctx context.Context, from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("partition range requires non-zero bounds")
	}
	if to.Before(from) {
		from, to = to, from
	}

	last := monthStart(to)
	for m := monthStart(from); !m.After(last); m = m.AddDate(0, 1, 0) {
		if err := pm.ensureMonth(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (pm *PartitionManager) ensureMonth(ctx context.Context, month time.Time) error {
	name := MonthPartitionName(month)
	err := pm.createMonth(ctx, name, month)
	if err == nil {
		return nil
	}

	// Concurrent loads can race on CREATE TABLE. If the partition is there
	// after the failure, the caller's requirement is met.
	if exists, checkErr := pm.exists(ctx, name); checkErr == nil && exists {
		pm.log.Debug().Str("partition", name).Msg("Partition already exists")
		return nil
	}

	pm.log.Warn().Err(err).Str("partition", name).Msg("Partition create failed, retrying")
	if err := pm.createMonth(ctx, name, month); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}
	return nil
}

func (pm *PartitionManager) createMonth(ctx context.Context, name string, month time.Time) error {
	from := monthStart(month)
	to := from.AddDate(0, 1, 0)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF fact_sales FOR VALUES FROM ('%s') TO ('%s')",
			name, from.Format("2006-01-02"), to.Format("2006-01-02")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_txn_datetime ON %s(transaction_datetime)", name, name),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_customer_key ON %s(customer_key)", name, name),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_product_key ON %s(product_key)", name, name),
	}
	for _, sql := range stmts {
		if _, err := pm.db.Exec(ctx, sql); err != nil {
			return err
		}
	}

	pm.log.Debug().Str("partition", name).Msg("Ensured partition")
	return nil
}

func (pm *PartitionManager) exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := pm.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = current_schema() AND tablename = $1)",
		name).Scan(&exists)
	return exists, err
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PartitionInfo describes one fact_sales partition.
type PartitionInfo struct {
	Name string
	Size string
}

// List returns the fact_sales partitions in the current schema with their
// on-disk sizes, ordered by name.
func (pm *PartitionManager) List(ctx context.Context) ([]PartitionInfo, error) {
	rows, err := pm.db.Query(ctx, `
        SELECT tablename,
               pg_size_pretty(pg_total_relation_size(quote_ident(schemaname) || '.' || quote_ident(tablename)))
        FROM pg_tables
        WHERE schemaname = current_schema()
          AND tablename LIKE 'fact_sales_%'
          AND tablename <> 'fact_sales_archive'
        ORDER BY tablename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []PartitionInfo
	for rows.Next() {
		var p PartitionInfo
		if err := rows.Scan(&p.Name, &p.Size); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}
