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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
	"github.com/pgEdge/retail-dw/internal/warehouse"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify configuration, database connectivity, and the warehouse schema",
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	cmd.Println("Configuration OK")

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	conn, err := db.ConnectSingle(ctx, cfg.Database.ConnString(), cfg.Database.Schema, "test")
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer conn.Close(ctx)
	cmd.Println("Database connection OK")

	exists, err := warehouse.SchemaExists(ctx, conn, cfg.Database.Schema)
	if err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("schema %q does not exist, run 'retail-dw setup' first", cfg.Database.Schema)
	}

	counts, err := warehouse.TableRowCounts(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to query core tables: %w", err)
	}
	for _, t := range warehouse.CoreTables {
		if _, ok := counts[t]; !ok {
			return fmt.Errorf("core table %q is missing, run 'retail-dw setup' first", t)
		}
	}
	cmd.Println("Core tables OK")

	hasMeta, err := db.MetadataExists(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to check metadata: %w", err)
	}
	if hasMeta {
		meta, err := db.GetAllMetadata(ctx, conn)
		if err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}
		cmd.Printf("Platform metadata OK (schema_version %s, tool %s)\n",
			meta["schema_version"], meta["tool_version"])
	} else {
		logging.Warn().Msg("Metadata table missing, setup has not recorded platform info")
	}

	qc := queryCache()
	defer qc.Close()
	if err := qc.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("Redis cache unavailable, stats queries will not be cached")
	} else {
		cmd.Println("Redis cache OK")
	}

	cmd.Println()
	cmd.Println("All checks passed.")
	return nil
}

// queryCache builds the optional Redis-backed query cache from config.
func queryCache() *cache.QueryCache {
	addr := fmt.Sprintf("%s:%d", cfg.Cache.RedisHost, cfg.Cache.RedisPort)
	return cache.NewQueryCache(addr, cfg.Cache.RedisDB, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
}
