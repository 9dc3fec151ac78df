//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration
// +build integration

// Integration tests for the warehouse layer.
// Run with: go test -tags=integration ./internal/warehouse/...
// Requires PostgreSQL to be available.
// Set RETAILDW_TEST_CONN environment variable to override connection string.

package warehouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/etl"
	"github.com/pgEdge/retail-dw/internal/testutil"
	"github.com/pgEdge/retail-dw/internal/warehouse"
)

const testSchema = "retail_dw"

func newWarehousePool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	baseConnStr := testutil.SkipIfNoPostgres(t)
	testConnStr := testutil.CreateTestDB(t, baseConnStr, "warehouse")
	dbName := testutil.GetDBNameFromConnStr(testConnStr)

	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	t.Cleanup(cleanup.Cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, testConnStr, testSchema)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	cleanup.SetPool(pool)
	return pool
}

func sampleBatch(day time.Time) []*etl.Transaction {
	price := decimal.NewFromFloat(2.55)
	return []*etl.Transaction{
		{
			InvoiceNo:       536365,
			TransactionType: "SALE",
			Quantity:        6,
			UnitPrice:       price,
			LineTotal:       price.Mul(decimal.NewFromInt(6)),
			TransactionAt:   day,
			TransactionDate: day.Truncate(24 * time.Hour),
			CustomerID:      "17850",
			StockCode:       "85123A",
			Description:     "White Hanging Heart T-Light Holder",
			Country:         "United Kingdom",
			Category:        "Merchandise",
			Subcategory:     "General",
		},
		{
			InvoiceNo:       536365,
			TransactionType: "SALE",
			Quantity:        2,
			UnitPrice:       price,
			LineTotal:       price.Mul(decimal.NewFromInt(2)),
			TransactionAt:   day.Add(time.Minute),
			TransactionDate: day.Truncate(24 * time.Hour),
			CustomerID:      "GUEST",
			StockCode:       "71053",
			Description:     "White Metal Lantern",
			Country:         "France",
			Category:        "Merchandise",
			Subcategory:     "General",
		},
	}
}

func TestWarehouseIntegration(t *testing.T) {
	pool := newWarehousePool(t)
	ctx := context.Background()
	day := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)

	t.Run("CreateSchema", func(t *testing.T) {
		if err := warehouse.CreateSchema(ctx, pool, testSchema); err != nil {
			t.Fatalf("CreateSchema failed: %v", err)
		}
		// Idempotent re-run must not error
		if err := warehouse.CreateSchema(ctx, pool, testSchema); err != nil {
			t.Fatalf("Second CreateSchema failed (not idempotent): %v", err)
		}

		exists, err := warehouse.SchemaExists(ctx, pool, testSchema)
		if err != nil {
			t.Fatalf("SchemaExists failed: %v", err)
		}
		if !exists {
			t.Error("Expected schema to exist after CreateSchema")
		}

		counts, err := warehouse.TableRowCounts(ctx, pool)
		if err != nil {
			t.Fatalf("TableRowCounts failed: %v", err)
		}
		for _, table := range warehouse.CoreTables {
			if _, ok := counts[table]; !ok {
				t.Errorf("Expected core table %s to exist", table)
			}
		}
		if counts["dim_customer"] != 1 {
			t.Errorf("Expected 1 seeded GUEST customer, got %d", counts["dim_customer"])
		}
	})

	t.Run("PopulateDates", func(t *testing.T) {
		from := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC)

		days, err := warehouse.PopulateDateDimension(ctx, pool, from, to)
		if err != nil {
			t.Fatalf("PopulateDateDimension failed: %v", err)
		}
		if days != 31 {
			t.Errorf("Expected 31 days inserted, got %d", days)
		}

		// Existing days are untouched
		days, err = warehouse.PopulateDateDimension(ctx, pool, from, to)
		if err != nil {
			t.Fatalf("Second PopulateDateDimension failed: %v", err)
		}
		if days != 0 {
			t.Errorf("Expected 0 days on re-run, got %d", days)
		}
	})

	t.Run("ResolveBatch", func(t *testing.T) {
		resolver := warehouse.NewResolver(pool, cache.NewDimensionCache(100))

		rows, rejected, err := resolver.Resolve(ctx, sampleBatch(day))
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if rejected != 0 {
			t.Errorf("Expected 0 rejected, got %d", rejected)
		}
		if len(rows) != 2 {
			t.Fatalf("Expected 2 fact rows, got %d", len(rows))
		}
		for i, r := range rows {
			if r.CustomerKey == 0 || r.ProductKey == 0 || r.DateKey == 0 {
				t.Errorf("row %d: unresolved keys: %+v", i, r)
			}
		}
		if rows[0].CustomerKey == rows[1].CustomerKey {
			t.Error("Expected distinct customer keys for named and guest rows")
		}

		// Resolving the same batch again must converge on the same keys
		again, _, err := resolver.Resolve(ctx, sampleBatch(day))
		if err != nil {
			t.Fatalf("Second Resolve failed: %v", err)
		}
		if again[0].CustomerKey != rows[0].CustomerKey || again[0].ProductKey != rows[0].ProductKey {
			t.Error("Expected repeated resolve to return the same dimension keys")
		}

		var products int64
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM dim_product").Scan(&products); err != nil {
			t.Fatalf("count products: %v", err)
		}
		if products != 2 {
			t.Errorf("Expected 2 products after repeated resolve, got %d", products)
		}
	})

	t.Run("WriteFacts", func(t *testing.T) {
		batchID := uuid.NewString()

		pm := warehouse.NewPartitionManager(pool)
		if err := pm.EnsureRange(ctx, day, day.Add(time.Minute)); err != nil {
			t.Fatalf("EnsureRange failed: %v", err)
		}
		// Idempotent
		if err := pm.EnsureRange(ctx, day, day.Add(time.Minute)); err != nil {
			t.Fatalf("Second EnsureRange failed: %v", err)
		}

		partitions, err := pm.List(ctx)
		if err != nil {
			t.Fatalf("List partitions failed: %v", err)
		}
		want := warehouse.MonthPartitionName(day)
		found := false
		for _, p := range partitions {
			if p.Name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected partition %s in %v", want, partitions)
		}

		resolver := warehouse.NewResolver(pool, cache.NewDimensionCache(100))
		rows, _, err := resolver.Resolve(ctx, sampleBatch(day))
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}

		w := warehouse.NewFactWriter(pool, batchID, "CSV")
		written, err := w.Write(ctx, rows)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if written != 2 {
			t.Errorf("Expected 2 rows written, got %d", written)
		}

		var facts int64
		err = pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM fact_sales WHERE batch_id = $1", batchID).Scan(&facts)
		if err != nil {
			t.Fatalf("count facts: %v", err)
		}
		if facts != 2 {
			t.Errorf("Expected 2 facts for batch, got %d", facts)
		}
	})

	t.Run("VersionLifecycle", func(t *testing.T) {
		vm := warehouse.NewVersionManager(pool)
		batchID := uuid.NewString()

		v, err := vm.Create(ctx, warehouse.Version{
			Description: "integration load",
			ETLJobID:    batchID,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if v.ID == 0 || v.Number == "" {
			t.Fatalf("Expected populated version, got %+v", v)
		}

		// Write one fact row under this batch, then tag it
		resolver := warehouse.NewResolver(pool, cache.NewDimensionCache(100))
		rows, _, err := resolver.Resolve(ctx, sampleBatch(day)[:1])
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if err := warehouse.NewPartitionManager(pool).EnsureRange(ctx, day, day); err != nil {
			t.Fatalf("EnsureRange failed: %v", err)
		}
		if _, err := warehouse.NewFactWriter(pool, batchID, "CSV").Write(ctx, rows); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		tagged, err := vm.Tag(ctx, v.ID, batchID)
		if err != nil {
			t.Fatalf("Tag failed: %v", err)
		}
		if tagged == 0 {
			t.Error("Expected tagged rows > 0")
		}

		count, err := vm.RefreshRecordCount(ctx, v.ID)
		if err != nil {
			t.Fatalf("RefreshRecordCount failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected records_count 1, got %d", count)
		}

		current, err := vm.Current(ctx)
		if err != nil {
			t.Fatalf("Current failed: %v", err)
		}
		if current == nil {
			t.Fatal("Expected a current version")
		}
		if current.Number != v.Number {
			t.Errorf("Expected current version %s, got %s", v.Number, current.Number)
		}

		got, err := vm.Get(ctx, v.Number)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got == nil {
			t.Fatalf("Expected version %s to exist", v.Number)
		}
		if got.RecordsCount != 1 {
			t.Errorf("Expected RecordsCount 1, got %d", got.RecordsCount)
		}

		history, err := vm.List(ctx, 10)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(history) == 0 {
			t.Error("Expected version history")
		}

		stats, err := vm.Stats(ctx, v.ID)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.FactCount != 1 {
			t.Errorf("Expected FactCount 1, got %d", stats.FactCount)
		}
	})

	t.Run("LineageLifecycle", func(t *testing.T) {
		ls := warehouse.NewLineageStore(pool)
		batchID := uuid.NewString()

		id, err := ls.Start(ctx, &warehouse.LineageRecord{
			SourceSystem: "CSV",
			SourceFile:   "/tmp/retail.csv",
			TargetTable:  "fact_sales",
			JobName:      "integration",
			BatchID:      batchID,
			Metadata:     map[string]any{"source_name": "test"},
		})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if id == uuid.Nil {
			t.Fatal("Expected non-nil lineage id")
		}

		err = ls.Finish(ctx, id, "SUCCESS",
			warehouse.LineageCounts{Processed: 10, Inserted: 9, Rejected: 1}, "")
		if err != nil {
			t.Fatalf("Finish failed: %v", err)
		}

		rec, err := ls.GetByBatch(ctx, batchID)
		if err != nil {
			t.Fatalf("GetByBatch failed: %v", err)
		}
		if rec == nil {
			t.Fatalf("Expected lineage record for batch %s", batchID)
		}
		if rec.Status != "SUCCESS" {
			t.Errorf("Expected status SUCCESS, got %s", rec.Status)
		}
		if rec.RecordsProcessed != 10 || rec.RecordsInserted != 9 || rec.RecordsRejected != 1 {
			t.Errorf("Unexpected counts: %+v", rec)
		}
		if rec.EndTime == nil || rec.DurationSeconds == nil {
			t.Error("Expected end time and duration to be set")
		}

		recent, err := ls.Recent(ctx, 5)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(recent) == 0 {
			t.Error("Expected recent lineage records")
		}
	})
}
