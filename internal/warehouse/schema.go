//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package warehouse implements the star-schema storage layer: DDL,
// partition management, dimension-key resolution, fact loading, the
// version registry, and the lineage audit trail.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/retail-dw/internal/db"
)

// GuestCustomerID is the sentinel customer for transactions that carry no
// customer id.
const GuestCustomerID = "GUEST"

// SchemaVersion is recorded in the platform metadata at setup time.
const SchemaVersion = "1.0"

// CoreTables lists the warehouse tables checked by connectivity tests.
var CoreTables = []string{
	"dim_date",
	"dim_customer",
	"dim_product",
	"fact_sales",
	"data_versions",
	"data_lineage",
	"data_quality_metrics",
}

// Schema SQL for the star schema. Table names are unqualified; the pool puts
// the warehouse schema first on search_path.
const createSchemaSQL = `
-- Date dimension, one row per calendar day
CREATE TABLE IF NOT EXISTS dim_date (
    date_key     INTEGER PRIMARY KEY,
    date_value   DATE NOT NULL UNIQUE,
    year         INTEGER NOT NULL,
    quarter      INTEGER NOT NULL,
    month        INTEGER NOT NULL,
    week         INTEGER NOT NULL,
    day_of_year  INTEGER NOT NULL,
    day_of_month INTEGER NOT NULL,
    day_of_week  INTEGER NOT NULL,
    month_name   VARCHAR(20) NOT NULL,
    day_name     VARCHAR(20) NOT NULL,
    quarter_name VARCHAR(10) NOT NULL,
    is_weekend   BOOLEAN NOT NULL DEFAULT FALSE,
    is_holiday   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_dim_date_year_month ON dim_date(year, month);

-- Customer dimension. At most one current row per customer_id; superseded
-- rows keep is_current = FALSE with an expiry_date.
CREATE TABLE IF NOT EXISTS dim_customer (
    customer_key       BIGSERIAL PRIMARY KEY,
    customer_id        VARCHAR(50) NOT NULL,
    country            VARCHAR(100) NOT NULL DEFAULT 'Unknown',
    effective_date     TIMESTAMP NOT NULL DEFAULT NOW(),
    expiry_date        TIMESTAMP,
    is_current         BOOLEAN NOT NULL DEFAULT TRUE,
    version_id         INTEGER,
    version_created_at TIMESTAMP,
    created_at         TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMP NOT NULL DEFAULT NOW(),
    data_source        VARCHAR(50) NOT NULL DEFAULT 'CSV'
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_dim_customer_current
    ON dim_customer(customer_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_dim_customer_country ON dim_customer(country);

-- Product dimension
CREATE TABLE IF NOT EXISTS dim_product (
    product_key        BIGSERIAL PRIMARY KEY,
    stock_code         VARCHAR(50) NOT NULL UNIQUE,
    description        VARCHAR(255) NOT NULL DEFAULT '',
    category           VARCHAR(100),
    subcategory        VARCHAR(100),
    is_active          BOOLEAN NOT NULL DEFAULT TRUE,
    is_gift            BOOLEAN NOT NULL DEFAULT FALSE,
    version_id         INTEGER,
    version_created_at TIMESTAMP,
    created_at         TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMP NOT NULL DEFAULT NOW(),
    data_source        VARCHAR(50) NOT NULL DEFAULT 'CSV'
);

CREATE INDEX IF NOT EXISTS idx_dim_product_category ON dim_product(category);

-- Version registry
CREATE TABLE IF NOT EXISTS data_versions (
    version_id     SERIAL PRIMARY KEY,
    version_number VARCHAR(30) NOT NULL UNIQUE,
    version_type   VARCHAR(20) NOT NULL DEFAULT 'INCREMENTAL',
    description    TEXT,
    created_at     TIMESTAMP NOT NULL DEFAULT NOW(),
    created_by     VARCHAR(100) NOT NULL DEFAULT CURRENT_USER,
    source_file    VARCHAR(500),
    file_hash      VARCHAR(16),
    records_count  BIGINT NOT NULL DEFAULT 0,
    etl_job_id     VARCHAR(100),
    status         VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    CONSTRAINT chk_version_status CHECK (status IN ('ACTIVE', 'ARCHIVED'))
);

CREATE INDEX IF NOT EXISTS idx_data_versions_status ON data_versions(status);
CREATE INDEX IF NOT EXISTS idx_data_versions_created ON data_versions(created_at);

-- Sales fact, range partitioned by calendar month on transaction_datetime.
-- The partition key must be part of the primary key. Indexes live on the
-- partitions, not the parent.
CREATE TABLE IF NOT EXISTS fact_sales (
    fact_sales_key       BIGSERIAL NOT NULL,
    date_key             INTEGER NOT NULL REFERENCES dim_date(date_key),
    customer_key         BIGINT NOT NULL REFERENCES dim_customer(customer_key),
    product_key          BIGINT NOT NULL REFERENCES dim_product(product_key),
    invoice_no           BIGINT NOT NULL,
    transaction_type     VARCHAR(30) NOT NULL DEFAULT 'SALE',
    quantity             INTEGER NOT NULL,
    unit_price           NUMERIC(10,2) NOT NULL,
    line_total           NUMERIC(15,2) NOT NULL,
    transaction_datetime TIMESTAMP NOT NULL,
    version_id           INTEGER,
    version_created_at   TIMESTAMP,
    batch_id             VARCHAR(100),
    created_at           TIMESTAMP NOT NULL DEFAULT NOW(),
    data_source          VARCHAR(50) NOT NULL DEFAULT 'CSV',
    PRIMARY KEY (fact_sales_key, transaction_datetime),
    CONSTRAINT chk_fact_quantity_positive CHECK (quantity > 0),
    CONSTRAINT chk_fact_unit_price CHECK (unit_price >= 0),
    CONSTRAINT chk_fact_line_total CHECK (line_total = quantity * unit_price),
    CONSTRAINT chk_fact_transaction_type CHECK (transaction_type IN (
        'SALE', 'RETURN', 'FEE', 'FEE_REVERSAL',
        'SHIPPING_CHARGE', 'SHIPPING_REFUND', 'DISCOUNT', 'DISCOUNT_REVERSAL',
        'DONATION', 'ADJUSTMENT', 'ADJUSTMENT_IN', 'ADJUSTMENT_OUT',
        'VOUCHER_SALE', 'VOUCHER_REDEMPTION', 'SERVICE'))
) PARTITION BY RANGE (transaction_datetime);

-- Rows outside every monthly partition land here instead of failing
CREATE TABLE IF NOT EXISTS fact_sales_default PARTITION OF fact_sales DEFAULT;

CREATE INDEX IF NOT EXISTS idx_fact_sales_default_txn_datetime
    ON fact_sales_default(transaction_datetime);
CREATE INDEX IF NOT EXISTS idx_fact_sales_default_customer_key
    ON fact_sales_default(customer_key);
CREATE INDEX IF NOT EXISTS idx_fact_sales_default_product_key
    ON fact_sales_default(product_key);

-- Fact rows moved out of fact_sales by version cleanup
CREATE TABLE IF NOT EXISTS fact_sales_archive (
    archive_id           BIGSERIAL PRIMARY KEY,
    fact_sales_key       BIGINT NOT NULL,
    date_key             INTEGER,
    customer_key         BIGINT,
    product_key          BIGINT,
    invoice_no           BIGINT,
    transaction_type     VARCHAR(30),
    quantity             INTEGER,
    unit_price           NUMERIC(10,2),
    line_total           NUMERIC(15,2),
    transaction_datetime TIMESTAMP,
    version_id           INTEGER,
    batch_id             VARCHAR(100),
    data_source          VARCHAR(50),
    archived_at          TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fact_sales_archive_version
    ON fact_sales_archive(version_id);

-- Run-level audit trail
CREATE TABLE IF NOT EXISTS data_lineage (
    lineage_id        UUID PRIMARY KEY,
    source_system     VARCHAR(100) NOT NULL,
    source_table      VARCHAR(100),
    source_file       VARCHAR(500),
    target_table      VARCHAR(100) NOT NULL,
    etl_job_name      VARCHAR(100) NOT NULL,
    batch_id          VARCHAR(100) NOT NULL,
    records_processed BIGINT NOT NULL DEFAULT 0,
    records_inserted  BIGINT NOT NULL DEFAULT 0,
    records_updated   BIGINT NOT NULL DEFAULT 0,
    records_rejected  BIGINT NOT NULL DEFAULT 0,
    start_time        TIMESTAMP NOT NULL,
    end_time          TIMESTAMP,
    duration_seconds  INTEGER,
    status            VARCHAR(20) NOT NULL DEFAULT 'RUNNING',
    error_message     VARCHAR(1000),
    job_metadata      JSONB
);

CREATE INDEX IF NOT EXISTS idx_data_lineage_batch ON data_lineage(batch_id);
CREATE INDEX IF NOT EXISTS idx_data_lineage_target ON data_lineage(target_table);
CREATE INDEX IF NOT EXISTS idx_data_lineage_start ON data_lineage(start_time);
CREATE INDEX IF NOT EXISTS idx_data_lineage_status ON data_lineage(status);

-- Quality measurements per run
CREATE TABLE IF NOT EXISTS data_quality_metrics (
    metric_id        UUID PRIMARY KEY,
    table_name       VARCHAR(100) NOT NULL,
    column_name      VARCHAR(100),
    metric_name      VARCHAR(100) NOT NULL,
    metric_value     NUMERIC(15,4) NOT NULL,
    threshold_value  NUMERIC(15,4),
    is_threshold_met BOOLEAN,
    batch_id         VARCHAR(100) NOT NULL,
    measured_at      TIMESTAMP NOT NULL DEFAULT NOW(),
    details          JSONB
);

CREATE INDEX IF NOT EXISTS idx_quality_table_metric
    ON data_quality_metrics(table_name, metric_name);
CREATE INDEX IF NOT EXISTS idx_quality_batch ON data_quality_metrics(batch_id);
CREATE INDEX IF NOT EXISTS idx_quality_measured ON data_quality_metrics(measured_at);

-- Views over the version registry
CREATE OR REPLACE VIEW v_current_version AS
SELECT version_id, version_number, version_type, description, created_at,
       created_by, source_file, file_hash, records_count, etl_job_id, status
FROM data_versions
WHERE status = 'ACTIVE'
ORDER BY created_at DESC, version_id DESC
LIMIT 1;

CREATE OR REPLACE VIEW v_version_history AS
SELECT v.version_id, v.version_number, v.version_type, v.description,
       v.created_at, v.created_by, v.source_file, v.file_hash,
       v.records_count, v.etl_job_id, v.status,
       COUNT(a.archive_id) AS archived_records
FROM data_versions v
LEFT JOIN fact_sales_archive a ON a.version_id = v.version_id
GROUP BY v.version_id
ORDER BY v.created_at DESC, v.version_id DESC;

CREATE OR REPLACE VIEW v_version_comparison AS
SELECT v.version_number AS current_version,
       v.records_count AS current_records,
       v.created_at AS "current_date",
       LAG(v.version_number) OVER w AS previous_version,
       LAG(v.records_count) OVER w AS previous_records,
       LAG(v.created_at) OVER w AS previous_date,
       v.records_count - LAG(v.records_count) OVER w AS record_change
FROM data_versions v
WINDOW w AS (ORDER BY v.created_at, v.version_id)
ORDER BY v.created_at DESC;

-- Guest sentinel for transactions without a customer id
INSERT INTO dim_customer (customer_id, country)
VALUES ('GUEST', 'Unknown')
ON CONFLICT (customer_id) WHERE is_current DO NOTHING;
`

// populateDatesSQL fills dim_date for an inclusive date range. Week and
// day_of_week follow ISO-8601 (Monday = 1).
const populateDatesSQL = `
INSERT INTO dim_date (date_key, date_value, year, quarter, month, week,
    day_of_year, day_of_month, day_of_week, month_name, day_name,
    quarter_name, is_weekend, is_holiday)
SELECT TO_CHAR(d, 'YYYYMMDD')::INTEGER,
       d::DATE,
       EXTRACT(YEAR FROM d)::INTEGER,
       EXTRACT(QUARTER FROM d)::INTEGER,
       EXTRACT(MONTH FROM d)::INTEGER,
       EXTRACT(WEEK FROM d)::INTEGER,
       EXTRACT(DOY FROM d)::INTEGER,
       EXTRACT(DAY FROM d)::INTEGER,
       EXTRACT(ISODOW FROM d)::INTEGER,
       TRIM(TO_CHAR(d, 'Month')),
       TRIM(TO_CHAR(d, 'Day')),
       'Q' || EXTRACT(QUARTER FROM d)::INTEGER,
       EXTRACT(ISODOW FROM d) >= 6,
       FALSE
FROM generate_series($1::DATE, $2::DATE, '1 day') AS d
ON CONFLICT (date_key) DO NOTHING
`

// CreateSchema creates the warehouse schema and all star-schema objects.
// It is idempotent.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema != "" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
	}
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create warehouse objects: %w", err)
	}
	return nil
}

// DropSchema removes the warehouse schema and everything in it.
func DropSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema == "" {
		return fmt.Errorf("schema name is required")
	}
	sql := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{schema}.Sanitize())
	_, err := pool.Exec(ctx, sql)
	return err
}

// PopulateDateDimension fills dim_date for [from, to]. Existing days are
// left untouched.
func PopulateDateDimension(ctx context.Context, q db.Querier, from, to time.Time) (int64, error) {
	if to.Before(from) {
		from, to = to, from
	}
	tag, err := q.Exec(ctx, populateDatesSQL,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to populate dim_date: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SchemaExists reports whether the warehouse schema is present.
func SchemaExists(ctx context.Context, q db.Querier, schema string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)",
		schema).Scan(&exists)
	return exists, err
}

// TableRowCounts returns the row count of each core table.
func TableRowCounts(ctx context.Context, q db.Querier) (map[string]int64, error) {
	counts := make(map[string]int64, len(CoreTables))
	for _, table := range CoreTables {
		var n int64
		if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
