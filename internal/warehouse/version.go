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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// Version types and statuses in data_versions.
const (
	VersionTypeFull        = "FULL"
	VersionTypeIncremental = "INCREMENTAL"

	VersionStatusActive   = "ACTIVE"
	VersionStatusArchived = "ARCHIVED"
)

// Version is one row of the data_versions registry.
type Version struct {
	ID           int
	Number       string
	Type         string
	Description  string
	CreatedAt    time.Time
	CreatedBy    string
	SourceFile   string
	FileHash     string
	RecordsCount int64
	ETLJobID     string
	Status       string
}

// VersionHistory is a Version with its archived-row count from
// v_version_history.
type VersionHistory struct {
	Version
	ArchivedRecords int64
}

// VersionComparison is one row of v_version_comparison. Previous fields are
// nil for the oldest version.
type VersionComparison struct {
	CurrentVersion  string
	CurrentRecords  int64
	CurrentDate     time.Time
	PreviousVersion *string
	PreviousRecords *int64
	PreviousDate    *time.Time
	RecordChange    *int64
}

// VersionStats summarizes the fact rows belonging to one version.
type VersionStats struct {
	FactCount       int64
	EarliestTxn     *time.Time
	LatestTxn       *time.Time
	UniqueCustomers int64
	UniqueProducts  int64
}

// NewVersionNumber builds a version number from a timestamp, always in UTC.
func NewVersionNumber(t time.Time) string {
	return t.UTC().Format("v20060102_150405")
}

// FileHash returns the first 16 hex characters of the MD5 of a file's
// contents. The hash identifies source files across loads; it is not a
// security boundary.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// VersionManager registers data versions and stamps loaded rows with them.
type VersionManager struct {
	db  db.Querier
	log zerolog.Logger
}

// NewVersionManager creates a version manager on the given connection.
func NewVersionManager(q db.Querier) *VersionManager {
	return &VersionManager{
		db:  q,
		log: logging.Component("versions"),
	}
}

const insertVersionSQL = `
INSERT INTO data_versions (version_number, version_type, description,
    source_file, file_hash, records_count, etl_job_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING version_id, created_at, created_by, status`

// Create registers a version. Number defaults to the current UTC timestamp
// and type to INCREMENTAL. Two runs starting within one second collide on
// the unique version number; the loser retries once with a random suffix.
func (vm *VersionManager) Create(ctx context.Context, v Version) (Version, error) {
	if v.Number == "" {
		v.Number = NewVersionNumber(time.Now())
	}
	if v.Type == "" {
		v.Type = VersionTypeIncremental
	}

	err := vm.insert(ctx, &v)
	if db.IsUniqueViolation(err) {
		u := uuid.New()
		retry := fmt.Sprintf("%s_%s", v.Number, hex.EncodeToString(u[:2]))
		vm.log.Debug().
			Str("version_number", v.Number).
			Str("retry", retry).
			Msg("Version number taken, retrying with suffix")
		v.Number = retry
		err = vm.insert(ctx, &v)
	}
	if err != nil {
		return Version{}, fmt.Errorf("failed to create version %s: %w", v.Number, err)
	}

	vm.log.Info().
		Int("version_id", v.ID).
		Str("version_number", v.Number).
		Msg("Created data version")
	return v, nil
}

func (vm *VersionManager) insert(ctx context.Context, v *Version) error {
	return vm.db.QueryRow(ctx, insertVersionSQL,
		v.Number, v.Type, nullable(v.Description), nullable(v.SourceFile),
		nullable(v.FileHash), v.RecordsCount, nullable(v.ETLJobID)).
		Scan(&v.ID, &v.CreatedAt, &v.CreatedBy, &v.Status)
}

// Tag stamps rows loaded by batchID with the version: fact rows by batch,
// plus any still-untagged current dimension rows. Returns how many rows were
// stamped in total.
func (vm *VersionManager) Tag(ctx context.Context, versionID int, batchID string) (int64, error) {
	var total int64

	tag, err := vm.db.Exec(ctx, `
        UPDATE fact_sales SET version_id = $1, version_created_at = NOW()
        WHERE version_id IS NULL AND batch_id = $2`, versionID, batchID)
	if err != nil {
		return total, fmt.Errorf("failed to tag fact_sales: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = vm.db.Exec(ctx, `
        UPDATE dim_customer SET version_id = $1, version_created_at = NOW()
        WHERE version_id IS NULL AND is_current`, versionID)
	if err != nil {
		return total, fmt.Errorf("failed to tag dim_customer: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = vm.db.Exec(ctx, `
        UPDATE dim_product SET version_id = $1, version_created_at = NOW()
        WHERE version_id IS NULL`, versionID)
	if err != nil {
		return total, fmt.Errorf("failed to tag dim_product: %w", err)
	}
	total += tag.RowsAffected()

	vm.log.Info().
		Int("version_id", versionID).
		Int64("rows", total).
		Msg("Tagged rows with version")
	return total, nil
}

// RefreshRecordCount recounts a version's fact rows and stores the result in
// data_versions. Returns the count.
func (vm *VersionManager) RefreshRecordCount(ctx context.Context, versionID int) (int64, error) {
	var n int64
	if err := vm.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM fact_sales WHERE version_id = $1", versionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count version rows: %w", err)
	}
	if _, err := vm.db.Exec(ctx,
		"UPDATE data_versions SET records_count = $1 WHERE version_id = $2", n, versionID); err != nil {
		return 0, fmt.Errorf("failed to update records_count: %w", err)
	}
	return n, nil
}

const selectVersionColumns = `
SELECT version_id, version_number, version_type, COALESCE(description, ''),
       created_at, created_by, COALESCE(source_file, ''),
       COALESCE(file_hash, ''), records_count, COALESCE(etl_job_id, ''), status`

// Current returns the latest ACTIVE version, or nil when none exists.
func (vm *VersionManager) Current(ctx context.Context) (*Version, error) {
	var v Version
	err := vm.db.QueryRow(ctx, selectVersionColumns+" FROM v_current_version").
		Scan(&v.ID, &v.Number, &v.Type, &v.Description, &v.CreatedAt, &v.CreatedBy,
			&v.SourceFile, &v.FileHash, &v.RecordsCount, &v.ETLJobID, &v.Status)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Get returns the version with the given number, or nil when not found.
func (vm *VersionManager) Get(ctx context.Context, number string) (*Version, error) {
	var v Version
	err := vm.db.QueryRow(ctx,
		selectVersionColumns+" FROM data_versions WHERE version_number = $1", number).
		Scan(&v.ID, &v.Number, &v.Type, &v.Description, &v.CreatedAt, &v.CreatedBy,
			&v.SourceFile, &v.FileHash, &v.RecordsCount, &v.ETLJobID, &v.Status)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns version history, newest first.
func (vm *VersionManager) List(ctx context.Context, limit int) ([]VersionHistory, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := vm.db.Query(ctx, `
        SELECT version_id, version_number, version_type, COALESCE(description, ''),
               created_at, created_by, COALESCE(source_file, ''),
               COALESCE(file_hash, ''), records_count, COALESCE(etl_job_id, ''),
               status, archived_records
        FROM v_version_history
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []VersionHistory
	for rows.Next() {
		var h VersionHistory
		if err := rows.Scan(&h.ID, &h.Number, &h.Type, &h.Description, &h.CreatedAt,
			&h.CreatedBy, &h.SourceFile, &h.FileHash, &h.RecordsCount, &h.ETLJobID,
			&h.Status, &h.ArchivedRecords); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// Compare returns version-over-version record deltas, newest first.
func (vm *VersionManager) Compare(ctx context.Context, limit int) ([]VersionComparison, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := vm.db.Query(ctx, `
        SELECT current_version, current_records, "current_date",
               previous_version, previous_records, previous_date, record_change
        FROM v_version_comparison
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comparisons []VersionComparison
	for rows.Next() {
		var c VersionComparison
		if err := rows.Scan(&c.CurrentVersion, &c.CurrentRecords, &c.CurrentDate,
			&c.PreviousVersion, &c.PreviousRecords, &c.PreviousDate, &c.RecordChange); err != nil {
			return nil, err
		}
		comparisons = append(comparisons, c)
	}
	return comparisons, rows.Err()
}

// Stats summarizes the fact rows stamped with a version.
func (vm *VersionManager) Stats(ctx context.Context, versionID int) (VersionStats, error) {
	var s VersionStats
	err := vm.db.QueryRow(ctx, `
        SELECT COUNT(*), MIN(transaction_datetime), MAX(transaction_datetime),
               COUNT(DISTINCT customer_key), COUNT(DISTINCT product_key)
        FROM fact_sales
        WHERE version_id = $1`, versionID).
		Scan(&s.FactCount, &s.EarliestTxn, &s.LatestTxn, &s.UniqueCustomers, &s.UniqueProducts)
	return s, err
}
