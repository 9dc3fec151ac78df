//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// Lineage statuses. A record starts RUNNING and ends in one of the terminal
// states; the terminal strings match the job states reported by the pipeline.
const (
	LineageStatusRunning   = "RUNNING"
	LineageStatusSuccess   = "SUCCESS"
	LineageStatusFailed    = "FAILED"
	LineageStatusPartial   = "PARTIAL"
	LineageStatusCancelled = "CANCELLED"
)

// LineageRecord is one row of data_lineage: a single source-to-warehouse
// movement with its record counts and outcome.
type LineageRecord struct {
	ID               uuid.UUID
	SourceSystem     string
	SourceTable      string
	SourceFile       string
	TargetTable      string
	JobName          string
	BatchID          string
	RecordsProcessed int64
	RecordsInserted  int64
	RecordsUpdated   int64
	RecordsRejected  int64
	StartTime        time.Time
	EndTime          *time.Time
	DurationSeconds  *int
	Status           string
	ErrorMessage     string
	Metadata         map[string]any
}

// LineageStore tracks data movement in the data_lineage table.
//
// Lineage is advisory: the pipeline treats write failures here as warnings,
// never as job failures.
type LineageStore struct {
	db  db.Querier
	log zerolog.Logger
}

// NewLineageStore creates a lineage store on the given connection.
func NewLineageStore(q db.Querier) *LineageStore {
	return &LineageStore{
		db:  q,
		log: logging.Component("lineage"),
	}
}

// Start records the beginning of a data movement. The record gets a fresh
// lineage_id, RUNNING status, and zeroed counts; Finish fills in the rest.
func (ls *LineageStore) Start(ctx context.Context, rec *LineageRecord) (uuid.UUID, error) {
	rec.ID = uuid.New()
	rec.Status = LineageStatusRunning
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now().UTC()
	}

	var meta []byte
	if rec.Metadata != nil {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return uuid.Nil, fmt.Errorf("failed to encode lineage metadata: %w", err)
		}
	}

	_, err := ls.db.Exec(ctx, `
        INSERT INTO data_lineage (lineage_id, source_system, source_table,
            source_file, target_table, etl_job_name, batch_id, start_time,
            status, job_metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.SourceSystem, nullable(rec.SourceTable),
		nullable(rec.SourceFile), rec.TargetTable, rec.JobName, rec.BatchID,
		rec.StartTime, rec.Status, meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start lineage tracking: %w", err)
	}

	ls.log.Debug().
		Str("lineage_id", rec.ID.String()).
		Str("batch_id", rec.BatchID).
		Msg("Started lineage tracking")
	return rec.ID, nil
}

// LineageCounts carries the final record counts for Finish.
type LineageCounts struct {
	Processed int64
	Inserted  int64
	Updated   int64
	Rejected  int64
}

// Finish moves a lineage record to a terminal status with its final counts
// and duration.
func (ls *LineageStore) Finish(ctx context.Context, id uuid.UUID, status string,
	counts LineageCounts, errMsg string) error {

	end := time.Now().UTC()
	tag, err := ls.db.Exec(ctx, `
        UPDATE data_lineage
        SET records_processed = $2, records_inserted = $3, records_updated = $4,
            records_rejected = $5, end_time = $6,
            duration_seconds = EXTRACT(EPOCH FROM ($6 - start_time))::INTEGER,
            status = $7, error_message = $8
        WHERE lineage_id = $1`,
		id, counts.Processed, counts.Inserted, counts.Updated, counts.Rejected,
		end, status, nullable(truncateError(errMsg)))
	if err != nil {
		return fmt.Errorf("failed to finish lineage tracking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lineage record %s not found", id)
	}

	ls.log.Debug().
		Str("lineage_id", id.String()).
		Str("status", status).
		Int64("inserted", counts.Inserted).
		Int64("rejected", counts.Rejected).
		Msg("Finished lineage tracking")
	return nil
}

const selectLineageColumns = `
SELECT lineage_id, source_system, COALESCE(source_table, ''),
       COALESCE(source_file, ''), target_table, etl_job_name, batch_id,
       records_processed, records_inserted, records_updated, records_rejected,
       start_time, end_time, duration_seconds, status,
       COALESCE(error_message, '')`

// Recent returns lineage history, newest first.
func (ls *LineageStore) Recent(ctx context.Context, limit int) ([]LineageRecord, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := ls.db.Query(ctx,
		selectLineageColumns+" FROM data_lineage ORDER BY start_time DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []LineageRecord
	for rows.Next() {
		rec, err := scanLineage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByBatch returns the lineage record for a batch (job) ID, or nil when
// not found.
func (ls *LineageStore) GetByBatch(ctx context.Context, batchID string) (*LineageRecord, error) {
	row := ls.db.QueryRow(ctx,
		selectLineageColumns+" FROM data_lineage WHERE batch_id = $1", batchID)

	rec, err := scanLineage(row)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLineage(row rowScanner) (LineageRecord, error) {
	var rec LineageRecord
	err := row.Scan(&rec.ID, &rec.SourceSystem, &rec.SourceTable, &rec.SourceFile,
		&rec.TargetTable, &rec.JobName, &rec.BatchID, &rec.RecordsProcessed,
		&rec.RecordsInserted, &rec.RecordsUpdated, &rec.RecordsRejected,
		&rec.StartTime, &rec.EndTime, &rec.DurationSeconds, &rec.Status,
		&rec.ErrorMessage)
	return rec, err
}

// truncateError keeps error messages inside the VARCHAR(1000) column.
func truncateError(msg string) string {
	if len(msg) > 1000 {
		return msg[:997] + "..."
	}
	return msg
}
