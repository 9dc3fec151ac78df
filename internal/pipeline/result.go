//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"time"

	"github.com/pgEdge/retail-dw/internal/quality"
)

// Status of a pipeline run. A run moves PENDING -> RUNNING and ends in
// exactly one of the terminal states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusPartial   Status = "PARTIAL"
	StatusCancelled Status = "CANCELLED"
)

// Checkpoint marks how far the run had progressed at a record-count
// boundary. Checkpoints are informational; runs restart from scratch.
type Checkpoint struct {
	Stage            string    `json:"stage"`
	RecordsProcessed int64     `json:"records_processed"`
	Timestamp        time.Time `json:"timestamp"`
}

// StageTimings is the wall time spent inside each pipeline stage. Extract
// covers the whole source read; the others accumulate per record or per
// batch, so they do not sum to the run duration.
type StageTimings struct {
	Extract   time.Duration
	Clean     time.Duration
	Transform time.Duration
	Resolve   time.Duration
	Load      time.Duration
}

// StageErrors counts records that each stage gave up on. Cleaning and
// transformation errors are per record; loading errors are per batch.
type StageErrors struct {
	Extraction     int64
	Cleaning       int64
	Transformation int64
	Loading        int64
}

// Result is the final accounting of one pipeline run.
type Result struct {
	JobID   string
	JobName string
	Status  Status

	RecordsExtracted   int64
	RecordsCleaned     int64
	RecordsTransformed int64
	RecordsLoaded      int64
	RecordsRejected    int64

	Errors StageErrors

	StartTime time.Time
	EndTime   time.Time

	Stages      StageTimings
	Checkpoints []Checkpoint

	// Version is the data version number the loaded rows were tagged
	// with, empty when versioning was skipped or failed.
	Version string

	// Quality summarizes the post-load checks, nil when they did not run.
	Quality *quality.Summary
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate is the percentage of extracted records that made it into
// the warehouse.
func (r *Result) SuccessRate() float64 {
	if r.RecordsExtracted == 0 {
		return 0
	}
	return float64(r.RecordsLoaded) / float64(r.RecordsExtracted) * 100
}

// RecordsPerSecond is the load throughput over the full run.
func (r *Result) RecordsPerSecond() float64 {
	d := r.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(r.RecordsLoaded) / d
}
