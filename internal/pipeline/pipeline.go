//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline orchestrates one ETL run end to end: extract rows from
// a CSV source, clean and transform them, resolve dimension keys, and load
// the survivors into fact_sales in batches, with versioning, lineage, and
// post-load quality checks around the core loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/etl"
	"github.com/pgEdge/retail-dw/internal/logging"
	"github.com/pgEdge/retail-dw/internal/quality"
	"github.com/pgEdge/retail-dw/internal/warehouse"
)

const stageExtract = "extract"

// Config controls one pipeline run.
type Config struct {
	// SourceName labels the source in logs and lineage metadata.
	SourceName string

	// SourcePath is the CSV file to load.
	SourcePath string

	// JobName identifies the job in lineage and logs. Defaults to
	// "retail_etl".
	JobName string

	// DataSource is the lineage source-system label. Defaults to "CSV".
	DataSource string

	// BatchSize is how many transactions are resolved and written per
	// warehouse round trip. Defaults to 1000.
	BatchSize int

	// ChunkSize is the reader chunk size. Defaults to BatchSize.
	ChunkSize int

	// MaxRetries and RetryDelay govern retries of warehouse writes.
	// Default 3 attempts starting at one second.
	MaxRetries int
	RetryDelay time.Duration

	// QualityThreshold is the overall score, in percent, under which the
	// run logs a quality warning. Defaults to 95.
	QualityThreshold float64

	// SampleSize caps how many loaded rows are kept in memory for the
	// post-load quality checks. Defaults to 1000.
	SampleSize int

	// CheckpointInterval is how many extracted records pass between
	// progress checkpoints. Defaults to 5000.
	CheckpointInterval int

	// ReportInterval is how often the progress reporter logs. Defaults
	// to 30s; negative disables it.
	ReportInterval time.Duration

	// AnomalyWindowDays bounds the quality-history window scanned for
	// score drops after the run. Defaults to 7.
	AnomalyWindowDays int

	// DryRun runs extract, clean, and transform but never touches the
	// warehouse.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.JobName == "" {
		c.JobName = "retail_etl"
	}
	if c.DataSource == "" {
		c.DataSource = "CSV"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = c.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 95
	}
	if c.SampleSize <= 0 {
		c.SampleSize = 1000
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = 5000
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = 30 * time.Second
	}
	if c.AnomalyWindowDays <= 0 {
		c.AnomalyWindowDays = 7
	}
	return c
}

// batchLoader writes one resolved batch to the warehouse. nil means the
// batch is counted and discarded (dry runs).
type batchLoader func(ctx context.Context, batch []*etl.Transaction) error

// Pipeline runs one ETL job. Each Pipeline carries its own job ID and is
// good for a single Run.
type Pipeline struct {
	cfg    Config
	db     db.Querier
	dims   *cache.DimensionCache
	alerts *quality.AlertManager
	log    zerolog.Logger

	jobID string

	extracted   atomic.Int64
	cleaned     atomic.Int64
	transformed atomic.Int64
	loaded      atomic.Int64

	cleaningErrors  atomic.Int64
	transformErrors atomic.Int64
	loadingErrors   atomic.Int64

	cleanNs     atomic.Int64
	transformNs atomic.Int64
	resolveNs   atomic.Int64
	loadNs      atomic.Int64

	mu          sync.Mutex
	status      Status
	checkpoints []Checkpoint

	// sample holds flattened loaded rows for the quality checks; only
	// the Run goroutine touches it.
	sample []quality.Row

	startTime time.Time
}

// New builds a pipeline for one run. q may be nil for dry runs; dims may
// be nil to resolve without a shared cache.
func New(cfg Config, q db.Querier, dims *cache.DimensionCache) *Pipeline {
	cfg = cfg.withDefaults()
	jobID := uuid.New().String()
	return &Pipeline{
		cfg:    cfg,
		db:     q,
		dims:   dims,
		alerts: quality.NewAlertManager(nil),
		jobID:  jobID,
		status: StatusPending,
		log:    logging.WithJob(jobID, cfg.JobName),
	}
}

// JobID is the batch identifier stamped on every row this run loads.
func (p *Pipeline) JobID() string { return p.jobID }

// Status is the run's current state, safe to read from other goroutines.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Run executes the job and blocks until it reaches a terminal state. The
// returned Result is populated on every path, including failures.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.startTime = time.Now()
	p.setStatus(StatusRunning)

	source := etl.NewCSVSource(p.cfg.SourceName, p.cfg.SourcePath, p.cfg.ChunkSize)
	if err := source.Validate(); err != nil {
		p.setStatus(StatusFailed)
		return p.result(source), fmt.Errorf("validate source: %w", err)
	}

	if p.cfg.DryRun {
		return p.runDry(ctx, source)
	}

	lineage := warehouse.NewLineageStore(p.db)
	versions := warehouse.NewVersionManager(p.db)
	resolver := warehouse.NewResolver(p.db, p.dims)
	writer := warehouse.NewFactWriter(p.db, p.jobID, p.cfg.DataSource)
	partitions := warehouse.NewPartitionManager(p.db)

	lineageID := p.startLineage(ctx, lineage)
	version := p.createVersion(ctx, versions)

	runErr := p.process(ctx, source, func(ctx context.Context, batch []*etl.Transaction) error {
		return p.loadBatch(ctx, batch, resolver, writer, partitions)
	})

	status := p.terminalStatus(runErr)

	var qsum *quality.Summary
	if runErr == nil {
		if version.ID != 0 {
			p.finalizeVersion(ctx, versions, version)
		}
		qsum = p.checkQuality(ctx)
	}

	p.finishLineage(ctx, lineage, lineageID, status, runErr)
	p.setStatus(status)

	res := p.result(source)
	res.Version = version.Number
	res.Quality = qsum
	p.logSummary(res)

	if runErr != nil {
		return res, fmt.Errorf("pipeline run %s: %w", p.jobID, runErr)
	}
	return res, nil
}

// runDry exercises extract, clean, and transform and reports what a real
// run would have attempted to load.
func (p *Pipeline) runDry(ctx context.Context, source *etl.CSVSource) (*Result, error) {
	runErr := p.process(ctx, source, nil)

	status := StatusSuccess
	if runErr != nil {
		status = p.terminalStatus(runErr)
	}
	p.setStatus(status)

	res := p.result(source)
	p.log.Info().
		Int64("would_load", res.RecordsTransformed).
		Msg("Dry run complete, warehouse untouched")
	p.logSummary(res)

	if runErr != nil {
		return res, fmt.Errorf("pipeline dry run %s: %w", p.jobID, runErr)
	}
	return res, nil
}

// process drives the staged loop: a reader goroutine streams records into
// a bounded channel while this goroutine cleans, transforms, batches, and
// loads. Cancellation is honored at batch boundaries so no partial batch
// is ever written. The reader is always joined before process returns, so
// the source metrics are safe to read afterwards.
func (p *Pipeline) process(ctx context.Context, source *etl.CSVSource, load batchLoader) error {
	cleaner := etl.NewCleaner()
	transformer := etl.NewTransformer()

	prodCtx, stopProducer := context.WithCancel(ctx)

	records := make(chan etl.RawRecord, p.cfg.BatchSize*2)
	readDone := make(chan error, 1)
	go func() {
		readDone <- source.Records(prodCtx, records)
	}()

	if p.cfg.ReportInterval > 0 {
		repCtx, stopReporter := context.WithCancel(ctx)
		defer stopReporter()
		go p.reportProgress(repCtx)
	}

	interval := int64(p.cfg.CheckpointInterval)
	batch := make([]*etl.Transaction, 0, p.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var err error
		if load != nil {
			err = load(ctx, batch)
		}
		batch = batch[:0]
		return err
	}

	consume := func() error {
		for rec := range records {
			n := p.extracted.Add(1)

			if tx := p.prepare(rec, cleaner, transformer); tx != nil {
				batch = append(batch, tx)
			}

			if n%interval == 0 {
				p.checkpoint(stageExtract, n)
			}

			if len(batch) >= p.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	runErr := consume()

	stopProducer()
	for range records {
		// drain so the reader can close out
	}
	readErr := <-readDone

	if runErr != nil {
		return runErr
	}
	if readErr != nil {
		return fmt.Errorf("read source: %w", readErr)
	}
	if err := flush(); err != nil {
		return err
	}

	// Rows the pre-check dropped never reached the channel but were
	// still read from the source.
	p.extracted.Add(source.Metrics().RecordsInvalid)
	return nil
}

// prepare runs one record through cleaning and transformation, returning
// nil when either stage rejects it.
func (p *Pipeline) prepare(raw etl.RawRecord, cleaner *etl.Cleaner, transformer *etl.Transformer) *etl.Transaction {
	start := time.Now()
	rec, err := cleaner.Clean(raw)
	p.cleanNs.Add(time.Since(start).Nanoseconds())
	if err != nil {
		p.cleaningErrors.Add(1)
		return nil
	}
	p.cleaned.Add(1)

	start = time.Now()
	tx, err := transformer.Transform(rec)
	p.transformNs.Add(time.Since(start).Nanoseconds())
	if err != nil {
		p.transformErrors.Add(1)
		return nil
	}
	p.transformed.Add(1)
	return tx
}

// loadBatch resolves dimension keys for one batch, makes sure the target
// partitions exist, and writes the facts. Writes retry with backoff; an
// error here aborts the run.
func (p *Pipeline) loadBatch(ctx context.Context, batch []*etl.Transaction, resolver *warehouse.Resolver, writer *warehouse.FactWriter, partitions *warehouse.PartitionManager) error {
	start := time.Now()
	rows, rejected, err := resolver.Resolve(ctx, batch)
	p.resolveNs.Add(time.Since(start).Nanoseconds())
	if err != nil {
		p.loadingErrors.Add(1)
		return fmt.Errorf("resolve batch: %w", err)
	}
	if rejected > 0 {
		p.log.Debug().Int("rejected", rejected).Msg("Rows dropped during dimension resolution")
	}
	if len(rows) == 0 {
		return nil
	}

	from, to := txnBounds(rows)

	start = time.Now()
	defer func() { p.loadNs.Add(time.Since(start).Nanoseconds()) }()

	err = db.WithRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, "ensure partitions", func() error {
		return partitions.EnsureRange(ctx, from, to)
	})
	if err != nil {
		p.loadingErrors.Add(1)
		return err
	}

	var written int
	err = db.WithRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryDelay, "write facts", func() error {
		n, werr := writer.Write(ctx, rows)
		written = n
		return werr
	})
	if err != nil {
		p.loadingErrors.Add(1)
		return err
	}

	p.loaded.Add(int64(written))
	p.collectSample(rows)
	return nil
}

// terminalStatus classifies how the run ended. Rejected records demote a
// completed run to PARTIAL, even when nothing loaded at all.
func (p *Pipeline) terminalStatus(runErr error) Status {
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			return StatusCancelled
		}
		return StatusFailed
	}

	extracted := p.extracted.Load()
	if extracted == 0 || p.loaded.Load() == extracted {
		return StatusSuccess
	}
	return StatusPartial
}

func (p *Pipeline) checkpoint(stage string, n int64) {
	cp := Checkpoint{Stage: stage, RecordsProcessed: n, Timestamp: time.Now().UTC()}
	p.mu.Lock()
	p.checkpoints = append(p.checkpoints, cp)
	p.mu.Unlock()
	p.log.Debug().Str("stage", stage).Int64("records", n).Msg("Checkpoint")
}

// collectSample keeps the first SampleSize loaded rows, flattened into
// the column maps the quality rules read.
func (p *Pipeline) collectSample(rows []warehouse.FactRow) {
	for i := range rows {
		if len(p.sample) >= p.cfg.SampleSize {
			return
		}
		p.sample = append(p.sample, sampleRow(&rows[i]))
	}
}

// sampleRow flattens a fact row for the quality checks. Guest fallbacks
// surface a nil customer_key so completeness sees what the source
// actually carried, not the sentinel the resolver substituted.
func sampleRow(r *warehouse.FactRow) quality.Row {
	row := quality.Row{
		"invoice_no":           r.InvoiceNo,
		"product_key":          r.ProductKey,
		"quantity":             r.Quantity,
		"unit_price":           r.UnitPrice,
		"transaction_datetime": r.TransactionAt,
	}
	if r.CustomerID == "" || r.CustomerID == warehouse.GuestCustomerID {
		row["customer_key"] = nil
	} else {
		row["customer_key"] = r.CustomerKey
	}
	return row
}

// checkQuality runs the post-load checks over the in-memory sample. Any
// failure here is logged and alerted, never fatal to the run.
func (p *Pipeline) checkQuality(ctx context.Context) *quality.Summary {
	if len(p.sample) == 0 {
		return nil
	}

	mon := quality.NewMonitor(p.db, p.jobID)
	if len(mon.CheckTable(p.sample, "fact_sales")) == 0 {
		return nil
	}
	if err := mon.Persist(ctx); err != nil {
		p.log.Warn().Err(err).Msg("Quality metrics not persisted")
	}

	sum := mon.Summary()
	if sum.OverallScore < p.cfg.QualityThreshold {
		p.log.Warn().
			Float64("score", sum.OverallScore).
			Float64("threshold", p.cfg.QualityThreshold).
			Msg("Quality score below configured threshold")
	}
	p.alerts.CheckAndAlert(sum, "fact_sales")

	anomalies, err := mon.DetectAnomalies(ctx, p.cfg.AnomalyWindowDays, 0)
	if err != nil {
		p.log.Warn().Err(err).Msg("Anomaly detection failed")
	} else {
		p.alerts.CheckAnomalies(anomalies)
	}
	return &sum
}

// startLineage opens the lineage record. Lineage is best effort: a
// failure here is logged and the run proceeds untracked.
func (p *Pipeline) startLineage(ctx context.Context, store *warehouse.LineageStore) uuid.UUID {
	id, err := store.Start(ctx, &warehouse.LineageRecord{
		SourceSystem: p.cfg.DataSource,
		SourceFile:   p.cfg.SourcePath,
		TargetTable:  "fact_sales",
		JobName:      p.cfg.JobName,
		BatchID:      p.jobID,
		Metadata: map[string]any{
			"source_name": p.cfg.SourceName,
			"batch_size":  p.cfg.BatchSize,
		},
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("Recording lineage start failed")
		return uuid.Nil
	}
	return id
}

// finishLineage writes the terminal lineage row. It must land even when
// the run's context was cancelled, so it runs on a detached context.
func (p *Pipeline) finishLineage(ctx context.Context, store *warehouse.LineageStore, id uuid.UUID, status Status, runErr error) {
	if id == uuid.Nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	extracted := p.extracted.Load()
	loaded := p.loaded.Load()
	counts := warehouse.LineageCounts{
		Processed: extracted,
		Inserted:  loaded,
		Rejected:  extracted - loaded,
	}
	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := store.Finish(ctx, id, string(status), counts, errMsg); err != nil {
		p.log.Warn().Err(err).Msg("Recording lineage completion failed")
	}
}

// createVersion registers a data version for this load. Versioning is
// best effort: on failure the run continues unversioned.
func (p *Pipeline) createVersion(ctx context.Context, vm *warehouse.VersionManager) warehouse.Version {
	hash, err := warehouse.FileHash(p.cfg.SourcePath)
	if err != nil {
		p.log.Warn().Err(err).Msg("Hashing source file failed")
	}

	v, err := vm.Create(ctx, warehouse.Version{
		Description: "ETL load from " + filepath.Base(p.cfg.SourcePath),
		SourceFile:  p.cfg.SourcePath,
		FileHash:    hash,
		ETLJobID:    p.jobID,
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("Creating data version failed, continuing unversioned")
		return warehouse.Version{}
	}
	return v
}

// finalizeVersion stamps the loaded rows with the version and backfills
// its record count.
func (p *Pipeline) finalizeVersion(ctx context.Context, vm *warehouse.VersionManager, v warehouse.Version) {
	tagged, err := vm.Tag(ctx, v.ID, p.jobID)
	if err != nil {
		p.log.Warn().Err(err).Msg("Tagging rows with version failed")
		return
	}
	if _, err := vm.RefreshRecordCount(ctx, v.ID); err != nil {
		p.log.Warn().Err(err).Msg("Refreshing version record count failed")
	}
	p.log.Info().
		Str("version", v.Number).
		Int64("rows_tagged", tagged).
		Msg("Load tagged with data version")
}

func (p *Pipeline) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loaded := p.loaded.Load()
			rate := 0.0
			if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
				rate = float64(loaded) / elapsed
			}
			p.log.Info().
				Int64("extracted", p.extracted.Load()).
				Int64("cleaned", p.cleaned.Load()).
				Int64("transformed", p.transformed.Load()).
				Int64("loaded", loaded).
				Float64("records_per_sec", math.Round(rate*100)/100).
				Msg("Pipeline progress")
		}
	}
}

// result snapshots the counters into a Result. Safe to call once the run
// loop has stopped.
func (p *Pipeline) result(source *etl.CSVSource) *Result {
	src := source.Metrics()
	extracted := p.extracted.Load()
	loaded := p.loaded.Load()
	rejected := extracted - loaded
	if p.cfg.DryRun {
		// Nothing loads on a dry run; rejected is what clean and
		// transform dropped.
		rejected = extracted - p.transformed.Load()
	}
	if rejected < 0 {
		rejected = 0
	}

	p.mu.Lock()
	status := p.status
	cps := make([]Checkpoint, len(p.checkpoints))
	copy(cps, p.checkpoints)
	p.mu.Unlock()

	return &Result{
		JobID:              p.jobID,
		JobName:            p.cfg.JobName,
		Status:             status,
		RecordsExtracted:   extracted,
		RecordsCleaned:     p.cleaned.Load(),
		RecordsTransformed: p.transformed.Load(),
		RecordsLoaded:      loaded,
		RecordsRejected:    rejected,
		Errors: StageErrors{
			Extraction:     src.RecordsInvalid,
			Cleaning:       p.cleaningErrors.Load(),
			Transformation: p.transformErrors.Load(),
			Loading:        p.loadingErrors.Load(),
		},
		StartTime: p.startTime,
		EndTime:   time.Now(),
		Stages: StageTimings{
			Extract:   src.Duration(),
			Clean:     time.Duration(p.cleanNs.Load()),
			Transform: time.Duration(p.transformNs.Load()),
			Resolve:   time.Duration(p.resolveNs.Load()),
			Load:      time.Duration(p.loadNs.Load()),
		},
		Checkpoints: cps,
	}
}

func (p *Pipeline) logSummary(res *Result) {
	evt := p.log.Info()
	if res.Status == StatusFailed {
		evt = p.log.Error()
	}
	evt.Str("status", string(res.Status)).
		Int64("extracted", res.RecordsExtracted).
		Int64("cleaned", res.RecordsCleaned).
		Int64("transformed", res.RecordsTransformed).
		Int64("loaded", res.RecordsLoaded).
		Int64("rejected", res.RecordsRejected).
		Float64("success_rate", math.Round(res.SuccessRate()*100)/100).
		Float64("records_per_sec", math.Round(res.RecordsPerSecond()*100)/100).
		Dur("duration", res.Duration()).
		Msg("Pipeline run finished")
}

func txnBounds(rows []warehouse.FactRow) (time.Time, time.Time) {
	from, to := rows[0].TransactionAt, rows[0].TransactionAt
	for i := range rows[1:] {
		t := rows[i+1].TransactionAt
		if t.Before(from) {
			from = t
		}
		if t.After(to) {
			to = t
		}
	}
	return from, to
}
