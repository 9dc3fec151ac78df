package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// factColumns are the columns fed to COPY. The fact key and created_at come
// from table defaults; version_id stays NULL until the run is versioned.
var factColumns = []string{
	"date_key", "customer_key", "product_key", "invoice_no",
	"transaction_type", "quantity", "unit_price", "line_total",
	"transaction_datetime", "batch_id", "data_source",
}

// WriterMetrics counts fact-writer activity across batches.
type WriterMetrics struct {
	RowsWritten int64
	RowsFailed  int64
	Batches     int64
	Fallbacks   int64
}

// FactWriter persists resolved fact rows. Each batch goes through COPY in a
// single transaction; when COPY fails the batch is retried row by row so one
// bad row only costs itself.
type FactWriter struct {
	db      db.Querier
	batchID string
	source  string
	log     zerolog.Logger
	metrics WriterMetrics
}

// NewFactWriter creates a writer stamping rows with the given batch id and
// data source.
func NewFactWriter(q db.Querier, batchID, dataSource string) *FactWriter {
	if dataSource == "" {
		dataSource = "CSV"
	}
	return &FactWriter{
		db:      q,
		batchID: batchID,
		source:  dataSource,
		log:     logging.Component("loader").With().Str("batch_id", batchID).Logger(),
	}
}

// Metrics returns a snapshot of writer counters.
func (w *FactWriter) Metrics() WriterMetrics {
	return w.metrics
}

// Write persists a batch and returns the number of rows that made it in.
// Rows that fail the per-row fallback are logged and skipped; the error
// return is reserved for context cancellation and connection-level failures.
func (w *FactWriter) Write(ctx context.Context, rows []FactRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	w.metrics.Batches++

	n, err := w.copyRows(ctx, rows)
	if err == nil {
		w.metrics.RowsWritten += n
		w.log.Debug().Int64("rows", n).Msg("Batch copied")
		return int(n), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}

	w.log.Warn().Err(err).Int("rows", len(rows)).Msg("COPY failed, retrying rows individually")
	w.metrics.Fallbacks++

	inserted := 0
	for i := range rows {
		if err := ctx.Err(); err != nil {
			w.metrics.RowsWritten += int64(inserted)
			return inserted, err
		}
		if err := w.insertRow(ctx, &rows[i]); err != nil {
			w.metrics.RowsFailed++
			w.log.Info().
				Err(err).
				Int("invoice", rows[i].InvoiceNo).
				Str("stock_code", rows[i].StockCode).
				Msg("Fact row rejected")
			continue
		}
		inserted++
	}
	w.metrics.RowsWritten += int64(inserted)
	return inserted, nil
}

func (w *FactWriter) copyRows(ctx context.Context, rows []FactRow) (int64, error) {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	src := &factSource{rows: rows, batchID: w.batchID, source: w.source}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"fact_sales"}, factColumns, src)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

const insertFactSQL = `
INSERT INTO fact_sales (date_key, customer_key, product_key, invoice_no,
    transaction_type, quantity, unit_price, line_total, transaction_datetime,
    batch_id, data_source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (w *FactWriter) insertRow(ctx context.Context, r *FactRow) error {
	_, err := w.db.Exec(ctx, insertFactSQL,
		int32(r.DateKey), r.CustomerKey, r.ProductKey, int64(r.InvoiceNo),
		r.TransactionType, int32(r.Quantity), db.Numeric(r.UnitPrice),
		db.Numeric(r.LineTotal), r.TransactionAt, w.batchID, w.source)
	return err
}

// factSource feeds FactRows to pgx's COPY protocol.
type factSource struct {
	rows    []FactRow
	idx     int
	batchID string
	source  string
}

func (s *factSource) Next() bool {
	s.idx++
	return s.idx <= len(s.rows)
}

func (s *factSource) Values() ([]any, error) {
	r := s.rows[s.idx-1]
	return []any{
		int32(r.DateKey),
		r.CustomerKey,
		r.ProductKey,
		int64(r.InvoiceNo),
		r.TransactionType,
		int32(r.Quantity),
		db.Numeric(r.UnitPrice),
		db.Numeric(r.LineTotal),
		r.TransactionAt,
		s.batchID,
		s.source,
	}, nil
}

func (s *factSource) Err() error {
	return nil
}
