package etl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TransformerMetrics counts transform outcomes across one run.
type TransformerMetrics struct {
	TotalRecords int64
	Successful   int64
	Failed       int64
}

// Transformer turns cleaned records into fact-ready transactions. All
// operations are deterministic and free of I/O.
type Transformer struct {
	metrics TransformerMetrics
}

func NewTransformer() *Transformer {
	return &Transformer{}
}

// Metrics returns a snapshot of the run counters.
func (t *Transformer) Metrics() TransformerMetrics {
	return t.metrics
}

// Transform derives the persisted shape: numeric invoice number with the
// credit prefix folded into a flag, absolute quantity and line total, the
// transaction date, and the classified transaction type.
func (t *Transformer) Transform(rec *Record) (*Transaction, error) {
	t.metrics.TotalRecords++

	if rec == nil {
		t.metrics.Failed++
		return nil, fmt.Errorf("nil record: %w", ErrMalformed)
	}
	if rec.InvoiceDate.IsZero() {
		t.metrics.Failed++
		return nil, fmt.Errorf("missing transaction datetime: %w", ErrMalformed)
	}

	invoiceNo, isCredit := parseInvoice(rec.InvoiceNo)

	qty := rec.Quantity
	unitPrice := rec.UnitPrice.Abs()
	lineTotalSigned := decimal.NewFromInt(int64(qty)).Mul(unitPrice)

	description := rec.Description
	if description == "" {
		description = "Unknown"
	}

	category, subcategory, isGift := Categorize(rec.StockCode, description)
	txType := ClassifyTransaction(category, isCredit, qty, lineTotalSigned)

	tx := &Transaction{
		InvoiceNo:       invoiceNo,
		IsCreditInvoice: isCredit,
		TransactionType: txType,
		Quantity:        abs(qty),
		UnitPrice:       unitPrice,
		LineTotal:       lineTotalSigned.Abs(),
		TransactionAt:   rec.InvoiceDate,
		TransactionDate: dateOnly(rec.InvoiceDate),
		CustomerID:      rec.CustomerID,
		StockCode:       rec.StockCode,
		Description:     description,
		Country:         rec.Country,
		Category:        category,
		Subcategory:     subcategory,
		IsGift:          isGift,
	}

	t.metrics.Successful++
	return tx, nil
}

// parseInvoice splits the optional credit prefix off an invoice number.
// Non-numeric remainders become 0 rather than an error; the raw value
// already passed format validation.
func parseInvoice(invoice string) (int, bool) {
	invoice = strings.TrimSpace(invoice)
	isCredit := strings.HasPrefix(invoice, "C")
	num := strings.TrimPrefix(invoice, "C")
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, isCredit
	}
	return n, isCredit
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
