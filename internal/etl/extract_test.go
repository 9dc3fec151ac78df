package etl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleCSV = `InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country
536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,2,2010-12-01 08:26:00,3.50,17850,United Kingdom
C536379,22629,SPACEBOY LUNCH BOX,-1,2010-12-01 09:41:00,1.95,14527,United Kingdom
,22629,MISSING INVOICE,1,2010-12-01 10:00:00,1.95,14527,United Kingdom
536380,22961,JAM MAKING SET PRINTED,12,2010-12-01 09:41:00,notaprice,13511,United Kingdom
573585,AMAZONFEE,AMAZON FEE,1,2011-10-31 14:00:00,11.62,,United Kingdom
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func collect(t *testing.T, src *CSVSource) []RawRecord {
	t.Helper()
	out := make(chan RawRecord, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Records(context.Background(), out) }()

	var records []RawRecord
	for rec := range out {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	return records
}

func TestCSVSourceRead(t *testing.T) {
	src := NewCSVSource("retail_sales_csv", writeCSV(t, sampleCSV), 2)
	records := collect(t, src)

	// Blank invoice and unparseable price rows are filtered pre-clean
	if len(records) != 3 {
		t.Fatalf("Expected 3 valid records, got %d", len(records))
	}
	if records[0].InvoiceNo != "536365" || records[0].StockCode != "85123A" {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if records[1].InvoiceNo != "C536379" {
		t.Errorf("Expected credit invoice second, got %+v", records[1])
	}
	if records[2].CustomerID != "" {
		t.Errorf("Expected blank customer to pass through, got %q", records[2].CustomerID)
	}

	m := src.Metrics()
	if m.RecordsRead != 5 {
		t.Errorf("Expected 5 records read, got %d", m.RecordsRead)
	}
	if m.RecordsValid != 3 {
		t.Errorf("Expected 3 valid, got %d", m.RecordsValid)
	}
	if m.RecordsInvalid != 2 {
		t.Errorf("Expected 2 invalid, got %d", m.RecordsInvalid)
	}
	if m.Duration() <= 0 {
		t.Error("Expected non-zero read duration")
	}
}

func TestCSVSourceValidate(t *testing.T) {
	src := NewCSVSource("ok", writeCSV(t, sampleCSV), 0)
	if err := src.Validate(); err != nil {
		t.Errorf("Expected valid source, got %v", err)
	}

	missing := NewCSVSource("missing", filepath.Join(t.TempDir(), "nope.csv"), 0)
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for missing file")
	}

	badHeader := NewCSVSource("bad", writeCSV(t, "InvoiceNo,Quantity\n1,2\n"), 0)
	if err := badHeader.Validate(); err == nil {
		t.Error("Expected error for missing required columns")
	}
}

func TestCSVSourceHeaderBOM(t *testing.T) {
	content := "\ufeff" + sampleCSV
	src := NewCSVSource("bom", writeCSV(t, content), 0)
	if err := src.Validate(); err != nil {
		t.Errorf("Expected BOM header to validate, got %v", err)
	}
}

func TestCSVSourceEmptyFile(t *testing.T) {
	header := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"
	src := NewCSVSource("empty", writeCSV(t, header), 0)
	records := collect(t, src)

	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
	if m := src.Metrics(); m.RecordsRead != 0 {
		t.Errorf("Expected 0 read, got %d", m.RecordsRead)
	}
}

func TestCSVSourceCancelled(t *testing.T) {
	src := NewCSVSource("cancelled", writeCSV(t, sampleCSV), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered channel and no consumer: the send must not block forever.
	out := make(chan RawRecord)
	if err := src.Records(ctx, out); err == nil {
		t.Error("Expected context error from cancelled read")
	}
}

func TestCSVSourceRaggedRows(t *testing.T) {
	content := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n" +
		"536365,85123A,SHORT ROW,2,2010-12-01 08:26:00,3.50\n"
	src := NewCSVSource("ragged", writeCSV(t, content), 0)
	records := collect(t, src)

	if len(records) != 1 {
		t.Fatalf("Expected ragged row to survive, got %d records", len(records))
	}
	if records[0].CustomerID != "" || records[0].Country != "" {
		t.Errorf("Expected missing trailing fields blank, got %+v", records[0])
	}
}
