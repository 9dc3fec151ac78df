package datagen

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pgEdge/retail-dw/internal/etl"
)

func TestGeneratorRowCount(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Rows: 250, Seed: 7})

	var buf bytes.Buffer
	n, err := g.Write(&buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 250 {
		t.Errorf("Expected 250 rows written, got %d", n)
	}

	r := csv.NewReader(&buf)
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("generated CSV unparseable: %v", err)
	}
	if len(records) != 251 {
		t.Errorf("Expected 251 records including header, got %d", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("Expected header %v, got %v", csvHeader, records[0])
	}
}

func TestGeneratorReproducible(t *testing.T) {
	var a, b bytes.Buffer
	if _, err := NewGenerator(GeneratorConfig{Rows: 400, Seed: 42}).Write(&a); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if _, err := NewGenerator(GeneratorConfig{Rows: 400, Seed: 42}).Write(&b); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("Same seed should produce identical files")
	}

	var c bytes.Buffer
	if _, err := NewGenerator(GeneratorConfig{Rows: 400, Seed: 43}).Write(&c); err != nil {
		t.Fatalf("third Write failed: %v", err)
	}
	if bytes.Equal(a.Bytes(), c.Bytes()) {
		t.Error("Different seeds should produce different files")
	}
}

func TestGeneratorGrammar(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewGenerator(GeneratorConfig{Rows: 500, Seed: 11}).Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV unparseable: %v", err)
	}

	invoiceRe := regexp.MustCompile(`^C?\d{6}$`)
	qtyRe := regexp.MustCompile(`^-?\d+(\.0)?$`)
	priceRe := regexp.MustCompile(`^-?\d+\.\d{2}$`)

	var lastDate time.Time
	for i, rec := range records[1:] {
		if len(rec) != 8 {
			t.Fatalf("row %d: expected 8 fields, got %d", i, len(rec))
		}
		if !invoiceRe.MatchString(rec[0]) {
			t.Errorf("row %d: bad invoice number %q", i, rec[0])
		}
		if !qtyRe.MatchString(rec[3]) {
			t.Errorf("row %d: bad quantity %q", i, rec[3])
		}
		dt, err := time.Parse(invoiceDateLayout, rec[4])
		if err != nil {
			t.Errorf("row %d: bad invoice date %q", i, rec[4])
			continue
		}
		if dt.Before(lastDate) {
			t.Errorf("row %d: timestamps went backwards, %s before %s", i, dt, lastDate)
		}
		lastDate = dt
		if !priceRe.MatchString(rec[5]) {
			t.Errorf("row %d: bad unit price %q", i, rec[5])
		}
		if h := dt.Hour(); h < 7 || h >= 20 {
			t.Errorf("row %d: timestamp outside trading hours: %s", i, dt)
		}
	}
}

func TestGeneratorMix(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewGenerator(GeneratorConfig{Rows: 2000, Seed: 3}).Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV unparseable: %v", err)
	}

	var credits, guests, postage, uk int
	for _, rec := range records[1:] {
		if strings.HasPrefix(rec[0], "C") {
			credits++
		}
		if strings.TrimSpace(rec[6]) == "" {
			guests++
		}
		if rec[1] == "POST" {
			postage++
		}
		if rec[7] == "United Kingdom" || rec[7] == "UK" {
			uk++
		}
	}

	if credits == 0 {
		t.Error("Expected some credit invoices in 2000 rows")
	}
	if guests == 0 {
		t.Error("Expected some guest checkout rows in 2000 rows")
	}
	if postage == 0 {
		t.Error("Expected some postage lines in 2000 rows")
	}
	if uk < 1000 {
		t.Errorf("Expected United Kingdom to dominate, got %d of %d", uk, len(records)-1)
	}
}

// The generated file must pass source validation and read mostly valid.
func TestGeneratorFeedsExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.csv")
	g := NewGenerator(GeneratorConfig{Rows: 1000, Seed: 99})
	if _, err := g.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	src := etl.NewCSVSource("sample", path, 500)
	if err := src.Validate(); err != nil {
		t.Fatalf("generated file failed source validation: %v", err)
	}

	out := make(chan etl.RawRecord, 64)
	done := make(chan error, 1)
	go func() { done <- src.Records(context.Background(), out) }()

	var streamed int
	for range out {
		streamed++
	}
	if err := <-done; err != nil {
		t.Fatalf("Records failed: %v", err)
	}

	m := src.Metrics()
	if m.RecordsRead != 1000 {
		t.Errorf("Expected 1000 records read, got %d", m.RecordsRead)
	}
	if int64(streamed) != m.RecordsValid {
		t.Errorf("Expected %d streamed records, got %d", m.RecordsValid, streamed)
	}
	if m.RecordsValid < 950 {
		t.Errorf("Expected at least 950 valid records, got %d", m.RecordsValid)
	}
}
