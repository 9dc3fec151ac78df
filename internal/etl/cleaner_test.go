package etl

import (
	"errors"
	"testing"
	"time"
)

func validRaw() RawRecord {
	return RawRecord{
		InvoiceNo:   "536365",
		StockCode:   "85123A",
		Description: "WHITE HANGING HEART T-LIGHT HOLDER",
		Quantity:    "2",
		InvoiceDate: "2010-12-01 08:26:00",
		UnitPrice:   "3.50",
		CustomerID:  "17850",
		Country:     "United Kingdom",
	}
}

func TestCleanerSimpleSale(t *testing.T) {
	c := NewCleaner()

	rec, err := c.Clean(validRaw())
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	if rec.InvoiceNo != "536365" {
		t.Errorf("Expected invoice 536365, got %q", rec.InvoiceNo)
	}
	if rec.StockCode != "85123A" {
		t.Errorf("Expected stock code 85123A, got %q", rec.StockCode)
	}
	if rec.Description != "White Hanging Heart T-Light Holder" {
		t.Errorf("Expected title-cased description, got %q", rec.Description)
	}
	if rec.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %d", rec.Quantity)
	}
	if rec.UnitPrice.String() != "3.5" {
		t.Errorf("Expected unit price 3.5, got %s", rec.UnitPrice)
	}
	if rec.CustomerID != "17850" {
		t.Errorf("Expected customer 17850, got %q", rec.CustomerID)
	}
	want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	if !rec.InvoiceDate.Equal(want) {
		t.Errorf("Expected invoice date %v, got %v", want, rec.InvoiceDate)
	}
}

func TestCleanerTransforms(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawRecord)
		check  func(*Record) (string, bool)
	}{
		{
			name:   "invoice uppercased and trimmed",
			mutate: func(r *RawRecord) { r.InvoiceNo = "  c536379  " },
			check: func(r *Record) (string, bool) {
				return r.InvoiceNo, r.InvoiceNo == "C536379"
			},
		},
		{
			name:   "stock code junk stripped",
			mutate: func(r *RawRecord) { r.StockCode = " 85123a! " },
			check: func(r *Record) (string, bool) {
				return r.StockCode, r.StockCode == "85123A"
			},
		},
		{
			name:   "stock code keeps underscore",
			mutate: func(r *RawRecord) { r.StockCode = "gift_0001_20" },
			check: func(r *Record) (string, bool) {
				return r.StockCode, r.StockCode == "GIFT_0001_20"
			},
		},
		{
			name:   "description whitespace collapsed and trailing punctuation stripped",
			mutate: func(r *RawRecord) { r.Description = "  SPACEBOY   LUNCH  BOX ,. " },
			check: func(r *Record) (string, bool) {
				return r.Description, r.Description == "Spaceboy Lunch Box"
			},
		},
		{
			name:   "quantity float intermediate",
			mutate: func(r *RawRecord) { r.Quantity = "2.0" },
			check: func(r *Record) (string, bool) {
				return "", r.Quantity == 2
			},
		},
		{
			name:   "negative quantity kept signed",
			mutate: func(r *RawRecord) { r.Quantity = "-1" },
			check: func(r *Record) (string, bool) {
				return "", r.Quantity == -1
			},
		},
		{
			name:   "price currency symbol stripped",
			mutate: func(r *RawRecord) { r.UnitPrice = "£3.50" },
			check: func(r *Record) (string, bool) {
				return r.UnitPrice.String(), r.UnitPrice.StringFixed(2) == "3.50"
			},
		},
		{
			name:   "price rounds half to even",
			mutate: func(r *RawRecord) { r.UnitPrice = "2.345" },
			check: func(r *Record) (string, bool) {
				return r.UnitPrice.String(), r.UnitPrice.StringFixed(2) == "2.34"
			},
		},
		{
			name:   "customer id float suffix dropped",
			mutate: func(r *RawRecord) { r.CustomerID = "17850.0" },
			check: func(r *Record) (string, bool) {
				return r.CustomerID, r.CustomerID == "17850"
			},
		},
		{
			name:   "country abbreviation canonicalized",
			mutate: func(r *RawRecord) { r.Country = "UK" },
			check: func(r *Record) (string, bool) {
				return r.Country, r.Country == "United Kingdom"
			},
		},
		{
			name:   "country title cased",
			mutate: func(r *RawRecord) { r.Country = "FRANCE" },
			check: func(r *Record) (string, bool) {
				return r.Country, r.Country == "France"
			},
		},
		{
			name:   "date slash format",
			mutate: func(r *RawRecord) { r.InvoiceDate = "01/12/2010 08:26" },
			check: func(r *Record) (string, bool) {
				want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
				return r.InvoiceDate.String(), r.InvoiceDate.Equal(want)
			},
		},
		{
			name:   "date only format",
			mutate: func(r *RawRecord) { r.InvoiceDate = "2010-12-01" },
			check: func(r *Record) (string, bool) {
				want := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
				return r.InvoiceDate.String(), r.InvoiceDate.Equal(want)
			},
		},
	}

	for _, tt := range tests {
		c := NewCleaner()
		raw := validRaw()
		tt.mutate(&raw)

		rec, err := c.Clean(raw)
		if err != nil {
			t.Errorf("%s: unexpected rejection: %v", tt.name, err)
			continue
		}
		if got, ok := tt.check(rec); !ok {
			t.Errorf("%s: check failed, got %q", tt.name, got)
		}
	}
}

func TestCleanerRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawRecord)
		reason error
	}{
		{
			name:   "bad invoice format",
			mutate: func(r *RawRecord) { r.InvoiceNo = "ABC123" },
			reason: ErrValidation,
		},
		{
			name:   "invoice too short",
			mutate: func(r *RawRecord) { r.InvoiceNo = "1234" },
			reason: ErrValidation,
		},
		{
			name:   "zero quantity",
			mutate: func(r *RawRecord) { r.Quantity = "0" },
			reason: ErrValidation,
		},
		{
			name:   "non-numeric quantity",
			mutate: func(r *RawRecord) { r.Quantity = "lots" },
			reason: ErrValidation,
		},
		{
			name:   "negative price",
			mutate: func(r *RawRecord) { r.UnitPrice = "-5.00" },
			reason: ErrValidation,
		},
		{
			name:   "date before range",
			mutate: func(r *RawRecord) { r.InvoiceDate = "2008-12-31 10:00:00" },
			reason: ErrValidation,
		},
		{
			name:   "date in the future",
			mutate: func(r *RawRecord) { r.InvoiceDate = "2099-01-01 10:00:00" },
			reason: ErrValidation,
		},
		{
			name:   "unparseable date",
			mutate: func(r *RawRecord) { r.InvoiceDate = "yesterday" },
			reason: ErrValidation,
		},
		{
			name:   "blank quantity dropped by policy",
			mutate: func(r *RawRecord) { r.Quantity = "  " },
			reason: ErrMissingValue,
		},
		{
			name:   "blank price dropped by policy",
			mutate: func(r *RawRecord) { r.UnitPrice = "" },
			reason: ErrMissingValue,
		},
		{
			name:   "blank date dropped by policy",
			mutate: func(r *RawRecord) { r.InvoiceDate = "" },
			reason: ErrMissingValue,
		},
	}

	for _, tt := range tests {
		c := NewCleaner()
		raw := validRaw()
		tt.mutate(&raw)

		rec, err := c.Clean(raw)
		if err == nil {
			t.Errorf("%s: expected rejection, got record %+v", tt.name, rec)
			continue
		}
		if !errors.Is(err, tt.reason) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.reason, err)
		}
	}
}

func TestCleanerMissingCustomerBecomesGuest(t *testing.T) {
	c := NewCleaner()
	raw := validRaw()
	raw.CustomerID = ""

	rec, err := c.Clean(raw)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if rec.CustomerID != "GUEST" {
		t.Errorf("Expected GUEST customer, got %q", rec.CustomerID)
	}
}

func TestCleanerMissingDescriptionFilled(t *testing.T) {
	c := NewCleaner()
	raw := validRaw()
	raw.Description = "   "

	rec, err := c.Clean(raw)
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if rec.Description != "Unknown" {
		t.Errorf("Expected Unknown description, got %q", rec.Description)
	}
}

func TestCleanerDuplicateDetection(t *testing.T) {
	c := NewCleaner()

	if _, err := c.Clean(validRaw()); err != nil {
		t.Fatalf("first record rejected: %v", err)
	}

	_, err := c.Clean(validRaw())
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for repeated (invoice, stock code), got %v", err)
	}

	// Same invoice, different stock code is not a duplicate
	raw := validRaw()
	raw.StockCode = "22629"
	raw.Description = "SPACEBOY LUNCH BOX"
	if _, err := c.Clean(raw); err != nil {
		t.Errorf("Expected distinct stock code to pass, got %v", err)
	}

	m := c.Metrics()
	if m.DuplicatesFound != 1 {
		t.Errorf("Expected 1 duplicate, got %d", m.DuplicatesFound)
	}
}

func TestCleanerMetrics(t *testing.T) {
	c := NewCleaner()

	c.Clean(validRaw())

	bad := validRaw()
	bad.Quantity = "0"
	c.Clean(bad)

	m := c.Metrics()
	if m.TotalRecords != 2 {
		t.Errorf("Expected 2 total, got %d", m.TotalRecords)
	}
	if m.RecordsCleaned != 1 {
		t.Errorf("Expected 1 cleaned, got %d", m.RecordsCleaned)
	}
	if m.RecordsRejected != 1 {
		t.Errorf("Expected 1 rejected, got %d", m.RecordsRejected)
	}
	if rate := m.CleaningRate(); rate != 50.0 {
		t.Errorf("Expected 50%% cleaning rate, got %.1f", rate)
	}
}

func TestCleanerCustomMissingPolicy(t *testing.T) {
	c := NewCleaner()
	c.SetMissingPolicy(MissingPolicy{
		"CustomerID": {Strategy: StrategyDrop},
	})

	raw := validRaw()
	raw.CustomerID = ""
	_, err := c.Clean(raw)
	if !errors.Is(err, ErrMissingValue) {
		t.Errorf("Expected drop policy to reject, got %v", err)
	}
}

func TestCleanerRulePanicContained(t *testing.T) {
	c := NewCleaner()
	c.rules = append(c.rules, CleanRule{
		Name:    "explode",
		Column:  "Description",
		Enabled: true,
		Apply: func(raw *RawRecord, rec *Record) error {
			panic("boom")
		},
	})

	rec, err := c.Clean(validRaw())
	if err != nil {
		t.Fatalf("Expected panicking rule to be contained, got %v", err)
	}
	if rec == nil {
		t.Fatal("Expected a cleaned record, got nil")
	}
	if m := c.Metrics(); m.RecordsCleaned != 1 {
		t.Errorf("Expected 1 cleaned record, got %d", m.RecordsCleaned)
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"WHITE HANGING HEART T-LIGHT HOLDER", "White Hanging Heart T-Light Holder"},
		{"spaceboy lunch box", "Spaceboy Lunch Box"},
		{"UK", "Uk"},
		{"", ""},
		{"ABC1DEF", "Abc1Def"},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
