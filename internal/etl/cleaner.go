//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/retail-dw/internal/logging"
)

// Severity controls whether a failed validation rule rejects the record
// or only logs.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// MissingStrategy names a policy for blank source fields. The statistical
// strategies need a reference series; record-at-a-time cleaning has none,
// so they degrade to fill_unknown.
type MissingStrategy string

const (
	StrategyDrop        MissingStrategy = "drop"
	StrategyFillZero    MissingStrategy = "fill_zero"
	StrategyFillUnknown MissingStrategy = "fill_unknown"
	StrategyFillMean    MissingStrategy = "fill_mean"
	StrategyFillMedian  MissingStrategy = "fill_median"
	StrategyFillMode    MissingStrategy = "fill_mode"
)

// MissingRule is the per-column missing-value policy. FillWith overrides
// the default "Unknown" for the fill strategies.
type MissingRule struct {
	Strategy MissingStrategy
	FillWith string
}

// MissingPolicy maps source column names to their missing-value rule.
// Columns without an entry are filled with "Unknown".
type MissingPolicy map[string]MissingRule

// DefaultMissingPolicy keeps records with a blank customer (they become
// the GUEST sentinel) and drops records missing the fields the warehouse
// cannot derive.
func DefaultMissingPolicy() MissingPolicy {
	return MissingPolicy{
		"CustomerID":  {Strategy: StrategyFillUnknown, FillWith: "GUEST"},
		"Description": {Strategy: StrategyFillUnknown, FillWith: "Unknown"},
		"Quantity":    {Strategy: StrategyDrop},
		"UnitPrice":   {Strategy: StrategyDrop},
		"InvoiceDate": {Strategy: StrategyDrop},
	}
}

// CleanRule rewrites one column of a raw record into its typed form.
// Rule failures are logged and never reject on their own; the validation
// phase decides rejection.
type CleanRule struct {
	Name    string
	Column  string
	Enabled bool
	Apply   func(raw *RawRecord, rec *Record) error
}

// ValidationRule is a predicate over the cleaned record. ERROR severity
// rejects the record, WARNING only logs.
type ValidationRule struct {
	Name        string
	Description string
	Column      string
	Severity    Severity
	Enabled     bool
	Check       func(rec *Record) bool
}

// CleanerMetrics counts outcomes across one run.
type CleanerMetrics struct {
	TotalRecords     int64
	RecordsCleaned   int64
	RecordsRejected  int64
	MissingHandled   int64
	DuplicatesFound  int64
	ValidationErrors int64
}

// CleaningRate is the fraction of records that survived, in percent.
func (m CleanerMetrics) CleaningRate() float64 {
	if m.TotalRecords == 0 {
		return 0
	}
	return float64(m.RecordsCleaned) / float64(m.TotalRecords) * 100
}

var (
	invoicePattern = regexp.MustCompile(`^C?\d{5,7}[A-Z]?$`)
	stockCodeJunk  = regexp.MustCompile(`[^A-Z0-9_\-.]`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	trailingPunct  = regexp.MustCompile(`[.,\-\s]+$`)
	quantityJunk   = regexp.MustCompile(`[^\d\-.]`)
	priceJunk      = regexp.MustCompile(`[£$€\s,]`)
)

// minInvoiceDate is the lower bound of the accepted date range. The
// dataset starts in December 2009; anything earlier is a parse artifact.
var minInvoiceDate = time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC)

// invoiceDateFormats are tried in order. The permissive tail catches
// ISO-8601 variants exporters produce.
var invoiceDateFormats = []string{
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Cleaner applies the retail cleaning rules, the missing-value policy,
// validation predicates, and in-run duplicate detection. It carries
// per-run state (seen duplicate keys) and is not safe for concurrent use.
type Cleaner struct {
	policy  MissingPolicy
	rules   []CleanRule
	checks  []ValidationRule
	dupCols []string
	seen    map[string]struct{}
	metrics CleanerMetrics
	log     zerolog.Logger
}

// NewCleaner returns a cleaner with the default rule set, the default
// missing-value policy, and duplicate detection on (InvoiceNo, StockCode).
func NewCleaner() *Cleaner {
	c := &Cleaner{
		policy:  DefaultMissingPolicy(),
		dupCols: []string{"InvoiceNo", "StockCode"},
		seen:    make(map[string]struct{}),
		log:     logging.Component("cleaner"),
	}
	c.rules = defaultCleanRules()
	c.checks = defaultValidationRules()
	return c
}

// SetMissingPolicy replaces the per-column missing-value policy.
func (c *Cleaner) SetMissingPolicy(p MissingPolicy) {
	c.policy = p
}

// Metrics returns a snapshot of the run counters.
func (c *Cleaner) Metrics() CleanerMetrics {
	return c.metrics
}

// Clean runs one record through missing-value handling, the cleaning
// rules, validation, and duplicate detection. It returns the typed record
// or a rejection error wrapping ErrMissingValue, ErrValidation, or
// ErrDuplicate.
func (c *Cleaner) Clean(raw RawRecord) (*Record, error) {
	c.metrics.TotalRecords++

	if err := c.handleMissing(&raw); err != nil {
		c.metrics.RecordsRejected++
		return nil, err
	}

	rec := &Record{}
	for _, rule := range c.rules {
		if !rule.Enabled {
			continue
		}
		if err := applyRule(rule, &raw, rec); err != nil {
			// Cleaning failures leave the zero value in place; the
			// validation phase decides whether that rejects.
			c.log.Warn().
				Str("rule", rule.Name).
				Str("column", rule.Column).
				Err(err).
				Msg("cleaning rule failed")
		}
	}

	for _, check := range c.checks {
		if !check.Enabled || check.Check(rec) {
			continue
		}
		if check.Severity == SeverityError {
			c.metrics.ValidationErrors++
			c.metrics.RecordsRejected++
			c.log.Debug().
				Str("rule", check.Name).
				Str("column", check.Column).
				Str("invoice_no", rec.InvoiceNo).
				Msg("record failed validation")
			return nil, fmt.Errorf("%s: %w", check.Name, ErrValidation)
		}
		c.log.Warn().
			Str("rule", check.Name).
			Str("column", check.Column).
			Msg("validation warning")
	}

	if c.isDuplicate(rec) {
		c.metrics.DuplicatesFound++
		c.metrics.RecordsRejected++
		return nil, fmt.Errorf("invoice %s stock %s: %w", rec.InvoiceNo, rec.StockCode, ErrDuplicate)
	}

	c.warnExtremes(rec)

	c.metrics.RecordsCleaned++
	return rec, nil
}

// applyRule runs one cleaning rule, converting a panic into an error so
// a single bad rule cannot end the run.
func applyRule(rule CleanRule, raw *RawRecord, rec *Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Apply(raw, rec)
}

func (c *Cleaner) handleMissing(raw *RawRecord) error {
	for _, col := range rawColumns {
		field := rawField(raw, col)
		if strings.TrimSpace(*field) != "" {
			continue
		}
		c.metrics.MissingHandled++

		rule, ok := c.policy[col]
		if !ok {
			rule = MissingRule{Strategy: StrategyFillUnknown}
		}
		switch rule.Strategy {
		case StrategyDrop:
			return fmt.Errorf("column %s: %w", col, ErrMissingValue)
		case StrategyFillZero:
			*field = "0"
		default:
			// fill_unknown; mean/median/mode degrade here because no
			// reference series exists in streaming mode.
			if rule.FillWith != "" {
				*field = rule.FillWith
			} else {
				*field = "Unknown"
			}
		}
	}
	return nil
}

func (c *Cleaner) isDuplicate(rec *Record) bool {
	parts := make([]string, 0, len(c.dupCols))
	for _, col := range c.dupCols {
		switch col {
		case "InvoiceNo":
			parts = append(parts, rec.InvoiceNo)
		case "StockCode":
			parts = append(parts, rec.StockCode)
		case "CustomerID":
			parts = append(parts, rec.CustomerID)
		case "InvoiceDate":
			parts = append(parts, rec.InvoiceDate.Format(time.RFC3339))
		}
	}
	key := strings.Join(parts, "|")
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}

// warnExtremes flags values that are plausible but suspicious. These are
// kept; the quality monitor picks them up downstream.
func (c *Cleaner) warnExtremes(rec *Record) {
	if rec.Quantity > 10000 || rec.Quantity < -10000 {
		c.log.Warn().
			Int("quantity", rec.Quantity).
			Str("invoice_no", rec.InvoiceNo).
			Msg("extreme quantity")
	}
	if rec.UnitPrice.GreaterThan(decimal.NewFromInt(1000)) {
		c.log.Warn().
			Str("unit_price", rec.UnitPrice.String()).
			Str("invoice_no", rec.InvoiceNo).
			Msg("extreme unit price")
	}
}

// rawColumns lists source columns in their file order, used to iterate the
// missing-value policy deterministically.
var rawColumns = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

func rawField(raw *RawRecord, col string) *string {
	switch col {
	case "InvoiceNo":
		return &raw.InvoiceNo
	case "StockCode":
		return &raw.StockCode
	case "Description":
		return &raw.Description
	case "Quantity":
		return &raw.Quantity
	case "InvoiceDate":
		return &raw.InvoiceDate
	case "UnitPrice":
		return &raw.UnitPrice
	case "CustomerID":
		return &raw.CustomerID
	default:
		return &raw.Country
	}
}

func defaultCleanRules() []CleanRule {
	return []CleanRule{
		{
			Name:    "clean_invoice_no",
			Column:  "InvoiceNo",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				rec.InvoiceNo = strings.ToUpper(strings.TrimSpace(raw.InvoiceNo))
				return nil
			},
		},
		{
			Name:    "clean_stock_code",
			Column:  "StockCode",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				sc := strings.ToUpper(strings.TrimSpace(raw.StockCode))
				rec.StockCode = stockCodeJunk.ReplaceAllString(sc, "")
				return nil
			},
		},
		{
			Name:    "clean_description",
			Column:  "Description",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				desc := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw.Description), " ")
				desc = titleCase(desc)
				rec.Description = trailingPunct.ReplaceAllString(desc, "")
				return nil
			},
		},
		{
			Name:    "clean_quantity",
			Column:  "Quantity",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				qty, err := parseQuantity(raw.Quantity)
				if err != nil {
					rec.Quantity = 0
					return err
				}
				rec.Quantity = qty
				return nil
			},
		},
		{
			Name:    "clean_unit_price",
			Column:  "UnitPrice",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				price, err := parseUnitPrice(raw.UnitPrice)
				if err != nil {
					rec.UnitPrice = decimal.Zero
					return err
				}
				rec.UnitPrice = price
				return nil
			},
		},
		{
			Name:    "clean_customer_id",
			Column:  "CustomerID",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				id := strings.TrimSpace(raw.CustomerID)
				rec.CustomerID = strings.TrimSuffix(id, ".0")
				return nil
			},
		},
		{
			Name:    "clean_country",
			Column:  "Country",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				rec.Country = canonicalCountry(raw.Country)
				return nil
			},
		},
		{
			Name:    "clean_date",
			Column:  "InvoiceDate",
			Enabled: true,
			Apply: func(raw *RawRecord, rec *Record) error {
				dt, err := parseInvoiceDate(raw.InvoiceDate)
				if err != nil {
					return err
				}
				rec.InvoiceDate = dt
				return nil
			},
		},
	}
}

func defaultValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Name:        "validate_invoice_format",
			Description: "invoice number matches the expected shape",
			Column:      "InvoiceNo",
			Severity:    SeverityError,
			Enabled:     true,
			Check: func(rec *Record) bool {
				return invoicePattern.MatchString(rec.InvoiceNo)
			},
		},
		{
			Name:        "validate_quantity_nonzero",
			Description: "quantity parsed and is not zero",
			Column:      "Quantity",
			Severity:    SeverityError,
			Enabled:     true,
			Check: func(rec *Record) bool {
				return rec.Quantity != 0
			},
		},
		{
			Name:        "validate_price_non_negative",
			Description: "unit price is zero or positive",
			Column:      "UnitPrice",
			Severity:    SeverityError,
			Enabled:     true,
			Check: func(rec *Record) bool {
				return !rec.UnitPrice.IsNegative()
			},
		},
		{
			Name:        "validate_date_range",
			Description: "invoice date falls between 2009-01-01 and today",
			Column:      "InvoiceDate",
			Severity:    SeverityError,
			Enabled:     true,
			Check: func(rec *Record) bool {
				if rec.InvoiceDate.IsZero() {
					return false
				}
				d := dateOnly(rec.InvoiceDate)
				return !d.Before(minInvoiceDate) && !d.After(dateOnly(time.Now().UTC()))
			},
		},
	}
}

func parseQuantity(s string) (int, error) {
	s = quantityJunk.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0, nil
	}
	// Float intermediate so "2.0" from spreadsheet exports parses.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return int(f), nil
}

func parseUnitPrice(s string) (decimal.Decimal, error) {
	s = priceJunk.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse unit price %q: %w", s, err)
	}
	return d.RoundBank(2), nil
}

func parseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range invoiceDateFormats {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// countryNames canonicalizes common abbreviations after title-casing.
var countryNames = map[string]string{
	"Uk":  "United Kingdom",
	"Usa": "United States",
	"Uae": "United Arab Emirates",
	"Rsa": "South Africa",
}

func canonicalCountry(s string) string {
	name := titleCase(strings.TrimSpace(s))
	if canonical, ok := countryNames[name]; ok {
		return canonical
	}
	return name
}

// titleCase uppercases the first letter of every word and lowercases the
// rest, treating any non-letter as a word boundary ("T-LIGHT" becomes
// "T-Light").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
