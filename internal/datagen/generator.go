//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen produces seeded sample retail CSVs. The rows mimic the
// online-retail export: invoice-grouped merchandise sales with credit
// notes, postage and fee lines, guest checkouts, and the formatting
// noise the cleaner is expected to absorb.
package datagen

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// csvHeader matches the raw export column order.
var csvHeader = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

// invoiceDateLayout is the day-first timestamp format of the export.
const invoiceDateLayout = "02/01/2006 15:04"

// GeneratorConfig shapes one sample file.
type GeneratorConfig struct {
	// Rows is the number of data rows to emit (header excluded).
	Rows int

	// Seed makes the output reproducible; 0 picks a time-based seed.
	Seed uint64

	// From and To approximately bound the transaction timestamps; the
	// clock only moves forward, so the tail can overshoot To by a few
	// steps. Defaults cover one year starting 2010-12-01, inside the
	// pre-populated date range.
	From time.Time
	To   time.Time
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Rows <= 0 {
		c.Rows = 1000
	}
	if c.From.IsZero() {
		c.From = time.Date(2010, 12, 1, 8, 0, 0, 0, time.UTC)
	}
	if c.To.IsZero() || !c.To.After(c.From) {
		c.To = c.From.AddDate(1, 0, 0)
	}
	return c
}

type sampleProduct struct {
	stockCode   string
	description string
	price       decimal.Decimal
}

type sampleCustomer struct {
	id      string
	country string
}

var (
	descAdjectives = []string{
		"VINTAGE", "RETRO", "JUMBO", "MINI", "FELT", "WOODEN", "CERAMIC",
		"GLASS", "ANTIQUE", "REGENCY", "VICTORIAN", "RUSTIC", "KNITTED",
	}
	descColours = []string{
		"RED", "PINK", "BLUE", "IVORY", "CREAM", "WHITE",
		"BLACK", "GREEN", "SILVER", "GOLD",
	}
	descItems = []string{
		"HEART T-LIGHT HOLDER", "UNION JACK BUNTING", "CAKE STAND",
		"JAM JAR", "HOT WATER BOTTLE", "LUNCH BAG", "STORAGE JAR",
		"PHOTO FRAME", "TEACUP AND SAUCER", "DOORMAT", "PAPER CHAIN KIT",
		"SUGAR BOWL", "BAKING SET", "WALL CLOCK", "EGG CUP",
		"BIRD ORNAMENT", "GIFT TAG", "RECIPE BOX", "TEA TOWEL",
	}

	countries = []string{
		"United Kingdom", "Germany", "France", "Ireland", "Spain",
		"Netherlands", "Belgium", "Switzerland", "Portugal", "Australia",
		"Norway", "Italy",
	}
	countryWeights = []int{82, 3, 3, 2, 2, 2, 1, 1, 1, 1, 1, 1}

	// unit counts skew small with occasional wholesale quantities
	quantities      = []int{1, 2, 3, 4, 6, 8, 12, 24, 48}
	quantityWeights = []int{20, 18, 14, 10, 10, 8, 8, 6, 2}

	// fee and adjustment lines seen in the real export
	specialLines = []struct {
		code string
		desc string
	}{
		{"POST", "POSTAGE"},
		{"M", "Manual"},
		{"D", "Discount"},
		{"BANKCHARGES", "Bank Charges"},
		{"CRUK", "CRUK Commission"},
		{"DOT", "DOTCOM POSTAGE"},
		{"S", "SAMPLES"},
	}
)

// Generator emits invoice-grouped rows with a monotonically advancing
// clock, so generated files load into partitions in order.
type Generator struct {
	cfg       GeneratorConfig
	f         *Faker
	products  []sampleProduct
	customers []sampleCustomer
	invoiceNo int
	cursor    time.Time
	step      time.Duration
}

// NewGenerator builds a generator with a product catalog and customer
// pool sized to the requested row count.
func NewGenerator(cfg GeneratorConfig) *Generator {
	cfg = cfg.withDefaults()

	f := NewFaker()
	if cfg.Seed != 0 {
		f = NewFakerWithSeed(cfg.Seed)
	}

	g := &Generator{
		cfg:       cfg,
		f:         f,
		invoiceNo: 536365,
		cursor:    cfg.From,
	}

	// roughly four lines per invoice; spread invoices over the window
	invoices := cfg.Rows / 4
	if invoices < 1 {
		invoices = 1
	}
	g.step = cfg.To.Sub(cfg.From) / time.Duration(invoices)

	g.products = g.makeCatalog(boundedCount(cfg.Rows/10, 40, 400))
	g.customers = g.makeCustomers(boundedCount(cfg.Rows/20, 25, 500))
	return g
}

func boundedCount(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (g *Generator) makeCatalog(n int) []sampleProduct {
	seen := make(map[string]bool, n)
	products := make([]sampleProduct, 0, n)
	for len(products) < n {
		code := g.f.Digits(5)
		if g.f.Float64(0, 1) < 0.25 {
			code += strings.ToUpper(g.f.Letter())
		}
		if seen[code] {
			continue
		}
		seen[code] = true

		desc := Choose(g.f, descColours) + " " + Choose(g.f, descItems)
		if g.f.Float64(0, 1) < 0.5 {
			desc = Choose(g.f, descAdjectives) + " " + desc
		}

		products = append(products, sampleProduct{
			stockCode:   code,
			description: desc,
			price:       decimal.NewFromFloat(g.f.Price(0.29, 18.95)).Round(2),
		})
	}
	return products
}

func (g *Generator) makeCustomers(n int) []sampleCustomer {
	seen := make(map[string]bool, n)
	customers := make([]sampleCustomer, 0, n)
	for len(customers) < n {
		id := strconv.Itoa(g.f.Int(12000, 18999))
		if seen[id] {
			continue
		}
		seen[id] = true
		customers = append(customers, sampleCustomer{
			id:      id,
			country: ChooseWeighted(g.f, countries, countryWeights),
		})
	}
	return customers
}

// WriteFile generates the sample into path, returning the number of data
// rows written.
func (g *Generator) WriteFile(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create sample file: %w", err)
	}
	n, err := g.Write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Write emits the header and exactly cfg.Rows data rows.
func (g *Generator) Write(out io.Writer) (int, error) {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for rows < g.cfg.Rows {
		for _, row := range g.nextInvoice(g.cfg.Rows - rows) {
			if err := w.Write(row); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush sample: %w", err)
	}
	return rows, nil
}

// nextInvoice emits the rows of one invoice, at most budget of them.
func (g *Generator) nextInvoice(budget int) [][]string {
	g.advanceClock()
	date := g.cursor.Format(invoiceDateLayout)

	number := strconv.Itoa(g.invoiceNo)
	g.invoiceNo++

	customerID := ""
	country := ChooseWeighted(g.f, countries, countryWeights)
	if g.f.Float64(0, 1) >= 0.03 { // 3% guest checkouts
		c := Choose(g.f, g.customers)
		customerID = c.id
		country = c.country
	}

	// fee-only invoices: one adjustment line, nothing else
	if g.f.Float64(0, 1) < 0.015 {
		sp := Choose(g.f, specialLines)
		price := decimal.NewFromFloat(g.f.Price(0.5, 50)).Round(2)
		return [][]string{g.row(number, sp.code, sp.desc, "1", date,
			price.StringFixed(2), customerID, country)}
	}

	isCredit := g.f.Float64(0, 1) < 0.02
	lines := g.f.Int(1, 8)
	if isCredit {
		number = "C" + number
		lines = g.f.Int(1, 2)
	}
	if lines > budget {
		lines = budget
	}

	rows := make([][]string, 0, lines+1)
	for i := 0; i < lines; i++ {
		p := Choose(g.f, g.products)
		qty := ChooseWeighted(g.f, quantities, quantityWeights)
		if isCredit {
			qty = -qty
		}
		stock, qtyStr, price := p.stockCode, strconv.Itoa(qty), p.price.StringFixed(2)

		// a few genuinely broken rows so loads show rejections
		if g.f.Float64(0, 1) < 0.005 {
			switch g.f.Int(0, 2) {
			case 0:
				qtyStr = "0"
			case 1:
				stock = ""
			default:
				price = "-" + price
			}
		}
		rows = append(rows, g.row(number, stock, p.description, qtyStr, date,
			price, customerID, country))
	}

	// overseas orders usually carry a postage line
	if !isCredit && country != "United Kingdom" && len(rows) < budget &&
		g.f.Float64(0, 1) < 0.6 {
		rows = append(rows, g.row(number, "POST", "POSTAGE",
			strconv.Itoa(g.f.Int(1, 3)), date, "18.00", customerID, country))
	}
	return rows
}

// row applies the formatting noise real exports carry: float-suffixed
// customer IDs, abbreviated countries, stray whitespace and case, and
// spreadsheet-style float quantities.
func (g *Generator) row(invoice, stock, desc, qty, date, price, customer, country string) []string {
	r := g.f.Float64(0, 1)
	switch {
	case r < 0.02 && customer != "":
		customer += ".0"
	case r < 0.035 && country == "United Kingdom":
		country = "UK"
	case r < 0.05:
		desc = "  " + strings.ToLower(desc) + " "
	case r < 0.06 && !strings.HasPrefix(qty, "-") && qty != "0":
		qty += ".0"
	}
	return []string{invoice, stock, desc, qty, date, price, customer, country}
}

// advanceClock moves the invoice timestamp forward by roughly one step
// and snaps into trading hours. It never moves backwards, so generated
// files stay in chronological order.
func (g *Generator) advanceClock() {
	stepMin := int(g.step.Minutes())
	if stepMin < 1 {
		stepMin = 1
	}
	g.cursor = g.cursor.Add(time.Duration(g.f.Int(stepMin/2+1, stepMin*3/2+2)) * time.Minute)

	if g.cursor.Hour() >= 19 || g.cursor.Hour() < 7 {
		day := g.cursor
		if day.Hour() >= 19 {
			day = day.AddDate(0, 0, 1)
		}
		g.cursor = time.Date(day.Year(), day.Month(), day.Day(),
			7, g.f.Int(30, 59), 0, 0, time.UTC)
	}
}
