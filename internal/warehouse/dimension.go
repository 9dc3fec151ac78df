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
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/pgEdge/retail-dw/internal/cache"
	"github.com/pgEdge/retail-dw/internal/db"
	"github.com/pgEdge/retail-dw/internal/etl"
	"github.com/pgEdge/retail-dw/internal/logging"
)

// FactRow is a transaction annotated with its surrogate keys, ready for the
// fact writer.
type FactRow struct {
	etl.Transaction
	CustomerKey int64
	ProductKey  int64
	DateKey     int
}

// DateKey derives the dim_date key for a timestamp (YYYYMMDD as an integer).
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Resolver maps natural keys (customer id, stock code, calendar day) to the
// surrogate keys of their dimension rows, inserting missing rows as it goes.
// Batches resolve through one transaction of bulk lookups and inserts; if
// that fails each dimension row falls back to its own upsert.
type Resolver struct {
	db    db.Querier
	cache *cache.DimensionCache
	log   zerolog.Logger
}

// NewResolver creates a resolver backed by the given dimension cache. A nil
// cache gets replaced with a fresh one.
func NewResolver(q db.Querier, c *cache.DimensionCache) *Resolver {
	if c == nil {
		c = cache.NewDimensionCache(0)
	}
	return &Resolver{
		db:    q,
		cache: c,
		log:   logging.Component("resolver"),
	}
}

// productAttrs is the per-stock-code fold of a batch: the longest
// description wins, the first non-empty category and subcategory win, and
// is_gift is true if any row says so.
type productAttrs struct {
	description string
	category    string
	subcategory string
	isGift      bool
}

// Resolve annotates a batch with surrogate keys. Rows whose product or date
// cannot be resolved are dropped and counted in the second return value;
// customers that cannot be resolved fall back to the GUEST sentinel. An
// error is returned when a majority of the batch failed to resolve.
func (r *Resolver) Resolve(ctx context.Context, batch []*etl.Transaction) ([]FactRow, int, error) {
	if len(batch) == 0 {
		return nil, 0, nil
	}

	custCountry := make(map[string]string)
	prodAttrs := make(map[string]productAttrs)
	dates := make(map[int]time.Time)

	for _, t := range batch {
		if t == nil {
			continue
		}
		cid := t.CustomerID
		if cid == "" {
			cid = GuestCustomerID
		}
		if _, ok := custCountry[cid]; !ok {
			custCountry[cid] = t.Country
		}
		foldProduct(prodAttrs, t)
		dk := DateKey(t.TransactionDate)
		if _, ok := dates[dk]; !ok {
			dates[dk] = t.TransactionDate
		}
	}

	customers, products, dateKeys, missCust, missProd, missDates := r.seedFromCache(custCountry, prodAttrs, dates)

	if len(missCust) > 0 || len(missProd) > 0 || len(missDates) > 0 {
		if err := r.resolveBulk(ctx, missCust, missProd, missDates, customers, products, dateKeys); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			r.log.Warn().Err(err).Msg("Bulk dimension resolve failed, falling back to per-row upserts")
			if err := r.resolveRows(ctx, missCust, missProd, missDates, customers, products, dateKeys); err != nil {
				return nil, 0, err
			}
		}
		r.primeCache(custCountry, customers, products, dateKeys)
	}

	rows := make([]FactRow, 0, len(batch))
	rejected := 0
	for _, t := range batch {
		if t == nil {
			rejected++
			continue
		}

		cid := t.CustomerID
		if cid == "" {
			cid = GuestCustomerID
		}
		custKey, ok := customers[cid]
		if !ok {
			guest, err := r.guestKey(ctx)
			if err != nil {
				rejected++
				r.log.Info().
					Int("invoice", t.InvoiceNo).
					Str("customer_id", cid).
					Msg("Row rejected, unresolved customer key")
				continue
			}
			custKey = guest
		}

		prodKey, ok := products[t.StockCode]
		if !ok {
			rejected++
			r.log.Info().
				Int("invoice", t.InvoiceNo).
				Str("stock_code", t.StockCode).
				Msg("Row rejected, unresolved product key")
			continue
		}

		dk := DateKey(t.TransactionDate)
		if !dateKeys[dk] {
			rejected++
			r.log.Info().
				Int("invoice", t.InvoiceNo).
				Int("date_key", dk).
				Msg("Row rejected, unresolved date key")
			continue
		}

		rows = append(rows, FactRow{
			Transaction: *t,
			CustomerKey: custKey,
			ProductKey:  prodKey,
			DateKey:     dk,
		})
	}

	if rejected > 0 && rejected*2 > len(batch) {
		return nil, rejected, fmt.Errorf("dimension resolution rejected %d of %d rows", rejected, len(batch))
	}
	return rows, rejected, nil
}

func foldProduct(m map[string]productAttrs, t *etl.Transaction) {
	if t.StockCode == "" {
		return
	}
	cur := m[t.StockCode]
	desc := strings.TrimSpace(t.Description)
	if len(desc) > len(cur.description) {
		cur.description = desc
	}
	if cur.category == "" {
		cur.category = t.Category
	}
	if cur.subcategory == "" {
		cur.subcategory = t.Subcategory
	}
	if t.IsGift {
		cur.isGift = true
	}
	m[t.StockCode] = cur
}

// seedFromCache splits the batch's distinct naturals into already-cached
// mappings and the remainder that needs the database.
func (r *Resolver) seedFromCache(custCountry map[string]string, prodAttrs map[string]productAttrs, dates map[int]time.Time) (
	customers, products map[string]int64, dateKeys map[int]bool,
	missCust map[string]string, missProd map[string]productAttrs, missDates map[int]time.Time,
) {
	customers = make(map[string]int64, len(custCountry))
	missCust = make(map[string]string)
	for id, country := range custCountry {
		if key, ok := r.cache.Get(cache.NamespaceCustomer, cache.CustomerKey(id, country)); ok {
			customers[id] = key
		} else {
			missCust[id] = country
		}
	}

	products = make(map[string]int64, len(prodAttrs))
	missProd = make(map[string]productAttrs)
	for code, attrs := range prodAttrs {
		if key, ok := r.cache.Get(cache.NamespaceProduct, code); ok {
			products[code] = key
		} else {
			missProd[code] = attrs
		}
	}

	dateKeys = make(map[int]bool, len(dates))
	missDates = make(map[int]time.Time)
	for dk, day := range dates {
		if _, ok := r.cache.Get(cache.NamespaceDate, day.Format("2006-01-02")); ok {
			dateKeys[dk] = true
		} else {
			missDates[dk] = day
		}
	}
	return
}

// resolveBulk looks up and inserts all missing dimension rows in a single
// transaction: existing rows first, then batched inserts for the remainder,
// then a re-query to collect the new surrogate keys.
func (r *Resolver) resolveBulk(ctx context.Context, missCust map[string]string, missProd map[string]productAttrs, missDates map[int]time.Time,
	customers, products map[string]int64, dateKeys map[int]bool) error {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dimension transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lookupCustomers(ctx, tx, missCust, customers); err != nil {
		return err
	}
	if err := lookupProducts(ctx, tx, missProd, products); err != nil {
		return err
	}
	if err := lookupDates(ctx, tx, missDates, dateKeys); err != nil {
		return err
	}

	if err := insertCustomers(ctx, tx, missCust); err != nil {
		return err
	}
	if err := insertProducts(ctx, tx, missProd); err != nil {
		return err
	}
	if err := insertDates(ctx, tx, missDates); err != nil {
		return err
	}

	// Second lookup picks up the keys of rows just inserted, or inserted by
	// a concurrent batch that won the conflict.
	if err := lookupCustomers(ctx, tx, missCust, customers); err != nil {
		return err
	}
	if err := lookupProducts(ctx, tx, missProd, products); err != nil {
		return err
	}
	if err := lookupDates(ctx, tx, missDates, dateKeys); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func lookupCustomers(ctx context.Context, q db.Querier, miss map[string]string, out map[string]int64) error {
	if len(miss) == 0 {
		return nil
	}
	rows, err := q.Query(ctx,
		"SELECT customer_id, customer_key FROM dim_customer WHERE customer_id = ANY($1) AND is_current",
		sortedKeys(miss))
	if err != nil {
		return fmt.Errorf("lookup customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var key int64
		if err := rows.Scan(&id, &key); err != nil {
			return err
		}
		out[id] = key
		delete(miss, id)
	}
	return rows.Err()
}

func lookupProducts(ctx context.Context, q db.Querier, miss map[string]productAttrs, out map[string]int64) error {
	if len(miss) == 0 {
		return nil
	}
	rows, err := q.Query(ctx,
		"SELECT stock_code, product_key FROM dim_product WHERE stock_code = ANY($1)",
		sortedKeys(miss))
	if err != nil {
		return fmt.Errorf("lookup products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var key int64
		if err := rows.Scan(&code, &key); err != nil {
			return err
		}
		out[code] = key
		delete(miss, code)
	}
	return rows.Err()
}

func lookupDates(ctx context.Context, q db.Querier, miss map[int]time.Time, out map[int]bool) error {
	if len(miss) == 0 {
		return nil
	}
	keys := make([]int32, 0, len(miss))
	for dk := range miss {
		keys = append(keys, int32(dk))
	}
	rows, err := q.Query(ctx, "SELECT date_key FROM dim_date WHERE date_key = ANY($1)", keys)
	if err != nil {
		return fmt.Errorf("lookup dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dk int32
		if err := rows.Scan(&dk); err != nil {
			return err
		}
		out[int(dk)] = true
		delete(miss, int(dk))
	}
	return rows.Err()
}

func insertCustomers(ctx context.Context, q db.Querier, miss map[string]string) error {
	if len(miss) == 0 {
		return nil
	}
	var sb strings.Builder
	args := make([]any, 0, len(miss)*2)
	for _, id := range sortedKeys(miss) {
		if len(args) > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, id, miss[id])
	}

	sql := "INSERT INTO dim_customer (customer_id, country) VALUES " + sb.String() +
		" ON CONFLICT (customer_id) WHERE is_current DO NOTHING"
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("bulk insert customers: %w", err)
	}
	return nil
}

func insertProducts(ctx context.Context, q db.Querier, miss map[string]productAttrs) error {
	if len(miss) == 0 {
		return nil
	}
	var sb strings.Builder
	args := make([]any, 0, len(miss)*5)
	for _, code := range sortedKeys(miss) {
		attrs := miss[code]
		if len(args) > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5)
		args = append(args, code, attrs.description, nullable(attrs.category), nullable(attrs.subcategory), attrs.isGift)
	}

	sql := "INSERT INTO dim_product (stock_code, description, category, subcategory, is_gift) VALUES " +
		sb.String() +
		` ON CONFLICT (stock_code) DO UPDATE
          SET description = EXCLUDED.description,
              category    = EXCLUDED.category,
              subcategory = EXCLUDED.subcategory,
              is_gift     = EXCLUDED.is_gift,
              updated_at  = NOW()`
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("bulk insert products: %w", err)
	}
	return nil
}

const dimDateColumns = "(date_key, date_value, year, quarter, month, week, " +
	"day_of_year, day_of_month, day_of_week, month_name, day_name, " +
	"quarter_name, is_weekend, is_holiday)"

func insertDates(ctx context.Context, q db.Querier, miss map[int]time.Time) error {
	if len(miss) == 0 {
		return nil
	}
	keys := make([]int, 0, len(miss))
	for dk := range miss {
		keys = append(keys, dk)
	}
	sort.Ints(keys)

	var sb strings.Builder
	args := make([]any, 0, len(keys)*14)
	for _, dk := range keys {
		f := computeDateFields(miss[dk])
		if len(args) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := 1; j <= 14; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+j)
		}
		sb.WriteByte(')')
		args = append(args, f.key, f.value, f.year, f.quarter, f.month, f.week,
			f.dayOfYear, f.dayOfMonth, f.dayOfWeek, f.monthName, f.dayName,
			f.quarterName, f.isWeekend, false)
	}

	sql := "INSERT INTO dim_date " + dimDateColumns + " VALUES " + sb.String() +
		" ON CONFLICT (date_key) DO NOTHING"
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("bulk insert dates: %w", err)
	}
	return nil
}

// resolveRows is the per-row fallback: each dimension row gets its own
// upsert so one bad row cannot sink the rest. Failures are logged and left
// unresolved.
func (r *Resolver) resolveRows(ctx context.Context, missCust map[string]string, missProd map[string]productAttrs, missDates map[int]time.Time,
	customers, products map[string]int64, dateKeys map[int]bool) error {

	for _, id := range sortedKeys(missCust) {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := r.upsertCustomer(ctx, id, missCust[id])
		if err != nil {
			r.log.Warn().Err(err).Str("customer_id", id).Msg("Customer upsert failed")
			continue
		}
		customers[id] = key
		delete(missCust, id)
	}

	for _, code := range sortedKeys(missProd) {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := r.upsertProduct(ctx, code, missProd[code])
		if err != nil {
			r.log.Warn().Err(err).Str("stock_code", code).Msg("Product upsert failed")
			continue
		}
		products[code] = key
		delete(missProd, code)
	}

	dks := make([]int, 0, len(missDates))
	for dk := range missDates {
		dks = append(dks, dk)
	}
	sort.Ints(dks)
	for _, dk := range dks {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := r.upsertDate(ctx, computeDateFields(missDates[dk]))
		if err != nil {
			r.log.Warn().Err(err).Int("date_key", dk).Msg("Date upsert failed")
			continue
		}
		dateKeys[key] = true
		delete(missDates, dk)
	}
	return nil
}

func (r *Resolver) upsertCustomer(ctx context.Context, id, country string) (int64, error) {
	var key int64
	err := r.db.QueryRow(ctx, `
        INSERT INTO dim_customer (customer_id, country)
        VALUES ($1, $2)
        ON CONFLICT (customer_id) WHERE is_current
        DO UPDATE SET country = EXCLUDED.country, updated_at = NOW()
        RETURNING customer_key`, id, country).Scan(&key)
	return key, err
}

func (r *Resolver) upsertProduct(ctx context.Context, code string, attrs productAttrs) (int64, error) {
	var key int64
	err := r.db.QueryRow(ctx, `
        INSERT INTO dim_product (stock_code, description, category, subcategory, is_gift)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (stock_code) DO UPDATE
        SET description = EXCLUDED.description,
            category    = EXCLUDED.category,
            subcategory = EXCLUDED.subcategory,
            is_gift     = EXCLUDED.is_gift,
            updated_at  = NOW()
        RETURNING product_key`,
		code, attrs.description, nullable(attrs.category), nullable(attrs.subcategory), attrs.isGift).Scan(&key)
	return key, err
}

func (r *Resolver) upsertDate(ctx context.Context, f dateFields) (int, error) {
	var key int32
	err := r.db.QueryRow(ctx,
		"INSERT INTO dim_date "+dimDateColumns+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)"+
			" ON CONFLICT (date_key) DO NOTHING RETURNING date_key",
		f.key, f.value, f.year, f.quarter, f.month, f.week,
		f.dayOfYear, f.dayOfMonth, f.dayOfWeek, f.monthName, f.dayName,
		f.quarterName, f.isWeekend, false).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		// DO NOTHING returns no row on conflict; read back the existing one.
		err = r.db.QueryRow(ctx, "SELECT date_key FROM dim_date WHERE date_key = $1", f.key).Scan(&key)
	}
	return int(key), err
}

// guestKey resolves the GUEST sentinel customer, creating it if the seed
// row is somehow gone.
func (r *Resolver) guestKey(ctx context.Context) (int64, error) {
	cacheKey := cache.CustomerKey(GuestCustomerID, "Unknown")
	if key, ok := r.cache.Get(cache.NamespaceCustomer, cacheKey); ok {
		return key, nil
	}

	var key int64
	err := r.db.QueryRow(ctx,
		"SELECT customer_key FROM dim_customer WHERE customer_id = $1 AND is_current",
		GuestCustomerID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		key, err = r.upsertCustomer(ctx, GuestCustomerID, "Unknown")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve guest customer: %w", err)
	}

	r.cache.Put(cache.NamespaceCustomer, cacheKey, key)
	return key, nil
}

func (r *Resolver) primeCache(custCountry map[string]string, customers, products map[string]int64, dateKeys map[int]bool) {
	custEntries := make(map[string]int64, len(customers))
	for id, key := range customers {
		custEntries[cache.CustomerKey(id, custCountry[id])] = key
	}
	r.cache.PutAll(cache.NamespaceCustomer, custEntries)

	r.cache.PutAll(cache.NamespaceProduct, products)

	dateEntries := make(map[string]int64, len(dateKeys))
	for dk := range dateKeys {
		dateEntries[isoFromDateKey(dk)] = int64(dk)
	}
	r.cache.PutAll(cache.NamespaceDate, dateEntries)
}

// dateFields carries the computed dim_date attributes for one calendar day.
// Week and day_of_week follow ISO-8601 (Monday = 1).
type dateFields struct {
	key         int
	value       time.Time
	year        int
	quarter     int
	month       int
	week        int
	dayOfYear   int
	dayOfMonth  int
	dayOfWeek   int
	monthName   string
	dayName     string
	quarterName string
	isWeekend   bool
}

func computeDateFields(t time.Time) dateFields {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	quarter := (int(day.Month())-1)/3 + 1
	_, week := day.ISOWeek()
	dow := int(day.Weekday())
	if dow == 0 {
		dow = 7
	}

	return dateFields{
		key:         DateKey(day),
		value:       day,
		year:        day.Year(),
		quarter:     quarter,
		month:       int(day.Month()),
		week:        week,
		dayOfYear:   day.YearDay(),
		dayOfMonth:  day.Day(),
		dayOfWeek:   dow,
		monthName:   day.Month().String(),
		dayName:     day.Weekday().String(),
		quarterName: fmt.Sprintf("Q%d", quarter),
		isWeekend:   dow >= 6,
	}
}

func isoFromDateKey(dk int) string {
	return fmt.Sprintf("%04d-%02d-%02d", dk/10000, (dk/100)%100, dk%100)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
