//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package etl implements the staged transform path of the warehouse:
// extraction from a row-oriented source, per-record cleaning and
// validation, type coercion, and transaction classification. Everything
// here is pure apart from source I/O; database work lives in the
// warehouse package.
package etl

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one row as read from a source. All fields are text; the
// cleaner owns coercion.
type RawRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// Record is a cleaned and validated row with typed fields. Quantity keeps
// its sign here; the transformer folds signs into the transaction type.
type Record struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	CustomerID  string
	Country     string
	InvoiceDate time.Time
}

// Transaction is a transformed record ready for dimensional resolution.
// Quantity and LineTotal are absolute values; direction is encoded in
// TransactionType.
type Transaction struct {
	InvoiceNo       int
	IsCreditInvoice bool
	TransactionType string
	Quantity        int
	UnitPrice       decimal.Decimal
	LineTotal       decimal.Decimal
	TransactionAt   time.Time
	TransactionDate time.Time
	CustomerID      string
	StockCode       string
	Description     string
	Country         string
	Category        string
	Subcategory     string
	IsGift          bool
}
