//-------------------------------------------------------------------------
//
// pgEdge Retail Data Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package etl

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		stockCode   string
		description string
		category    string
		subcategory string
		isGift      bool
	}{
		{"AMAZONFEE", "AMAZON FEE", "Fees", "Marketplace Fee", false},
		{"BANKCHARGES", "Bank Charges", "Fees", "Bank Charge", false},
		{"POST", "POSTAGE", "Shipping", "Postage", false},
		{"C2", "CARRIAGE", "Shipping", "Carrier Surcharge", false},
		{"DOT", "DOTCOM POSTAGE", "Adjustment", "Rounding", false},
		{"M", "Manual", "Adjustment", "Manual", false},
		{"D", "Discount", "Discount", "Manual Discount", false},
		{"S", "SAMPLES", "Services", "Service Charge", false},
		{"CRUK", "CRUK Commission", "Charity", "Donation", false},
		{"PADS", "PADS TO MATCH ALL CUSHIONS", "Stationery", "Pads", false},
		{"DCGSSBOY", "BOYS PARTY BAG", "Gift Sets", "Boy", true},
		{"DCGSSGIRL", "GIRLS PARTY BAG", "Gift Sets", "Girl", true},
		{"DCGS0076", "SUNJAR LED NIGHT NIGHT LIGHT", "Gift Sets", "DCGS", true},
		{"GIFT_0001_20", "Gift Voucher £20", "Gift Voucher", "Voucher £20", true},
		{"GIFT_0001_10", "Gift Voucher £10", "Gift Voucher", "Voucher £10", true},
		{"GIFT_CARD", "Dotcomgiftshop Gift Voucher", "Gift Voucher", "Voucher", true},

		// Description fallbacks apply only when the code is ordinary
		{"99999", "SMALL PARCEL POSTAGE", "Shipping", "Postage", false},
		{"99999", "PROMO DISCOUNT APPLIED", "Discount", "Promotion", false},

		// Plain merchandise
		{"85123A", "WHITE HANGING HEART T-LIGHT HOLDER", "Merchandise", "General", false},
		{"22629", "SPACEBOY LUNCH BOX", "Merchandise", "General", false},

		// Lowercase codes are uppercased before matching
		{"post", "postage", "Shipping", "Postage", false},
	}

	for _, tt := range tests {
		category, subcategory, isGift := Categorize(tt.stockCode, tt.description)
		if category != tt.category || subcategory != tt.subcategory || isGift != tt.isGift {
			t.Errorf("Categorize(%q, %q) = (%q, %q, %v), expected (%q, %q, %v)",
				tt.stockCode, tt.description, category, subcategory, isGift,
				tt.category, tt.subcategory, tt.isGift)
		}
	}
}

func TestClassifyTransaction(t *testing.T) {
	tests := []struct {
		name      string
		category  string
		isCredit  bool
		quantity  int
		lineTotal string
		expected  string
	}{
		{"fee", "Fees", false, 1, "11.62", TypeFee},
		{"fee reversal", "Fees", true, 1, "11.62", TypeFeeReversal},
		{"shipping charge", "Shipping", false, 1, "18.00", TypeShippingCharge},
		{"shipping refund", "Shipping", true, 1, "18.00", TypeShippingRefund},
		{"discount", "Discount", false, 1, "27.50", TypeDiscount},
		{"discount reversal", "Discount", true, -1, "-27.50", TypeDiscountReversal},
		{"donation", "Charity", false, 1, "10.00", TypeDonation},
		{"donation on credit note", "Charity", true, -1, "-10.00", TypeDonation},
		{"adjustment out", "Adjustment", false, -5, "-5.00", TypeAdjustmentOut},
		{"adjustment in", "Adjustment", false, 5, "5.00", TypeAdjustmentIn},
		{"adjustment zero", "Adjustment", false, 0, "0.00", TypeAdjustment},
		{"voucher sale", "Gift Voucher", false, 1, "20.00", TypeVoucherSale},
		{"voucher redemption credit", "Gift Voucher", true, 1, "20.00", TypeVoucherRedemption},
		{"voucher redemption negative qty", "Gift Voucher", false, -1, "-20.00", TypeVoucherRedemption},
		{"service", "Services", false, 1, "50.00", TypeService},
		{"service on credit note", "Services", true, -1, "-50.00", TypeService},
		{"sale", "Merchandise", false, 2, "7.00", TypeSale},
		{"return", "Merchandise", true, -1, "-1.95", TypeReturn},
		{"return zero qty", "Merchandise", true, 0, "0.00", TypeReturn},
		{"stock correction", "Merchandise", false, -3, "-10.50", TypeAdjustmentOut},
		{"credit with positive qty", "Merchandise", true, 2, "7.00", TypeReturn},
		{"zero qty non-credit", "Merchandise", false, 0, "0.00", TypeSale},
		{"unknown category sale", "Gift Sets", false, 1, "9.95", TypeSale},
		{"unknown category return", "Stationery", true, -2, "-3.90", TypeReturn},
	}

	for _, tt := range tests {
		lineTotal, err := decimal.NewFromString(tt.lineTotal)
		if err != nil {
			t.Fatalf("bad line total in test %q: %v", tt.name, err)
		}
		got := ClassifyTransaction(tt.category, tt.isCredit, tt.quantity, lineTotal)
		if got != tt.expected {
			t.Errorf("%s: ClassifyTransaction(%q, %v, %d, %s) = %q, expected %q",
				tt.name, tt.category, tt.isCredit, tt.quantity, tt.lineTotal, got, tt.expected)
		}
	}
}

func TestClassifierIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		category, subcategory, isGift := Categorize("GIFT_0001_20", "Gift Voucher £20")
		if category != "Gift Voucher" || subcategory != "Voucher £20" || !isGift {
			t.Fatalf("Categorize changed output on call %d", i)
		}
		got := ClassifyTransaction("Gift Voucher", false, -1, decimal.NewFromInt(-20))
		if got != TypeVoucherRedemption {
			t.Fatalf("ClassifyTransaction changed output on call %d", i)
		}
	}
}
