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
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Transaction types. Direction is baked into the type so the warehouse
// stores only non-negative quantities and totals.
const (
	TypeSale              = "SALE"
	TypeReturn            = "RETURN"
	TypeFee               = "FEE"
	TypeFeeReversal       = "FEE_REVERSAL"
	TypeShippingCharge    = "SHIPPING_CHARGE"
	TypeShippingRefund    = "SHIPPING_REFUND"
	TypeDiscount          = "DISCOUNT"
	TypeDiscountReversal  = "DISCOUNT_REVERSAL"
	TypeDonation          = "DONATION"
	TypeAdjustment        = "ADJUSTMENT"
	TypeAdjustmentIn      = "ADJUSTMENT_IN"
	TypeAdjustmentOut     = "ADJUSTMENT_OUT"
	TypeVoucherSale       = "VOUCHER_SALE"
	TypeVoucherRedemption = "VOUCHER_REDEMPTION"
	TypeService           = "SERVICE"
)

// specialStockCodes maps operational stock codes to their category. The
// retail dataset mixes merchandise with fees, postage, and adjustments
// under magic codes.
var specialStockCodes = map[string]struct {
	category    string
	subcategory string
	isGift      bool
}{
	"AMAZONFEE":   {"Fees", "Marketplace Fee", false},
	"BANKCHARGES": {"Fees", "Bank Charge", false},
	"POST":        {"Shipping", "Postage", false},
	"C2":          {"Shipping", "Carrier Surcharge", false},
	"DOT":         {"Adjustment", "Rounding", false},
	"M":           {"Adjustment", "Manual", false},
	"D":           {"Discount", "Manual Discount", false},
	"S":           {"Services", "Service Charge", false},
	"CRUK":        {"Charity", "Donation", false},
	"PADS":        {"Stationery", "Pads", false},
	"DCGSSBOY":    {"Gift Sets", "Boy", true},
	"DCGSSGIRL":   {"Gift Sets", "Girl", true},
}

var voucherAmount = regexp.MustCompile(`GIFT_[A-Z0-9]+_(\d+)`)

// Categorize derives (category, subcategory, is_gift) from a stock code
// and, as a fallback, the description. Pure function; first match wins.
func Categorize(stockCode, description string) (category, subcategory string, isGift bool) {
	sc := strings.ToUpper(strings.TrimSpace(stockCode))
	desc := strings.ToUpper(description)

	if entry, ok := specialStockCodes[sc]; ok {
		return entry.category, entry.subcategory, entry.isGift
	}

	if strings.HasPrefix(sc, "GIFT_") {
		sub := "Voucher"
		if m := voucherAmount.FindStringSubmatch(sc); m != nil {
			sub = "Voucher £" + m[1]
		}
		return "Gift Voucher", sub, true
	}

	if strings.HasPrefix(sc, "DCGS") {
		return "Gift Sets", "DCGS", true
	}

	if strings.Contains(desc, "POSTAGE") || strings.Contains(desc, "SHIPPING") {
		return "Shipping", "Postage", false
	}
	if strings.Contains(desc, "DISCOUNT") {
		return "Discount", "Promotion", false
	}

	return "Merchandise", "General", false
}

// ClassifyTransaction maps a categorized record to its granular
// transaction type using the credit flag and the signs of quantity and
// line total. Pure function.
func ClassifyTransaction(category string, isCredit bool, quantity int, lineTotalSigned decimal.Decimal) string {
	switch category {
	case "Fees":
		if isCredit {
			return TypeFeeReversal
		}
		return TypeFee
	case "Shipping":
		if isCredit {
			return TypeShippingRefund
		}
		return TypeShippingCharge
	case "Discount":
		if isCredit {
			return TypeDiscountReversal
		}
		return TypeDiscount
	case "Charity":
		return TypeDonation
	case "Adjustment":
		switch {
		case quantity < 0:
			return TypeAdjustmentOut
		case quantity > 0:
			return TypeAdjustmentIn
		default:
			return TypeAdjustment
		}
	case "Gift Voucher":
		if isCredit || quantity < 0 || lineTotalSigned.IsNegative() {
			return TypeVoucherRedemption
		}
		return TypeVoucherSale
	case "Services":
		return TypeService
	}

	// Merchandise and everything else: direction from the credit flag and
	// quantity sign.
	switch {
	case isCredit && quantity <= 0:
		return TypeReturn
	case !isCredit && quantity < 0:
		return TypeAdjustmentOut
	case !isCredit && quantity > 0:
		return TypeSale
	case isCredit:
		return TypeReturn
	default:
		return TypeSale
	}
}
