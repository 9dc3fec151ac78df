package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func TestNumericRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "two decimal places", value: "3.50"},
		{name: "whole number", value: "7"},
		{name: "zero", value: "0"},
		{name: "large total", value: "168469.60"},
		{name: "negative", value: "-27.50"},
		{name: "sub-penny", value: "0.001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decimal.NewFromString(tt.value)
			if err != nil {
				t.Fatalf("Failed to parse decimal: %v", err)
			}

			n := Numeric(d)
			if !n.Valid {
				t.Fatal("Expected valid numeric")
			}

			back, err := Decimal(n)
			if err != nil {
				t.Fatalf("Decimal returned error: %v", err)
			}
			if !back.Equal(d) {
				t.Errorf("Expected %s, got %s", d, back)
			}
		})
	}
}

func TestDecimalNull(t *testing.T) {
	d, err := Decimal(pgtype.Numeric{Valid: false})
	if err != nil {
		t.Fatalf("Decimal returned error for NULL: %v", err)
	}
	if !d.IsZero() {
		t.Errorf("Expected zero decimal for NULL, got %s", d)
	}
}

func TestDecimalNaN(t *testing.T) {
	_, err := Decimal(pgtype.Numeric{NaN: true, Valid: true})
	if err == nil {
		t.Error("Expected error for NaN numeric")
	}
}
