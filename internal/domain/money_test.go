package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestWeightedAverageCost(t *testing.T) {
	// 10 units costing 50 total, plus 10 units at 10 each: (50+100)/20 = 7.5.
	avg := WeightedAverageCost(decimal.NewFromInt(50), 10, 10, decimal.NewFromInt(10))
	if !avg.Equal(decimal.NewFromFloat(7.5)) {
		t.Fatalf("expected 7.5, got %s", avg)
	}

	// First purchase of a batch: the average is the unit cost.
	avg = WeightedAverageCost(decimal.Zero, 0, 4, decimal.NewFromFloat(3.25))
	if !avg.Equal(decimal.NewFromFloat(3.25)) {
		t.Fatalf("expected 3.25, got %s", avg)
	}

	// Rounds half-up to four decimal places.
	avg = WeightedAverageCost(decimal.NewFromInt(10), 3, 0, decimal.Zero)
	if got := avg.String(); got != "3.3333" {
		t.Fatalf("expected 3.3333, got %s", got)
	}

	if !WeightedAverageCost(decimal.Zero, 0, 0, decimal.Zero).IsZero() {
		t.Fatalf("zero combined quantity must yield zero")
	}
}

func TestSellingPriceFor(t *testing.T) {
	price := SellingPriceFor(decimal.NewFromInt(5))
	if !price.Equal(decimal.NewFromFloat(5.5)) {
		t.Fatalf("expected 5.5, got %s", price)
	}

	// 7.5 x 1.1 = 8.25, two decimal places.
	price = SellingPriceFor(decimal.NewFromFloat(7.5))
	if !price.Equal(decimal.NewFromFloat(8.25)) {
		t.Fatalf("expected 8.25, got %s", price)
	}
}

func TestTotalCostForHoldsInvariant(t *testing.T) {
	avg := WeightedAverageCost(decimal.NewFromInt(50), 10, 10, decimal.NewFromInt(10))
	total := TotalCostFor(20, avg)
	if !total.Equal(avg.Mul(decimal.NewFromInt(20))) {
		t.Fatalf("total cost must equal quantity x average cost")
	}
}
