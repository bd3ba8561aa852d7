package domain

import "github.com/shopspring/decimal"

var sellingMarkup = decimal.NewFromFloat(1.1)

// WeightedAverageCost recomputes the per-unit cost basis after receiving
// addQty units at unitCost on top of existing stock. The result is rounded
// half-up to 4 decimal places.
func WeightedAverageCost(existingTotal decimal.Decimal, existingQty int, addQty int, unitCost decimal.Decimal) decimal.Decimal {
	combinedQty := existingQty + addQty
	if combinedQty <= 0 {
		return decimal.Zero
	}
	combinedTotal := existingTotal.Add(unitCost.Mul(decimal.NewFromInt(int64(addQty))))
	return combinedTotal.DivRound(decimal.NewFromInt(int64(combinedQty)), 4)
}

// SellingPriceFor derives the retail price from a cost basis: cost x 1.1,
// rounded half-up to 2 decimal places.
func SellingPriceFor(averageCost decimal.Decimal) decimal.Decimal {
	return averageCost.Mul(sellingMarkup).Round(2)
}

// TotalCostFor is quantity x average cost, unrounded so that
// TotalCost == Quantity * AverageCost holds exactly after every mutation.
func TotalCostFor(quantity int, averageCost decimal.Decimal) decimal.Decimal {
	return averageCost.Mul(decimal.NewFromInt(int64(quantity)))
}
