package receiving

import "github.com/shopspring/decimal"

// DepositSchemeThreshold is the tax percentage above which a rate is treated
// as a miscoded deposit-return levy.
var DepositSchemeThreshold = decimal.NewFromInt(50)

func RecommendedTaxRate(taxRate decimal.Decimal, normalized decimal.NullDecimal) decimal.Decimal {
	if normalized.Valid {
		return normalized.Decimal
	}
	return taxRate
}

// IsPotentialDepositScheme flags the line for review; the rate is never corrected here.
func IsPotentialDepositScheme(taxRate decimal.Decimal) bool {
	return taxRate.GreaterThan(DepositSchemeThreshold)
}

// LineCost prices a unit count at the line's unit cost.
func LineCost(units int, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(units)))
}
