package money

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale used for monetary amounts at presentation
// boundaries. Indices and percentages use IndexPlaces. Internal arithmetic is
// never rounded.
const (
	MoneyPlaces int32 = 2
	IndexPlaces int32 = 4
)

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)
)

// Ratio divides num by den, returning zero when den is not strictly positive.
// Every performance index (CPI, SPI, TCPI, ...) relies on this convention: a
// missing denominator means "no data", not infinity.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return num.Div(den)
}

// Percent returns part/whole expressed as a percentage, zero when whole <= 0.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	return Ratio(part, whole).Mul(Hundred)
}

// RoundMoney rounds an amount to the monetary scale.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundIndex rounds an index or percentage to the index scale.
func RoundIndex(d decimal.Decimal) decimal.Decimal {
	return d.Round(IndexPlaces)
}

// Clamp limits d to the [min, max] interval.
func Clamp(d, min, max decimal.Decimal) decimal.Decimal {
	if d.LessThan(min) {
		return min
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
