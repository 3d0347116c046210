package risk

// PayoutRatio returns the net odds b for a contract priced at the
// market-implied probability: risk pMarket to win 1-pMarket.
func PayoutRatio(pMarket float64) float64 {
	return (1 - pMarket) / pMarket
}

// Fraction returns the full Kelly fraction f* = (p*(b+1) - 1) / b for win
// probability pModel at net odds b, clamped to [0, 1]. Zero when the
// model sees no advantage over the market price.
func Fraction(pMarket, pModel float64) float64 {
	b := PayoutRatio(pMarket)
	f := (pModel*(b+1) - 1) / b
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Applied scales the full Kelly fraction by the configured multiplier.
// Fractional Kelly trades growth for drawdown protection against model
// error.
func Applied(pMarket, pModel, kellyFraction float64) float64 {
	return kellyFraction * Fraction(pMarket, pModel)
}
