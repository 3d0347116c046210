// Package model defines shared domain types used across the trading core.
//
// Conventions:
//   - Contract prices at the exchange boundary: integer cents (1-99)
//   - Money (bankroll, cost basis, PnL): decimal.Decimal dollars
//   - Probabilities, confidences, Kelly fractions: float64
//   - IDs: uuid.UUID for requests/orders/fills, string tickers for events
//   - Timestamps: time.Time in UTC
package model
