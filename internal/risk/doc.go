// Package risk sizes decisions into order requests and owns the capital
// ledger. It is the sole mutator of bankroll and position state: entries
// reserve capital atomically with their sizing verdict, confirmed fills
// flow back through ApplyFill, and every failure path pairs with an
// idempotent Release so the bankroll identity
// available + committed == total holds after every mutation.
//
// Sizing is fractional Kelly against the market-implied probability,
// bounded by a per-position cap and per-cluster exposure limits.
// Stop-loss scans emit closing orders that take priority over entries.
package risk
