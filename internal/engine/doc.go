// Package engine owns the decision cycle: drain queued signals, refresh
// quotes, fire stop losses, aggregate, size through risk, and hand accepted
// requests to the order manager. Cycles are serialized; one runs at a time,
// settings are snapshotted at the cycle boundary, and nothing trades until
// the local ledger has been reconciled against the exchange.
package engine
