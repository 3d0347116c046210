// Package exchange provides the Kalshi trade API client used for quotes,
// order placement, and portfolio reads.
//
// Requests are signed with RSA-PSS (KALSHI-ACCESS-* headers). Reads retry
// transient failures with jittered exponential backoff; order placement is
// deliberately single-shot, retried by the order lifecycle manager which
// owns the capital-release semantics.
//
// Endpoints:
//   - Production: https://api.elections.kalshi.com/trade-api/v2
//   - Demo: https://demo-api.kalshi.co/trade-api/v2
package exchange
