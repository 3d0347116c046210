// Package order drives exchange order lifecycles. Each submitted request
// gets one goroutine that guards the entry price, places the order with
// bounded retries, polls for fills until a terminal state, and releases
// the request's capital reservation when the lifecycle ends.
//
// Placement replays are safe because every order carries its request ID
// as the exchange client order id, and the exchange deduplicates on it.
package order
