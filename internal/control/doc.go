// Package control serves the operator API: trading state, positions,
// balance, performance, settings, order cancellation, reconciliation, and
// a WebSocket stream of trading events. It reads engine and ledger state
// but owns none of it; every mutation goes through the component that
// does.
package control
