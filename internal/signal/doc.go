// Package signal defines the strategy signal feed: the Source capability
// interface, the shared bounded queue drained once per decision cycle, and
// the Redis Streams source implementation.
//
// Producers never block: a full queue drops the signal and counts it.
package signal
