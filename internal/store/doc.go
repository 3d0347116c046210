// Package store persists trader state to Postgres: applied settings
// versions, open position snapshots, closed trades, and an append-only
// journal of sizing verdicts. Runtime write failures log and continue;
// only the startup load path treats store errors as fatal.
//
// Decimal dollar amounts travel as their canonical string form and land
// in NUMERIC columns, so values round-trip without float loss.
package store
