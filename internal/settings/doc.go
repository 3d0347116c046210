// Package settings holds the runtime-mutable risk and strategy parameters.
//
// Reads return an immutable version-tagged snapshot, so a decision cycle
// operates on one consistent configuration even while an update lands.
// Updates validate the whole batch before applying; a partially valid batch
// is rejected atomically.
package settings
