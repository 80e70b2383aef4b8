// Package store provides SQLite-backed persistence for pickled crypto state.
//
// One database file exists per (user, device) pair. Three tables hold the
// pickles: olmaccount, olmsessions and inbound_group_sessions. Schema
// creation is idempotent, and session listings preserve insertion order
// because decrypt dispatch priority follows creation order.
package store
