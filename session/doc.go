// Package session provides Redis-backed session persistence and compact binary
// session encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format with a leading
// version byte. The encoder is append-only: new versions add fields but never
// reinterpret old ones.
//
// # Per-account index
//
// Each account keeps a sorted-set index of its session IDs scored by last
// activity, so listings come back most-recently-active first without scanning.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT verify credentials or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import twofa (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
