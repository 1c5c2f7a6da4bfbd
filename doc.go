// Package twofa provides an embeddable two-factor authentication engine with
// TOTP enrollment, single-use backup codes, Redis-backed session tracking, and
// a per-account login audit trail.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// twofa is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (MetricsSnapshot, SessionInfo, EnrollmentSetup, etc.). All internal coordination — flow
// orchestration, profile storage, rate limiting, audit dispatch — lives under internal/
// and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Store or verify primary passwords. Credential checks are delegated to the
//     caller-supplied [AccountProvider].
//   - Import any sub-package that re-imports twofa (no import cycles).
//
// # Performance contract
//
// Authenticate is the hot path. Without a second factor it performs one limiter
// check, one profile read, one history append, and one session write. Enrollment
// transitions are allowed one optimistic transaction with bounded retries.
package twofa
