// Package stores provides Redis-backed persistence for two-factor profiles,
// backup-code vaults, and login history.
//
// # Design
//
// Profiles are versioned, binary-encoded records. Mutation operations use
// WATCH/MULTI optimistic transactions with automatic retry on contention,
// covering the profile key and the backup-code vault key together so the
// state machine and the vault can never diverge.
//
// # Key namespaces
//
//   - 2fp: — profile records
//   - 2fv: — backup-code vaults (Redis SET of 32-byte hashes)
//   - 2fh: — login history lists (LPUSH + LTRIM, capped)
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT verify
// TOTP codes or hash backup codes — callers pass verification closures and
// precomputed hashes, so no crypto decision lives here.
//
// # What this package must NOT do
//
//   - Import twofa or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Enforce rate limits or make authentication decisions.
package stores
