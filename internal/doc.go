// Package internal groups helper packages that are intentionally private to twofa.
//
// # Sub-packages
//
//   - flows — pure-function flow orchestrators for engine operations
//   - limiters — domain-specific rate limiters (second factor)
//   - rate — core Redis-backed rate limit primitives
//   - stores — two-factor profiles, backup-code vaults, login history
//
// # What this package must NOT do
//
//   - Export types that appear in the public twofa API.
//   - Be imported by any package outside the twofa module.
package internal
