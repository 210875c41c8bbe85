// Package session provides the Redis-backed session store of the authority.
//
// # Key layout
//
// Under a configurable prefix P:
//
//	P:s:<digest>  hash   pid, sub, iat, exp, active, rev, rv
//	P:u:<pid>     set    digests of the principal's active sessions
//	P:exp         zset   digests scored by expiry (unix seconds)
//
// The digest is the hex SHA-256 of the token; raw tokens are never stored.
// Inactive rows are kept until they expire and are purged, so a revoked token
// stays distinguishable from an unknown one.
//
// # Atomicity
//
// Create, Revoke, RevokeAll and PurgeExpired are each a single Lua script.
// Create revokes every active session of the principal and stores the new one
// in the same script, which is what keeps at most one session active.
//
// # What this package must NOT do
//
//   - Import edgeauth or jwt (no upward imports).
//   - Interpret tokens or make authorization decisions.
package session
