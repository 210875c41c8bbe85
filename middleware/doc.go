// Package middleware exposes HTTP guards for the two verification strengths.
//
// # Guards
//
//   - [RequireStateless]: signature and expiry only, no store access. Used
//     by the edge gateway.
//   - [RequireAuthority]: resolves the token against the session authority
//     and rejects revoked sessions. Used by resource services, usually
//     through an authclient.Client.
//   - [RequireRole]: 403 unless the authenticated principal holds one of
//     the listed roles.
//
// Failures are written as the structured error body. Authentication
// failures carry a Bearer challenge.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs directly (delegates to the verifier).
//   - Access Redis.
//   - Collapse the two verifiers into one.
package middleware
