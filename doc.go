// Package edgeauth is the session authority of the defect tracker: it
// registers principals, issues signed access tokens, keeps exactly one active
// session per principal, and answers revocation-aware validation queries.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Two verification strengths
//
// The edge gateway checks tokens statelessly (see package bearer) and accepts
// a revoked token until it expires. Resource services and the authority's own
// endpoints check tokens through an [AuthorityVerifier], which always reflects
// the session store. Both capabilities are separate interfaces on purpose.
//
// # Architecture boundaries
//
// edgeauth is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and value types. Redis layout lives in package session,
// principal persistence behind [UserProvider], and audit dispatch under
// internal/.
//
// # What this package must NOT do
//
//   - Expose Redis clients or session key layout in its public API.
//   - Speak HTTP. Handlers live in internal/api and the gateway package.
//   - Import any sub-package that re-imports edgeauth.
package edgeauth
