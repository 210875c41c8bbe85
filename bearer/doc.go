// Package bearer implements the stateless verifier used at the edge.
//
// Verify is a pure function of the Authorization header, the shared secret
// and the clock. Revocation is the session authority's concern; see
// edgeauth.AuthorityVerifier.
package bearer
