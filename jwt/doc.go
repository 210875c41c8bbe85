// Package jwt encodes and decodes the signed access tokens shared by the
// session authority and the edge gateway.
//
// Tokens are HMAC-signed (HS256, HS384 or HS512) with a secret both sides
// hold. Each token carries sub (the username), iat, exp and a random jti.
//
// # What this package must NOT do
//
//   - Consult session or revocation state.
//   - Import edgeauth (the root package imports this one).
package jwt
