// Package gateway is the edge gateway: one listening port in front of the
// auth, projects, defects and reports services.
//
// # Request path
//
//  1. CORS, then OPTIONS short-circuit (200, empty body).
//  2. GET / and GET /health are answered locally.
//  3. The path is resolved against the [RouteTable]. "/v1/<svc>/..." is an
//     alias of "/<svc>/..." and hits the same upstream path.
//  4. Non-public routes go through the stateless bearer check. The gateway
//     never consults the session authority, so a revoked token keeps
//     passing here until it expires.
//  5. The [Forwarder] relays the call with only Content-Type and
//     Authorization copied, re-encodes multipart bodies and translates the
//     answer by media type.
//
// Upstream failures, timeouts included, are answered with 503
// SERVICE_UNAVAILABLE and are never retried.
package gateway
