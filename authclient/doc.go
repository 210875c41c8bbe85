// Package authclient is the validation client for resource services.
//
// Each call costs one round trip to the session authority's
// GET /auth/users/me and reflects the live session state, including logout,
// supersession and role changes. Pair it with middleware.RequireAuthority.
package authclient
