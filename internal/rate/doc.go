// Package rate implements the optional login throttle: fixed-window Redis
// counters keyed by username and by client IP.
//
// # What this package must NOT do
//
//   - Import edgeauth. Callers translate ErrRateLimited into the public taxonomy.
//   - Reveal whether a username exists. Counters are kept for unknown names too.
package rate
