// Package userstore persists principals in SQLite and implements
// edgeauth.UserProvider.
//
// The schema is managed by embedded, versioned migrations recorded in a
// schema_migrations table. Migrate must succeed before the authority serves;
// a failed migration is returned, never logged and skipped.
package userstore
