// Package audit implements async event dispatching for session lifecycle
// operations (login, logout, revocation, role change, registration).
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zerolog,
//     NATS, fan-out, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full
//     semantics.
//   - [Event]: structured audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import edgeauth or any sibling internal package.
//   - Retry or persist events. Delivery is best effort.
package audit
