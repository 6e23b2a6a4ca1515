// Package audit relays session server events to a sink off the request path.
//
// # Components
//
//   - [Sink]: event consumers (slog, JSON writer, channel, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with timestamp, type, user, session, IP, metadata.
//
// The server decides which events to emit; this package only buffers and
// delivers them.
package audit
